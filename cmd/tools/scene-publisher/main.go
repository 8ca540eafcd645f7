// Command scene-publisher streams synthetic planning scene updates to a
// sceneview feed server.
//
// This is useful for exercising a display without a planner.
//
// Usage:
//
//	go run ./cmd/tools/scene-publisher -description internal/kinematic/testdata/arm.yaml [flags]
//
// Flags:
//
//	-addr         Feed server address (default: localhost:50061)
//	-topic        Scene topic (default: planning_scene)
//	-rate         Updates per second (default: 10)
//	-count        Updates to send, 0 for no limit (default: 0)
//	-objects      World boxes in the scene (default: 4)
//	-batch        Updates per stream (default: 50)
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/sceneview/internal/feed"
	"github.com/banshee-data/sceneview/internal/kinematic"
)

func main() {
	addr := flag.String("addr", feed.DefaultConfig().ListenAddr, "Feed server address")
	topic := flag.String("topic", "planning_scene", "Scene topic")
	description := flag.String("description", "", "Robot description YAML file")
	rate := flag.Float64("rate", 10, "Updates per second")
	count := flag.Int("count", 0, "Updates to send (0 for no limit)")
	objects := flag.Int("objects", 4, "World boxes in the scene")
	batch := flag.Int("batch", 50, "Updates per stream")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Layout seed")
	flag.Parse()

	if *description == "" {
		log.Fatal("-description is required")
	}
	if *rate <= 0 || *batch <= 0 {
		log.Fatal("-rate and -batch must be positive")
	}
	data, err := os.ReadFile(*description)
	if err != nil {
		log.Fatalf("failed to read description: %v", err)
	}
	model, err := kinematic.Parse(data)
	if err != nil {
		log.Fatalf("invalid description: %v", err)
	}

	client, err := feed.Dial(*addr)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	gen := feed.NewSyntheticGenerator(model, *seed)
	gen.ObjectCount = *objects

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("publishing %s updates to %s on %q at %.1f Hz (publisher %s)", model.Name(), *addr, *topic, *rate, client.ID())

	ticker := time.NewTicker(time.Duration(float64(time.Second) / *rate))
	defer ticker.Stop()

	for *count == 0 || gen.Step() < *count {
		st, err := client.OpenStream(ctx, *topic)
		if err != nil {
			log.Fatalf("failed to open stream: %v", err)
		}
		sent := 0
		for sent < *batch && (*count == 0 || gen.Step() < *count) {
			select {
			case <-ctx.Done():
				if err := st.CloseAndRecv(); err != nil {
					log.Printf("stream closed with error: %v", err)
				}
				log.Printf("stopped after %d updates", gen.Step())
				return
			case <-ticker.C:
			}
			if err := st.Send(gen.Next()); err != nil {
				break
			}
			sent++
		}
		if err := st.CloseAndRecv(); err != nil {
			log.Fatalf("feed rejected updates: %v", err)
		}
	}
	log.Printf("sent %d updates", gen.Step())
}
