// Command sceneview runs a planning scene display: it accepts scene updates
// over gRPC, keeps the display's scene and robot current, renders on a
// throttled tick and serves debug pages for the live state and the store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/sceneview/internal/config"
	"github.com/banshee-data/sceneview/internal/feed"
	"github.com/banshee-data/sceneview/internal/version"
)

var (
	configPath       = flag.String("config", "", "Path to display config JSON (default: built-in defaults, see "+config.DefaultConfigPath+")")
	dbPath           = flag.String("db-path", "sceneview.db", "Path to sqlite database")
	descriptionFile  = flag.String("description", "", "Robot description YAML file")
	displayName      = flag.String("name", "planning_scene", "Display name")
	feedAddr         = flag.String("feed-addr", feed.DefaultConfig().ListenAddr, "Scene feed gRPC listen address")
	listen           = flag.String("listen", ":8080", "Debug HTTP listen address (empty to disable)")
	planningFrame    = flag.String("planning-frame", "", "Planning frame to register as a static child of the fixed frame")
	snapshotDir      = flag.String("snapshot-dir", "", "Directory for rendered PNG snapshots (empty to store in the database only)")
	snapshotInterval = flag.Duration("snapshot-interval", 10*time.Second, "Interval between render snapshots (0 to disable)")
	showVersion      = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("sceneview", version.String())
		return
	}
	log.Printf("sceneview %s", version.String())

	opts := options{
		configPath:       *configPath,
		dbPath:           *dbPath,
		descriptionFile:  *descriptionFile,
		displayName:      *displayName,
		feedAddr:         *feedAddr,
		listen:           *listen,
		planningFrame:    *planningFrame,
		snapshotDir:      *snapshotDir,
		snapshotInterval: *snapshotInterval,
	}
	if err := opts.validate(); err != nil {
		log.Fatal(err)
	}
	if opts.snapshotDir != "" {
		if err := os.MkdirAll(opts.snapshotDir, 0o755); err != nil {
			log.Fatalf("failed to create snapshot dir: %v", err)
		}
	}

	a, err := newApp(opts)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx); err != nil {
		log.Printf("sceneview: %v", err)
	}
	log.Print("graceful shutdown complete")
}

func (o options) validate() error {
	if o.dbPath == "" {
		return errors.New("db-path is required")
	}
	if o.displayName == "" {
		return errors.New("name is required")
	}
	if o.feedAddr == "" {
		return errors.New("feed-addr is required")
	}
	if o.snapshotInterval < 0 {
		return errors.New("snapshot-interval must not be negative")
	}
	return nil
}
