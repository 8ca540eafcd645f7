package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/sceneview/internal/config"
	"github.com/banshee-data/sceneview/internal/display"
	"github.com/banshee-data/sceneview/internal/feed"
	"github.com/banshee-data/sceneview/internal/geom"
	"github.com/banshee-data/sceneview/internal/httputil"
	"github.com/banshee-data/sceneview/internal/kinematic"
	"github.com/banshee-data/sceneview/internal/render"
	"github.com/banshee-data/sceneview/internal/scene"
	"github.com/banshee-data/sceneview/internal/store"
	"github.com/banshee-data/sceneview/internal/tf"
	"github.com/banshee-data/sceneview/internal/timeutil"
	"github.com/banshee-data/sceneview/internal/version"
)

// options are the resolved command-line flags.
type options struct {
	configPath       string
	dbPath           string
	descriptionFile  string
	displayName      string
	feedAddr         string
	listen           string
	planningFrame    string
	snapshotDir      string
	snapshotInterval time.Duration
}

// app wires one planning scene display to the feed server, the store and
// the debug pages.
type app struct {
	opts  options
	cfg   *config.DisplayConfig
	clock timeutil.Clock

	hub        *feed.Hub
	feedServer *feed.Server
	transforms *tf.Buffer
	params     *kinematic.Params
	db         *store.Store

	root     *render.Node
	geometry *render.Node
	robot    *render.Robot
	renderer atomic.Pointer[render.PlanningSceneRender]

	display *display.Display
	runner  *display.Runner
}

func newApp(opts options) (*app, error) {
	a := &app{opts: opts, clock: timeutil.RealClock{}}

	db, err := store.Open(opts.dbPath)
	if err != nil {
		return nil, err
	}
	a.db = db

	cfg, err := a.loadConfig()
	if err != nil {
		db.Close()
		return nil, err
	}
	a.cfg = cfg
	settings := cfg.Settings()

	a.params = kinematic.NewParams()
	if opts.descriptionFile != "" {
		if err := a.params.LoadFile(settings.RobotDescription, opts.descriptionFile); err != nil {
			db.Close()
			return nil, err
		}
	}

	a.transforms = tf.NewBuffer(0)
	fixedFrame := cfg.GetFixedFrame()
	if opts.planningFrame != "" && opts.planningFrame != fixedFrame {
		err := a.transforms.SetStaticTransform(tf.StampedTransform{
			Parent:    fixedFrame,
			Child:     opts.planningFrame,
			Stamp:     a.clock.Now(),
			Transform: geom.Identity(),
		})
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	a.hub = feed.NewHub()
	feedCfg := feed.DefaultConfig()
	feedCfg.ListenAddr = opts.feedAddr
	a.feedServer = feed.NewServer(feedCfg, a.hub)

	a.root = render.NewNode("planning_scene")
	a.geometry = a.root.NewChild("planning_scene_geometry")
	a.robot = render.NewRobot(a.root)

	host := display.Host{
		SceneNode:    a.root,
		GeometryNode: a.geometry,
		Robot:        a.robot,
		Transforms:   a.transforms,
		FixedFrame:   fixedFrame,
		NewSource:    a.newSource,
		NewRenderer: func(display.SceneNode, display.Robot) display.SceneRenderer {
			r := render.NewPlanningSceneRender(a.geometry, a.robot, a.clock)
			a.renderer.Store(r)
			return r
		},
	}
	d, err := display.New(opts.displayName, host, settings)
	if err != nil {
		db.Close()
		return nil, err
	}
	a.display = d
	a.runner = display.NewRunner(d, a.clock, cfg.GetTickPeriod())
	return a, nil
}

// loadConfig prefers the config stored for the display, then the config
// file, then the built-in defaults.
func (a *app) loadConfig() (*config.DisplayConfig, error) {
	cfg, err := a.db.LoadDisplayConfig(context.Background(), a.opts.displayName)
	if err == nil {
		log.Printf("using stored config for display %q", a.opts.displayName)
		return cfg, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if a.opts.configPath == "" {
		return config.DefaultDisplayConfig(), nil
	}
	cfg, err = config.LoadDisplayConfig(a.opts.configPath)
	if err != nil {
		return nil, err
	}
	log.Printf("loaded display config from %s", a.opts.configPath)
	return cfg, nil
}

func (a *app) newSource(robotDescription, name string) (display.UpdateSource, error) {
	model, err := a.params.LoadModel(robotDescription)
	if err != nil {
		return nil, err
	}
	return scene.NewMonitor(name, model, a.hub), nil
}

// run serves until ctx is cancelled, then shuts everything down.
func (a *app) run(ctx context.Context) error {
	if err := a.feedServer.Start(); err != nil {
		return err
	}
	defer a.feedServer.Stop()

	a.display.Enable()
	a.restoreLinkColors()
	// subscribed after the display's monitor so the scene's planning frame
	// is current when the re-anchor runs
	unwatch, err := a.hub.Subscribe(a.display.Settings().SceneTopic, a.applyTransforms)
	if err != nil {
		return err
	}
	defer unwatch()

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.runner.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("display runner: %v", err)
		}
	}()

	if a.opts.snapshotInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.snapshotLoop(ctx)
		}()
	}

	var server *http.Server
	if a.opts.listen != "" {
		mux := http.NewServeMux()
		if err := a.attachDebugRoutes(mux); err != nil {
			return err
		}
		server = &http.Server{Addr: a.opts.listen, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("HTTP server error: %v", err)
				cancel()
			}
		}()
		log.Printf("debug pages on http://%s/debug/", a.opts.listen)
	}

	<-ctx.Done()

	if server != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("failed to shut down HTTP server: %v", err)
		}
		done()
	}
	wg.Wait()
	a.display.Disable()
	return nil
}

// applyTransforms records the frame transforms carried by u and queues a
// re-anchor on the tick goroutine.
func (a *app) applyTransforms(u scene.Update) {
	if len(u.Transforms) == 0 {
		return
	}
	applied := 0
	for _, ft := range u.Transforms {
		st := tf.StampedTransform{
			Parent:    ft.Parent,
			Child:     ft.Child,
			Stamp:     ft.Stamp,
			Transform: ft.Pose,
		}
		var err error
		if ft.Static {
			err = a.transforms.SetStaticTransform(st)
		} else {
			err = a.transforms.SetTransform(st)
		}
		if err != nil {
			log.Printf("dropping transform %s -> %s: %v", ft.Parent, ft.Child, err)
			continue
		}
		applied++
	}
	if applied == 0 {
		return
	}
	if !a.runner.Post(func(d *display.Display) { d.Reanchor() }) {
		log.Printf("display busy, re-anchor deferred to the next transform")
	}
}

// setFixedFrame re-anchors the display in frame on the tick goroutine.
func (a *app) setFixedFrame(ctx context.Context, frame string) error {
	return a.runner.Do(ctx, func(d *display.Display) { d.FixedFrameChanged(frame) })
}

// restoreLinkColors applies the config's link overrides in link order.
func (a *app) restoreLinkColors() {
	links := make([]string, 0, len(a.cfg.LinkColors))
	for link := range a.cfg.LinkColors {
		links = append(links, link)
	}
	sort.Strings(links)
	for _, link := range links {
		a.display.SetLinkColor(link, a.cfg.LinkColors[link])
	}
}

// currentConfig captures the display's live settings and overrides.
func (a *app) currentConfig() *config.DisplayConfig {
	cfg := config.FromSettings(a.display.Settings())
	cfg.FixedFrame = a.cfg.FixedFrame
	if f := a.display.FixedFrame(); f != "" && f != a.cfg.GetFixedFrame() {
		cfg.FixedFrame = &f
	}
	cfg.TickPeriod = a.cfg.TickPeriod
	colors := a.display.Colors()
	for _, link := range colors.Links() {
		if c, ok := colors.Get(link); ok {
			if cfg.LinkColors == nil {
				cfg.LinkColors = make(map[string]geom.Color)
			}
			cfg.LinkColors[link] = c
		}
	}
	return cfg
}

func (a *app) snapshotLoop(ctx context.Context) {
	ticker := a.clock.NewTicker(a.opts.snapshotInterval)
	defer ticker.Stop()
	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			seq, err := a.recordSnapshot(ctx, lastSeq)
			if err != nil {
				log.Printf("snapshot: %v", err)
				continue
			}
			lastSeq = seq
		}
	}
}

// recordSnapshot stores the latest rendered frame if it is newer than
// lastSeq and returns the sequence now recorded.
func (a *app) recordSnapshot(ctx context.Context, lastSeq uint64) (uint64, error) {
	r := a.renderer.Load()
	if r == nil {
		return lastSeq, nil
	}
	f, ok := r.Last()
	if !ok || f.Seq == lastSeq {
		return lastSeq, nil
	}
	var buf bytes.Buffer
	if err := render.WritePNG(f, &buf); err != nil {
		return lastSeq, err
	}
	if _, err := a.db.RecordSnapshot(ctx, a.display.Name(), f, buf.Bytes()); err != nil {
		return lastSeq, err
	}
	if a.opts.snapshotDir != "" {
		name := fmt.Sprintf("%s-%06d.png", a.display.Name(), f.Seq)
		if err := os.WriteFile(filepath.Join(a.opts.snapshotDir, name), buf.Bytes(), 0o644); err != nil {
			return f.Seq, err
		}
	}
	return f.Seq, nil
}

type fixedFrameResponse struct {
	FixedFrame string     `json:"fixed_frame"`
	Offset     *geom.Pose `json:"offset,omitempty"`
}

func (a *app) attachDebugRoutes(mux *http.ServeMux) error {
	if err := a.db.AttachAdminRoutes(mux); err != nil {
		return err
	}
	debug := tsweb.Debugger(mux)
	debug.KV("Version", version.String())
	debug.KVFunc("Display status", func() any { return a.display.Status() })
	debug.KVFunc("Feed topics", func() any { return a.hub.Topics() })
	debug.KVFunc("Feed hub", func() any { return a.hub.Stats() })
	debug.KVFunc("Feed server", func() any { return a.feedServer.Stats() })
	debug.KVFunc("Throttle", func() any { return a.display.Snapshot().Throttle })

	debug.Handle("display", "Display state (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, a.display.Snapshot())
	}))
	debug.Handle("fixed-frame", "Fixed frame and scene offset (POST frame= to re-anchor)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
		case http.MethodPost:
			frame := r.FormValue("frame")
			if frame == "" {
				httputil.WriteJSONError(w, http.StatusBadRequest, "frame is required")
				return
			}
			if err := a.setFixedFrame(r.Context(), frame); err != nil {
				httputil.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
				return
			}
		default:
			httputil.WriteJSONError(w, http.StatusMethodNotAllowed, "use GET or POST")
			return
		}
		resp := fixedFrameResponse{FixedFrame: a.display.FixedFrame()}
		if off, ok := a.display.Offset(); ok {
			resp.Offset = &off
		}
		httputil.WriteJSON(w, resp)
	}))
	debug.Handle("frame.png", "Last rendered frame", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rd := a.renderer.Load()
		if rd == nil {
			httputil.WriteJSONError(w, http.StatusNotFound, "nothing rendered yet")
			return
		}
		f, ok := rd.Last()
		if !ok {
			httputil.WriteJSONError(w, http.StatusNotFound, "nothing rendered yet")
			return
		}
		var buf bytes.Buffer
		if err := render.WritePNG(f, &buf); err != nil {
			httputil.WriteError(w, err, nil)
			return
		}
		httputil.WritePNG(w, buf.Bytes())
	}))
	return nil
}

// close releases the display and persists its current settings.
func (a *app) close() {
	if err := a.db.SaveDisplayConfig(context.Background(), a.display.Name(), a.currentConfig()); err != nil {
		log.Printf("failed to save display config: %v", err)
	}
	a.display.Close()
	if err := a.db.Close(); err != nil {
		log.Printf("failed to close database: %v", err)
	}
}
