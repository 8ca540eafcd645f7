package display

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/sceneview/internal/geom"
	"github.com/banshee-data/sceneview/internal/kinematic"
	"github.com/banshee-data/sceneview/internal/monitoring"
	"github.com/banshee-data/sceneview/internal/scene"
)

var logf = monitoring.Component("Display")

// StatusLevel grades the display status.
type StatusLevel int

const (
	StatusOK StatusLevel = iota
	StatusWarn
	StatusError
)

func (l StatusLevel) String() string {
	switch l {
	case StatusOK:
		return "ok"
	case StatusWarn:
		return "warn"
	default:
		return "error"
	}
}

// Status is the persistent, user-visible state of the display.
type Status struct {
	Level StatusLevel
	Name  string
	Text  string
}

const statusName = "PlanningScene"

const (
	statusLoaded  = "Planning Scene Loaded Successfully"
	statusNoScene = "No Planning Scene Loaded"
	defaultScene  = "(noname)"
	monitorSuffix = "_planning_scene_monitor"
)

// Snapshot is a read-only summary of a display for status pages.
type Snapshot struct {
	Name       string
	Enabled    bool
	Status     Status
	SceneName  string
	RootLink   string
	FixedFrame string
	Settings   Settings
	Offset     *geom.Pose
	Overrides  []string
	Throttle   ThrottleStats
	Dirty      bool
}

// Display coordinates one planning scene display instance.
//
// Lifecycle and property methods are meant to be called from the host's
// tick goroutine (see Runner.Do); QueueRender and the update callback may
// be called from anywhere.
type Display struct {
	name string
	host Host

	gate     *UpdateGate
	throttle *RenderThrottle
	colors   *ColorOverrides
	anchor   *FrameAnchor

	mu         sync.Mutex
	settings   Settings
	enabled    bool
	status     Status
	source     UpdateSource
	renderer   SceneRenderer
	fixedFrame string
	sceneName  string
	rootLink   string
}

// New builds a disabled display. An empty name gets a generated one.
func New(name string, host Host, settings Settings) (*Display, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid display settings: %w", err)
	}
	if host.Robot == nil || host.SceneNode == nil || host.GeometryNode == nil {
		return nil, fmt.Errorf("display host needs a robot, a scene node and a geometry node")
	}
	if host.NewSource == nil || host.NewRenderer == nil {
		return nil, fmt.Errorf("display host needs source and renderer factories")
	}
	if name == "" {
		name = "planning_scene_" + uuid.NewString()[:8]
	}

	d := &Display{
		name:       name,
		host:       host,
		gate:       &UpdateGate{},
		colors:     NewColorOverrides(),
		anchor:     NewFrameAnchor(host.Transforms, host.SceneNode),
		settings:   settings,
		fixedFrame: host.FixedFrame,
		sceneName:  defaultScene,
		status:     Status{Level: StatusWarn, Name: statusName, Text: statusNoScene},
	}
	d.throttle = NewRenderThrottle(d.gate, settings.RenderInterval, d.renderScene)

	host.GeometryNode.SetVisible(settings.SceneVisible)
	host.Robot.SetVisible(settings.RobotVisible)
	host.Robot.SetAlpha(settings.RobotAlpha)
	return d, nil
}

// Name returns the display name.
func (d *Display) Name() string { return d.name }

// Gate exposes the update gate.
func (d *Display) Gate() *UpdateGate { return d.gate }

// Colors exposes the colour override registry.
func (d *Display) Colors() *ColorOverrides { return d.colors }

// Settings returns a copy of the current settings.
func (d *Display) Settings() Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settings
}

// Status returns the persistent status.
func (d *Display) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Enabled reports whether the display is enabled.
func (d *Display) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// Offset returns the last good frame offset.
func (d *Display) Offset() (geom.Pose, bool) {
	return d.anchor.Offset()
}

// Snapshot summarises the display.
func (d *Display) Snapshot() Snapshot {
	d.mu.Lock()
	snap := Snapshot{
		Name:       d.name,
		Enabled:    d.enabled,
		Status:     d.status,
		SceneName:  d.sceneName,
		RootLink:   d.rootLink,
		FixedFrame: d.fixedFrame,
		Settings:   d.settings,
	}
	d.mu.Unlock()

	if p, ok := d.anchor.Offset(); ok {
		snap.Offset = &p
	}
	snap.Overrides = d.colors.Links()
	snap.Throttle = d.throttle.Stats()
	snap.Dirty = d.gate.Dirty()
	return snap
}

// Enable loads the robot model, starts the feed and shows the display.
func (d *Display) Enable() {
	d.mu.Lock()
	d.enabled = true
	st := d.settings
	d.mu.Unlock()

	d.loadRobotModel()

	d.host.Robot.SetVisible(st.RobotVisible)
	d.host.GeometryNode.SetVisible(st.SceneVisible)
}

// Disable stops the feed and hides every owned node. Settings and colour
// overrides are kept. A render already running is allowed to finish.
func (d *Display) Disable() {
	d.mu.Lock()
	d.enabled = false
	src := d.source
	d.mu.Unlock()

	if src != nil {
		src.StopSceneMonitor()
	}
	d.host.GeometryNode.SetVisible(false)
	d.host.Robot.SetVisible(false)
}

// Reset drops renderer and robot state and reloads everything.
func (d *Display) Reset() {
	d.mu.Lock()
	d.renderer = nil
	d.mu.Unlock()
	d.host.Robot.Clear()

	d.loadRobotModel()

	st := d.Settings()
	d.host.Robot.SetVisible(st.RobotVisible)
}

// Close releases the update source.
func (d *Display) Close() {
	d.releaseSource()
}

func (d *Display) releaseSource() {
	d.mu.Lock()
	src := d.source
	d.source = nil
	d.renderer = nil
	d.mu.Unlock()

	// detach first so no render can start on the old source
	d.gate.SetSource(nil)
	if src != nil {
		src.Close()
	}
}

func (d *Display) setStatus(level StatusLevel, text string) {
	d.mu.Lock()
	d.status = Status{Level: level, Name: statusName, Text: text}
	d.mu.Unlock()
}

// loadRobotModel replaces the update source. Previous source and renderer
// are released before the new source is built.
func (d *Display) loadRobotModel() {
	d.releaseSource()

	st := d.Settings()
	src, err := d.host.NewSource(st.RobotDescription, d.name+monitorSuffix)
	if err != nil {
		logf("%s: cannot create scene monitor for %q: %v", d.name, st.RobotDescription, err)
		d.setStatus(StatusError, statusNoScene)
		return
	}
	if src == nil {
		d.setStatus(StatusError, statusNoScene)
		return
	}
	if s := src.Scene(); s == nil || !s.IsConfigured() {
		src.Close()
		d.setStatus(StatusError, statusNoScene)
		return
	}

	src.AddUpdateCallback(d.sceneMonitorReceivedUpdate)
	if err := src.StartSceneMonitor(st.SceneTopic); err != nil {
		logf("%s: %v", d.name, err)
	}
	renderer := d.host.NewRenderer(d.host.GeometryNode, d.host.Robot)

	d.mu.Lock()
	d.source = src
	d.renderer = renderer
	d.mu.Unlock()
	d.gate.SetSource(src)

	d.onRobotModelLoaded(src.Model())
	d.setStatus(StatusOK, statusLoaded)
	d.gate.NotifyUpdate()
}

func (d *Display) onRobotModelLoaded(model *kinematic.Model) {
	if err := d.host.Robot.Load(model); err != nil {
		logf("%s: robot model %q failed to load: %v", d.name, model.Name(), err)
	}

	err := d.gate.WithSceneLocked(func(s *scene.Scene) error {
		d.host.Robot.Update(s.CurrentState())
		d.refreshProperties(s)
		return nil
	})
	if err != nil && !errors.Is(err, ErrSceneUnavailable) {
		logf("%s: %v", d.name, err)
	}

	d.colors.Reapply(d.host.Robot)
	d.calculateOffsetPosition()
}

// refreshProperties copies read-only scene properties; the scene lock must
// be held.
func (d *Display) refreshProperties(s *scene.Scene) {
	root := ""
	if m := s.Model(); m != nil {
		root = m.RootLinkName()
	}
	d.mu.Lock()
	d.sceneName = s.Name()
	d.rootLink = root
	d.mu.Unlock()
}

// sceneMonitorReceivedUpdate runs on the feed's goroutine.
func (d *Display) sceneMonitorReceivedUpdate(scene.UpdateKind) {
	d.gate.NotifyUpdate()
}

// QueueRender marks the scene dirty so the next due tick redraws it.
func (d *Display) QueueRender() {
	d.gate.NotifyUpdate()
}

// Update is the host tick. wallDelta is the wall time since the previous
// tick.
func (d *Display) Update(wallDelta time.Duration) bool {
	d.mu.Lock()
	src := d.source
	enabled := d.enabled
	interval := d.settings.RenderInterval
	d.mu.Unlock()

	if src == nil || !enabled {
		return false
	}
	d.throttle.SetInterval(interval)
	return d.throttle.Tick(wallDelta)
}

// renderScene is the throttle's draw call; the scene lock is held.
func (d *Display) renderScene(s *scene.Scene) error {
	d.mu.Lock()
	st := d.settings
	r := d.renderer
	d.mu.Unlock()

	defer d.host.GeometryNode.SetVisible(st.SceneVisible)
	d.refreshProperties(s)
	if r == nil {
		return nil
	}
	return r.RenderScene(s, st.SceneColor, st.AttachedBodyColor, st.SceneAlpha, st.RobotAlpha)
}

// FixedFrameChanged re-anchors the scene in a new host reference frame.
func (d *Display) FixedFrameChanged(frame string) {
	d.mu.Lock()
	d.fixedFrame = frame
	d.mu.Unlock()
	d.calculateOffsetPosition()
}

// FixedFrame returns the host reference frame the scene is anchored in.
func (d *Display) FixedFrame() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fixedFrame
}

// Reanchor recomputes the scene offset in the current fixed frame, for
// when new transforms may have made it resolvable.
func (d *Display) Reanchor() {
	d.calculateOffsetPosition()
}

// calculateOffsetPosition re-anchors the scene; failures keep the previous
// offset.
func (d *Display) calculateOffsetPosition() {
	var planningFrame string
	err := d.gate.WithSceneLocked(func(s *scene.Scene) error {
		planningFrame = s.PlanningFrame()
		return nil
	})
	if err != nil {
		return
	}

	d.mu.Lock()
	fixed := d.fixedFrame
	d.mu.Unlock()
	if fixed == "" {
		return
	}

	if err := d.anchor.Recompute(fixed, planningFrame); err != nil {
		if errors.Is(err, ErrTransformFailed) {
			logf("Error transforming from frame '%s' to frame '%s': %v", planningFrame, fixed, err)
		}
		return
	}
}

// SetSceneName renames the displayed scene.
func (d *Display) SetSceneName(name string) {
	err := d.gate.WithSceneLocked(func(s *scene.Scene) error {
		s.SetName(name)
		d.refreshProperties(s)
		return nil
	})
	if err == nil {
		d.QueueRender()
	}
}

// SceneName returns the last observed scene name.
func (d *Display) SceneName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sceneName
}

// RootLinkName returns the root link of the loaded robot.
func (d *Display) RootLinkName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rootLink
}

// SetSceneTopic switches the feed topic, restarting the monitor if one is
// running.
func (d *Display) SetSceneTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("scene topic cannot be empty")
	}
	d.mu.Lock()
	d.settings.SceneTopic = topic
	src := d.source
	enabled := d.enabled
	d.mu.Unlock()

	if src != nil && enabled {
		return src.StartSceneMonitor(topic)
	}
	return nil
}

// SetRobotDescription changes the description parameter and reloads when
// enabled.
func (d *Display) SetRobotDescription(param string) error {
	if param == "" {
		return fmt.Errorf("robot description parameter cannot be empty")
	}
	d.mu.Lock()
	d.settings.RobotDescription = param
	enabled := d.enabled
	d.mu.Unlock()

	if enabled {
		d.Reset()
	}
	return nil
}

// SetSceneVisible shows or hides world geometry.
func (d *Display) SetSceneVisible(visible bool) {
	d.mu.Lock()
	d.settings.SceneVisible = visible
	d.mu.Unlock()
	d.host.GeometryNode.SetVisible(visible)
}

// SetRobotVisible shows or hides the scene robot while enabled.
func (d *Display) SetRobotVisible(visible bool) {
	d.mu.Lock()
	d.settings.RobotVisible = visible
	enabled := d.enabled
	d.mu.Unlock()
	if enabled {
		d.host.Robot.SetVisible(visible)
	}
}

// SetSceneAlpha changes world geometry transparency.
func (d *Display) SetSceneAlpha(alpha float64) error {
	if err := validateAlpha("scene alpha", alpha); err != nil {
		return err
	}
	d.mu.Lock()
	d.settings.SceneAlpha = alpha
	d.mu.Unlock()
	d.QueueRender()
	return nil
}

// SetRobotAlpha changes robot transparency immediately.
func (d *Display) SetRobotAlpha(alpha float64) error {
	if err := validateAlpha("robot alpha", alpha); err != nil {
		return err
	}
	d.mu.Lock()
	d.settings.RobotAlpha = alpha
	d.mu.Unlock()
	d.host.Robot.SetAlpha(alpha)
	return nil
}

// SetSceneColor changes the colour of world objects without their own colour.
func (d *Display) SetSceneColor(c geom.Color) error {
	if err := c.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	d.settings.SceneColor = c
	d.mu.Unlock()
	d.QueueRender()
	return nil
}

// SetAttachedBodyColor changes the colour of attached bodies.
func (d *Display) SetAttachedBodyColor(c geom.Color) error {
	if err := c.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	d.settings.AttachedBodyColor = c
	d.mu.Unlock()
	d.QueueRender()
	return nil
}

// SetRenderInterval changes the minimum wall time between renders.
func (d *Display) SetRenderInterval(interval time.Duration) error {
	if interval < MinRenderInterval {
		return fmt.Errorf("render interval must be at least %v, got %v", MinRenderInterval, interval)
	}
	d.mu.Lock()
	d.settings.RenderInterval = interval
	d.mu.Unlock()
	return nil
}

// SetLinkColor overrides one link. Unknown links are ignored.
func (d *Display) SetLinkColor(link string, c geom.Color) {
	d.withColorLock(func(*kinematic.Model) {
		d.colors.SetLink(d.host.Robot, link, c)
	})
}

// UnsetLinkColor removes a link override.
func (d *Display) UnsetLinkColor(link string) {
	d.withColorLock(func(*kinematic.Model) {
		d.colors.UnsetLink(d.host.Robot, link)
	})
}

// SetGroupColor overrides every link of a group. Without a scene, or for
// an unknown group, nothing changes.
func (d *Display) SetGroupColor(group string, c geom.Color) {
	d.withColorLock(func(m *kinematic.Model) {
		d.colors.SetGroup(d.host.Robot, m, group, c)
	})
}

// UnsetGroupColor removes the overrides of every link of a group.
func (d *Display) UnsetGroupColor(group string) {
	d.withColorLock(func(m *kinematic.Model) {
		d.colors.UnsetGroup(d.host.Robot, m, group)
	})
}

// UnsetAllColors removes the overrides of every link with geometry.
func (d *Display) UnsetAllColors() {
	d.withColorLock(func(m *kinematic.Model) {
		d.colors.UnsetAll(d.host.Robot, m)
	})
}

// withColorLock serialises colour changes with rendering by taking the
// scene lock. Without a scene there is no render to race, and fn gets a nil
// model.
func (d *Display) withColorLock(fn func(m *kinematic.Model)) {
	err := d.gate.WithSceneLocked(func(s *scene.Scene) error {
		fn(s.Model())
		return nil
	})
	if errors.Is(err, ErrSceneUnavailable) {
		fn(nil)
	}
}
