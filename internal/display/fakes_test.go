package display

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sceneview/internal/geom"
	"github.com/banshee-data/sceneview/internal/kinematic"
	"github.com/banshee-data/sceneview/internal/monitoring"
	"github.com/banshee-data/sceneview/internal/scene"
	"github.com/banshee-data/sceneview/internal/tf"
)

func init() {
	monitoring.SetLogger(nil)
}

const armDescription = `
name: arm
links:
  - {name: base_link, visual: true, collision: true}
  - {name: link1, visual: true, collision: true}
  - {name: link2, visual: true}
  - {name: tool0}
joints:
  - {name: j1, parent: base_link, child: link1}
  - {name: j2, parent: link1, child: link2}
  - {name: j3, parent: link2, child: tool0}
groups:
  manipulator: [link1, link2]
  tool: [tool0]
`

func testModel(t *testing.T) *kinematic.Model {
	t.Helper()
	m, err := kinematic.Parse([]byte(armDescription))
	require.NoError(t, err)
	return m
}

// fakeLink records colour calls.
type fakeLink struct {
	mu     sync.Mutex
	color  *geom.Color
	sets   int
	unsets int
}

func (l *fakeLink) SetColor(c geom.Color) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.color = &c
	l.sets++
}

func (l *fakeLink) UnsetColor() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.color = nil
	l.unsets++
}

func (l *fakeLink) counts() (sets, unsets int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sets, l.unsets
}

func (l *fakeLink) current() (geom.Color, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.color == nil {
		return geom.Color{}, false
	}
	return *l.color, true
}

// fakeRobot builds one fakeLink per model link on Load.
type fakeRobot struct {
	mu      sync.Mutex
	links   map[string]*fakeLink
	model   *kinematic.Model
	updates int
	clears  int
	alpha   float64
	visible bool
	loadErr error
}

func newFakeRobot() *fakeRobot {
	return &fakeRobot{links: make(map[string]*fakeLink)}
}

func (r *fakeRobot) Load(model *kinematic.Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadErr != nil {
		return r.loadErr
	}
	r.model = model
	r.links = make(map[string]*fakeLink)
	for _, name := range model.LinkNames() {
		r.links[name] = &fakeLink{}
	}
	return nil
}

func (r *fakeRobot) Update(scene.RobotState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
}

func (r *fakeRobot) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
	r.model = nil
	r.links = make(map[string]*fakeLink)
}

func (r *fakeRobot) SetAlpha(a float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alpha = a
}

func (r *fakeRobot) SetVisible(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visible = v
}

func (r *fakeRobot) Link(name string) (Link, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[name]
	if !ok {
		return nil, false
	}
	return l, true
}

func (r *fakeRobot) link(name string) *fakeLink {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.links[name]
}

func (r *fakeRobot) isVisible() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.visible
}

// fakeNode records pose and visibility.
type fakeNode struct {
	mu       sync.Mutex
	pose     geom.Pose
	poseSets int
	visible  bool
}

func (n *fakeNode) SetPose(p geom.Pose) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pose = p
	n.poseSets++
}

func (n *fakeNode) SetVisible(v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.visible = v
}

func (n *fakeNode) isVisible() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.visible
}

type renderCall struct {
	sceneName     string
	envColor      geom.Color
	attachedColor geom.Color
	sceneAlpha    float64
	robotAlpha    float64
}

// fakeRenderer records draws. It fails or panics on demand.
type fakeRenderer struct {
	mu      sync.Mutex
	calls   []renderCall
	err     error
	panicky bool
}

func (r *fakeRenderer) RenderScene(s *scene.Scene, env, attached geom.Color, sceneAlpha, robotAlpha float64) error {
	r.mu.Lock()
	r.calls = append(r.calls, renderCall{
		sceneName:     s.Name(),
		envColor:      env,
		attachedColor: attached,
		sceneAlpha:    sceneAlpha,
		robotAlpha:    robotAlpha,
	})
	err, panicky := r.err, r.panicky
	r.mu.Unlock()

	if panicky {
		panic("mesh upload failed")
	}
	return err
}

func (r *fakeRenderer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *fakeRenderer) last() renderCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

func (r *fakeRenderer) set(err error, panicky bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
	r.panicky = panicky
}

// fakeTransforms scripts the transform service.
type fakeTransforms struct {
	mu        sync.Mutex
	stamp     time.Time
	commonErr error
	can       bool
	pose      geom.Pose
	poseErr   error
}

func (f *fakeTransforms) LatestCommonTime(target, source string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stamp, f.commonErr
}

func (f *fakeTransforms) CanTransform(target, source string, at time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.can
}

func (f *fakeTransforms) TransformPose(target string, p tf.StampedPose) (tf.StampedPose, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.poseErr != nil {
		return tf.StampedPose{}, f.poseErr
	}
	return tf.StampedPose{Frame: target, Stamp: p.Stamp, Pose: f.pose.Compose(p.Pose)}, nil
}

// fakeFeed is an in-memory scene.Source.
type fakeFeed struct {
	mu       sync.Mutex
	handlers map[string]func(scene.Update)
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{handlers: make(map[string]func(scene.Update))}
}

func (f *fakeFeed) Subscribe(topic string, h func(scene.Update)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = h
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, topic)
	}, nil
}

func (f *fakeFeed) publish(topic string, u scene.Update) bool {
	f.mu.Lock()
	h := f.handlers[topic]
	f.mu.Unlock()
	if h == nil {
		return false
	}
	h(u)
	return true
}

func (f *fakeFeed) subscribed(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[topic]
	return ok
}

// countingSource wraps a scene with lock counters.
type countingSource struct {
	mu      sync.Mutex
	scene   *scene.Scene
	locks   int
	unlocks int
}

func (c *countingSource) Lock() {
	c.mu.Lock()
	c.locks++
}

func (c *countingSource) Unlock() {
	c.unlocks++
	c.mu.Unlock()
}

func (c *countingSource) Scene() *scene.Scene { return c.scene }

var errBoom = errors.New("boom")

// harness wires a Display to fakes and real monitors.
type harness struct {
	display    *Display
	robot      *fakeRobot
	root       *fakeNode
	geometry   *fakeNode
	transforms *fakeTransforms
	feed       *fakeFeed
	model      *kinematic.Model

	mu        sync.Mutex
	monitors  []*scene.Monitor
	renderers []*fakeRenderer
	sourceErr error
	noModel   bool
}

func newHarness(t *testing.T, settings Settings) *harness {
	t.Helper()
	h := &harness{
		robot:      newFakeRobot(),
		root:       &fakeNode{},
		geometry:   &fakeNode{},
		transforms: &fakeTransforms{stamp: time.Unix(10, 0), can: true, pose: geom.Identity()},
		feed:       newFakeFeed(),
		model:      testModel(t),
	}
	host := Host{
		SceneNode:    h.root,
		GeometryNode: h.geometry,
		Robot:        h.robot,
		Transforms:   h.transforms,
		NewSource:    h.newSource,
		NewRenderer:  h.newRenderer,
		FixedFrame:   "world",
	}
	d, err := New("test_display", host, settings)
	require.NoError(t, err)
	h.display = d
	t.Cleanup(d.Close)
	return h
}

func (h *harness) newSource(param, name string) (UpdateSource, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sourceErr != nil {
		return nil, h.sourceErr
	}
	model := h.model
	if h.noModel {
		model = nil
	}
	m := scene.NewMonitor(name, model, h.feed)
	h.monitors = append(h.monitors, m)
	return m, nil
}

func (h *harness) newRenderer(SceneNode, Robot) SceneRenderer {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := &fakeRenderer{}
	h.renderers = append(h.renderers, r)
	return r
}

func (h *harness) renderer() *fakeRenderer {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.renderers) == 0 {
		return nil
	}
	return h.renderers[len(h.renderers)-1]
}

func (h *harness) monitor() *scene.Monitor {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.monitors) == 0 {
		return nil
	}
	return h.monitors[len(h.monitors)-1]
}

func strPtr(s string) *string { return &s }
