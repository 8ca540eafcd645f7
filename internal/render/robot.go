package render

import (
	"fmt"
	"sort"
	"sync"

	"github.com/banshee-data/sceneview/internal/display"
	"github.com/banshee-data/sceneview/internal/geom"
	"github.com/banshee-data/sceneview/internal/kinematic"
	"github.com/banshee-data/sceneview/internal/scene"
)

// DefaultLinkColor is the intrinsic material of every loaded link.
var DefaultLinkColor = geom.Color{R: 0.8, G: 0.8, B: 0.8}

var (
	_ display.Robot     = (*Robot)(nil)
	_ display.Link      = (*RobotLink)(nil)
	_ display.SceneNode = (*Node)(nil)
)

// RobotLink is one rigid body of a loaded robot.
type RobotLink struct {
	name        string
	hasGeometry bool
	intrinsic   geom.Color

	mu       sync.Mutex
	override *geom.Color
	pose     geom.Pose
}

// Name returns the link name.
func (l *RobotLink) Name() string { return l.name }

// HasGeometry reports whether the link has anything to draw.
func (l *RobotLink) HasGeometry() bool { return l.hasGeometry }

// SetColor replaces the intrinsic material.
func (l *RobotLink) SetColor(c geom.Color) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.override = &c
}

// UnsetColor restores the intrinsic material.
func (l *RobotLink) UnsetColor() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.override = nil
}

// Color returns the colour the link is drawn with.
func (l *RobotLink) Color() geom.Color {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.override != nil {
		return *l.override
	}
	return l.intrinsic
}

// Overridden reports whether an override is active.
func (l *RobotLink) Overridden() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.override != nil
}

// Pose returns the link pose in the planning frame.
func (l *RobotLink) Pose() geom.Pose {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pose
}

func (l *RobotLink) setPose(p geom.Pose) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pose = p
}

// Robot is a renderable robot hanging off a scene node.
type Robot struct {
	node *Node

	mu    sync.RWMutex
	model *kinematic.Model
	links map[string]*RobotLink
	alpha float64
}

// NewRobot attaches a robot node under parent.
func NewRobot(parent *Node) *Robot {
	return &Robot{
		node:  parent.NewChild("robot"),
		links: make(map[string]*RobotLink),
		alpha: 1,
	}
}

// Node returns the robot's scene node.
func (r *Robot) Node() *Node { return r.node }

// Load replaces all links with those of model, at identity poses and with
// intrinsic materials.
func (r *Robot) Load(model *kinematic.Model) error {
	if model == nil {
		return fmt.Errorf("cannot load a nil robot model")
	}
	withGeometry := make(map[string]bool)
	for _, name := range model.LinkNamesWithCollisionGeometry() {
		withGeometry[name] = true
	}

	links := make(map[string]*RobotLink, len(withGeometry))
	for _, name := range model.LinkNames() {
		links[name] = &RobotLink{
			name:        name,
			hasGeometry: withGeometry[name],
			intrinsic:   DefaultLinkColor,
			pose:        geom.Identity(),
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.model = model
	r.links = links
	return nil
}

// Update moves links to the poses in state. Links the state does not
// mention keep their pose.
func (r *Robot) Update(state scene.RobotState) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, l := range r.links {
		if p, ok := state.LinkPose(name); ok {
			l.setPose(p)
		}
	}
}

// Clear drops the model and its links.
func (r *Robot) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.model = nil
	r.links = make(map[string]*RobotLink)
}

// SetAlpha sets the robot transparency.
func (r *Robot) SetAlpha(alpha float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alpha = alpha
}

// Alpha returns the robot transparency.
func (r *Robot) Alpha() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.alpha
}

// SetVisible shows or hides the robot.
func (r *Robot) SetVisible(v bool) { r.node.SetVisible(v) }

// Visible reports whether the robot is shown.
func (r *Robot) Visible() bool { return r.node.Shown() }

// Link looks up a link by name.
func (r *Robot) Link(name string) (display.Link, bool) {
	l, ok := r.RobotLink(name)
	if !ok {
		return nil, false
	}
	return l, true
}

// RobotLink looks up the concrete link by name.
func (r *Robot) RobotLink(name string) (*RobotLink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.links[name]
	return l, ok
}

// Links returns all links sorted by name.
func (r *Robot) Links() []*RobotLink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*RobotLink, 0, len(r.links))
	for _, l := range r.links {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Model returns the loaded model, or nil.
func (r *Robot) Model() *kinematic.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.model
}
