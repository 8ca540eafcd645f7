// Package scene holds the planning scene snapshot and the monitor that keeps
// it current from an update feed.
//
// A Scene is not safe for concurrent use on its own; every read and write
// goes through Monitor.Lock/Unlock.
package scene

import (
	"fmt"
	"sort"
	"time"

	"github.com/banshee-data/sceneview/internal/geom"
	"github.com/banshee-data/sceneview/internal/kinematic"
)

// UpdateKind is a bitmask describing what an update touched.
type UpdateKind uint8

const (
	UpdateNone       UpdateKind = 0
	UpdateState      UpdateKind = 1 << 0 // robot link poses
	UpdateTransforms UpdateKind = 1 << 1 // planning frame, frame transforms
	UpdateGeometry   UpdateKind = 1 << 2 // world objects, attached bodies, name
	UpdateScene                 = UpdateState | UpdateTransforms | UpdateGeometry
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateNone:
		return "none"
	case UpdateScene:
		return "scene"
	}
	s := ""
	for _, part := range []struct {
		bit  UpdateKind
		name string
	}{{UpdateState, "state"}, {UpdateTransforms, "transforms"}, {UpdateGeometry, "geometry"}} {
		if k&part.bit != 0 {
			if s != "" {
				s += "|"
			}
			s += part.name
		}
	}
	return s
}

// Shape is a primitive collision shape. Dimensions follow the primitive:
// box [x y z], sphere [radius], cylinder [height radius], mesh [].
type Shape struct {
	Kind       string    `json:"kind"`
	Dimensions []float64 `json:"dimensions,omitempty"`
	Mesh       string    `json:"mesh,omitempty"`
}

func (s Shape) validate() error {
	want := map[string]int{"box": 3, "sphere": 1, "cylinder": 2, "mesh": 0}
	n, ok := want[s.Kind]
	if !ok {
		return fmt.Errorf("unknown shape kind %q", s.Kind)
	}
	if len(s.Dimensions) != n {
		return fmt.Errorf("%s needs %d dimensions, got %d", s.Kind, n, len(s.Dimensions))
	}
	for _, d := range s.Dimensions {
		if d <= 0 {
			return fmt.Errorf("%s dimensions must be positive", s.Kind)
		}
	}
	if s.Kind == "mesh" && s.Mesh == "" {
		return fmt.Errorf("mesh shape needs a mesh resource")
	}
	return nil
}

// Object is a world collision object, posed in the planning frame.
type Object struct {
	ID    string      `json:"id"`
	Pose  geom.Pose   `json:"pose"`
	Shape Shape       `json:"shape"`
	Color *geom.Color `json:"color,omitempty"`
}

// AttachedBody is an object rigidly attached to a robot link, posed
// relative to that link.
type AttachedBody struct {
	ID    string    `json:"id"`
	Link  string    `json:"link"`
	Pose  geom.Pose `json:"pose"`
	Shape Shape     `json:"shape"`
}

// FrameTransform places Child in Parent at Stamp. The scene does not keep
// transforms; they are forwarded to the host's transform buffer.
type FrameTransform struct {
	Parent string    `json:"parent"`
	Child  string    `json:"child"`
	Stamp  time.Time `json:"stamp"`
	Pose   geom.Pose `json:"pose"`
	Static bool      `json:"static,omitempty"`
}

// Update is a full or incremental change to a scene.
type Update struct {
	// Full replaces the world and attached bodies instead of merging.
	Full          bool                 `json:"full,omitempty"`
	Name          *string              `json:"name,omitempty"`
	PlanningFrame *string              `json:"planning_frame,omitempty"`
	LinkPoses     map[string]geom.Pose `json:"link_poses,omitempty"`
	AddObjects    []Object             `json:"add_objects,omitempty"`
	RemoveObjects []string             `json:"remove_objects,omitempty"`
	Attach        []AttachedBody       `json:"attach,omitempty"`
	Detach        []string             `json:"detach,omitempty"`
	Transforms    []FrameTransform     `json:"transforms,omitempty"`
}

// Kind reports which parts of a scene the update touches.
func (u Update) Kind() UpdateKind {
	if u.Full {
		return UpdateScene
	}
	k := UpdateNone
	if len(u.LinkPoses) > 0 {
		k |= UpdateState
	}
	if u.PlanningFrame != nil || len(u.Transforms) > 0 {
		k |= UpdateTransforms
	}
	if u.Name != nil || len(u.AddObjects) > 0 || len(u.RemoveObjects) > 0 || len(u.Attach) > 0 || len(u.Detach) > 0 {
		k |= UpdateGeometry
	}
	return k
}

// RobotState is the robot configuration carried by a scene: the pose of
// each link in the planning frame.
type RobotState struct {
	LinkPoses map[string]geom.Pose
}

// LinkPose returns the pose of a link, falling back to identity.
func (s RobotState) LinkPose(link string) (geom.Pose, bool) {
	p, ok := s.LinkPoses[link]
	if !ok {
		return geom.Identity(), false
	}
	return p, true
}

// Scene is the environment and robot snapshot being displayed.
type Scene struct {
	name          string
	planningFrame string
	model         *kinematic.Model
	state         map[string]geom.Pose
	objects       map[string]Object
	attached      map[string]AttachedBody
	version       uint64
}

// New returns an empty scene for the model. A nil model yields an
// unconfigured scene that rejects updates.
func New(name string, model *kinematic.Model) *Scene {
	s := &Scene{
		name:     name,
		model:    model,
		state:    make(map[string]geom.Pose),
		objects:  make(map[string]Object),
		attached: make(map[string]AttachedBody),
	}
	if model != nil {
		s.planningFrame = model.RootLinkName()
		for _, l := range model.LinkNames() {
			s.state[l] = geom.Identity()
		}
	}
	return s
}

// IsConfigured reports whether the scene has a kinematic model.
func (s *Scene) IsConfigured() bool { return s.model != nil }

// Name returns the scene name.
func (s *Scene) Name() string { return s.name }

// SetName renames the scene.
func (s *Scene) SetName(name string) { s.name = name }

// PlanningFrame is the frame the scene geometry is expressed in.
func (s *Scene) PlanningFrame() string { return s.planningFrame }

// Model returns the kinematic model, or nil when unconfigured.
func (s *Scene) Model() *kinematic.Model { return s.model }

// Version increments on every applied update.
func (s *Scene) Version() uint64 { return s.version }

// CurrentState returns a copy of the robot state.
func (s *Scene) CurrentState() RobotState {
	poses := make(map[string]geom.Pose, len(s.state))
	for k, v := range s.state {
		poses[k] = v
	}
	return RobotState{LinkPoses: poses}
}

// Objects returns the world objects sorted by id.
func (s *Scene) Objects() []Object {
	out := make([]Object, 0, len(s.objects))
	for _, o := range s.objects {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AttachedBodies returns the attached bodies sorted by id.
func (s *Scene) AttachedBodies() []AttachedBody {
	out := make([]AttachedBody, 0, len(s.attached))
	for _, a := range s.attached {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Apply validates u and applies it. Invalid updates leave the scene untouched.
func (s *Scene) Apply(u Update) (UpdateKind, error) {
	if !s.IsConfigured() {
		return UpdateNone, fmt.Errorf("scene %q is not configured", s.name)
	}
	if err := s.validate(u); err != nil {
		return UpdateNone, err
	}

	if u.Full {
		s.objects = make(map[string]Object)
		s.attached = make(map[string]AttachedBody)
	}
	if u.Name != nil {
		s.name = *u.Name
	}
	if u.PlanningFrame != nil {
		s.planningFrame = *u.PlanningFrame
	}
	for link, p := range u.LinkPoses {
		s.state[link] = p
	}
	for _, id := range u.RemoveObjects {
		delete(s.objects, id)
	}
	for _, o := range u.AddObjects {
		s.objects[o.ID] = o
	}
	for _, id := range u.Detach {
		delete(s.attached, id)
	}
	for _, a := range u.Attach {
		s.attached[a.ID] = a
	}
	s.version++
	return u.Kind(), nil
}

func (s *Scene) validate(u Update) error {
	if u.PlanningFrame != nil && *u.PlanningFrame == "" {
		return fmt.Errorf("planning frame cannot be empty")
	}
	for link, p := range u.LinkPoses {
		if !s.model.HasLink(link) {
			return fmt.Errorf("pose for unknown link %q", link)
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("link %q: %w", link, err)
		}
	}
	for _, o := range u.AddObjects {
		if o.ID == "" {
			return fmt.Errorf("world object has no id")
		}
		if err := o.Pose.Validate(); err != nil {
			return fmt.Errorf("object %q: %w", o.ID, err)
		}
		if err := o.Shape.validate(); err != nil {
			return fmt.Errorf("object %q: %w", o.ID, err)
		}
		if o.Color != nil {
			if err := o.Color.Validate(); err != nil {
				return fmt.Errorf("object %q: %w", o.ID, err)
			}
		}
	}
	for _, ft := range u.Transforms {
		if ft.Parent == "" || ft.Child == "" {
			return fmt.Errorf("transform needs parent and child frames")
		}
		if ft.Parent == ft.Child {
			return fmt.Errorf("transform from %q to itself", ft.Parent)
		}
		if err := ft.Pose.Validate(); err != nil {
			return fmt.Errorf("transform %s->%s: %w", ft.Parent, ft.Child, err)
		}
	}
	for _, a := range u.Attach {
		if a.ID == "" {
			return fmt.Errorf("attached body has no id")
		}
		if !s.model.HasLink(a.Link) {
			return fmt.Errorf("attached body %q on unknown link %q", a.ID, a.Link)
		}
		if err := a.Pose.Validate(); err != nil {
			return fmt.Errorf("attached body %q: %w", a.ID, err)
		}
		if err := a.Shape.validate(); err != nil {
			return fmt.Errorf("attached body %q: %w", a.ID, err)
		}
	}
	return nil
}
