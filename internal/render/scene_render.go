package render

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/sceneview/internal/display"
	"github.com/banshee-data/sceneview/internal/geom"
	"github.com/banshee-data/sceneview/internal/scene"
	"github.com/banshee-data/sceneview/internal/timeutil"
)

var _ display.SceneRenderer = (*PlanningSceneRender)(nil)

// ItemKind tells what a drawn item came from.
type ItemKind string

const (
	ItemObject   ItemKind = "object"
	ItemAttached ItemKind = "attached"
	ItemLink     ItemKind = "link"
)

// Item is one drawn thing, posed in the planning frame.
type Item struct {
	Kind  ItemKind    `json:"kind"`
	ID    string      `json:"id"`
	Link  string      `json:"link,omitempty"`
	Pose  geom.Pose   `json:"pose"`
	Shape scene.Shape `json:"shape"`
	Color geom.Color  `json:"color"`
	Alpha float64     `json:"alpha"`
}

// Frame is the result of one render.
type Frame struct {
	Seq           uint64    `json:"seq"`
	Scene         string    `json:"scene"`
	PlanningFrame string    `json:"planning_frame"`
	RenderedAt    time.Time `json:"rendered_at"`
	Items         []Item    `json:"items"`
}

// Count returns the number of items of a kind.
func (f Frame) Count(kind ItemKind) int {
	n := 0
	for _, it := range f.Items {
		if it.Kind == kind {
			n++
		}
	}
	return n
}

// PlanningSceneRender draws planning scenes into a geometry node and a robot.
type PlanningSceneRender struct {
	geometry *Node
	robot    *Robot
	clock    timeutil.Clock

	mu   sync.Mutex
	seq  uint64
	last *Frame
}

// NewPlanningSceneRender returns a renderer. A nil clock means wall time.
func NewPlanningSceneRender(geometry *Node, robot *Robot, clock timeutil.Clock) *PlanningSceneRender {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &PlanningSceneRender{geometry: geometry, robot: robot, clock: clock}
}

// RenderScene rebuilds the frame from s. World objects without their own
// colour get envColor; attached bodies get attachedColor.
func (r *PlanningSceneRender) RenderScene(s *scene.Scene, envColor, attachedColor geom.Color, sceneAlpha, robotAlpha float64) error {
	if s == nil || !s.IsConfigured() {
		return fmt.Errorf("scene is not configured")
	}

	state := s.CurrentState()
	r.robot.Update(state)

	f := Frame{
		Scene:         s.Name(),
		PlanningFrame: s.PlanningFrame(),
		RenderedAt:    r.clock.Now(),
	}

	if r.geometry.Shown() {
		for _, obj := range s.Objects() {
			c := envColor
			if obj.Color != nil {
				c = *obj.Color
			}
			f.Items = append(f.Items, Item{
				Kind:  ItemObject,
				ID:    obj.ID,
				Pose:  obj.Pose,
				Shape: obj.Shape,
				Color: c,
				Alpha: sceneAlpha,
			})
		}
	}

	if r.robot.Visible() {
		for _, body := range s.AttachedBodies() {
			linkPose, _ := state.LinkPose(body.Link)
			f.Items = append(f.Items, Item{
				Kind:  ItemAttached,
				ID:    body.ID,
				Link:  body.Link,
				Pose:  linkPose.Compose(body.Pose),
				Shape: body.Shape,
				Color: attachedColor,
				Alpha: robotAlpha,
			})
		}
		alpha := r.robot.Alpha()
		for _, l := range r.robot.Links() {
			if !l.HasGeometry() {
				continue
			}
			f.Items = append(f.Items, Item{
				Kind:  ItemLink,
				ID:    l.Name(),
				Link:  l.Name(),
				Pose:  l.Pose(),
				Color: l.Color(),
				Alpha: alpha,
			})
		}
	}

	r.mu.Lock()
	r.seq++
	f.Seq = r.seq
	r.last = &f
	r.mu.Unlock()
	return nil
}

// Last returns the most recent frame.
func (r *PlanningSceneRender) Last() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return Frame{}, false
	}
	return *r.last, true
}
