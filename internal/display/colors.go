package display

import (
	"sort"
	"sync"

	"github.com/banshee-data/sceneview/internal/geom"
	"github.com/banshee-data/sceneview/internal/kinematic"
)

// ColorOverrides maps link names to colours that replace the renderer's
// intrinsic link material. Unknown links and groups are ignored silently:
// link sets change across model reloads.
type ColorOverrides struct {
	mu     sync.Mutex
	colors map[string]geom.Color
}

// NewColorOverrides returns an empty registry.
func NewColorOverrides() *ColorOverrides {
	return &ColorOverrides{colors: make(map[string]geom.Color)}
}

// SetLink overrides the colour of a link. It reports false, changing
// nothing, when robot has no such link.
func (r *ColorOverrides) SetLink(robot Robot, link string, c geom.Color) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setLocked(robot, link, c)
}

func (r *ColorOverrides) setLocked(robot Robot, link string, c geom.Color) bool {
	if robot == nil {
		return false
	}
	l, ok := robot.Link(link)
	if !ok {
		return false
	}
	r.colors[link] = c
	l.SetColor(c)
	return true
}

// UnsetLink removes a link override and restores its intrinsic colour. It
// reports false when there was no override.
func (r *ColorOverrides) UnsetLink(robot Robot, link string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unsetLocked(robot, link)
}

func (r *ColorOverrides) unsetLocked(robot Robot, link string) bool {
	if _, ok := r.colors[link]; !ok {
		return false
	}
	delete(r.colors, link)
	if robot != nil {
		if l, ok := robot.Link(link); ok {
			l.UnsetColor()
		}
	}
	return true
}

// SetGroup overrides every member link of group. Nothing happens when the
// model is missing or the group does not resolve. Returns the number of
// links recoloured.
func (r *ColorOverrides) SetGroup(robot Robot, model *kinematic.Model, group string, c geom.Color) int {
	members, ok := resolveGroup(model, group)
	if !ok {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, link := range members {
		if r.setLocked(robot, link, c) {
			n++
		}
	}
	return n
}

// UnsetGroup removes the overrides of every member link of group.
func (r *ColorOverrides) UnsetGroup(robot Robot, model *kinematic.Model, group string) int {
	members, ok := resolveGroup(model, group)
	if !ok {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, link := range members {
		if r.unsetLocked(robot, link) {
			n++
		}
	}
	return n
}

// UnsetAll removes the overrides of every link that has collision or
// visual geometry in the model.
func (r *ColorOverrides) UnsetAll(robot Robot, model *kinematic.Model) int {
	if model == nil {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, link := range model.LinkNamesWithCollisionGeometry() {
		if r.unsetLocked(robot, link) {
			n++
		}
	}
	return n
}

// Reapply pushes every stored override onto robot, typically after the
// robot was reloaded with a new model. Overrides for links the robot no
// longer has are kept for a later reload.
func (r *ColorOverrides) Reapply(robot Robot) {
	if robot == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for link, c := range r.colors {
		if l, ok := robot.Link(link); ok {
			l.SetColor(c)
		}
	}
}

// Get returns the override for link.
func (r *ColorOverrides) Get(link string) (geom.Color, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.colors[link]
	return c, ok
}

// Links returns the overridden link names, sorted.
func (r *ColorOverrides) Links() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.colors))
	for link := range r.colors {
		out = append(out, link)
	}
	sort.Strings(out)
	return out
}

func resolveGroup(model *kinematic.Model, group string) ([]string, bool) {
	if model == nil {
		return nil, false
	}
	return model.Group(group)
}
