package display

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/sceneview/internal/scene"
)

// ErrSceneUnavailable means no update source is configured. Callers treat
// it as "nothing to render", not as a failure.
var ErrSceneUnavailable = errors.New("no planning scene available")

// UpdateGate mediates access to the scene snapshot between the update
// source and the render path. The dirty flag is lock-free; the source's own
// mutex guards the snapshot.
type UpdateGate struct {
	dirty atomic.Bool

	mu     sync.RWMutex
	source SceneSource
}

// NotifyUpdate marks the scene dirty. It never blocks and never touches the
// scene, so it is safe from any goroutine, including mid-render.
func (g *UpdateGate) NotifyUpdate() {
	g.dirty.Store(true)
}

// Dirty reports whether a render is pending.
func (g *UpdateGate) Dirty() bool {
	return g.dirty.Load()
}

// consumeDirty clears the flag and reports whether it was set.
func (g *UpdateGate) consumeDirty() bool {
	return g.dirty.Swap(false)
}

// SetSource swaps the update source. nil detaches it.
func (g *UpdateGate) SetSource(src SceneSource) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.source = src
}

func (g *UpdateGate) current() SceneSource {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.source
}

// Available reports whether a scene can be locked.
func (g *UpdateGate) Available() bool {
	src := g.current()
	return src != nil && src.Scene() != nil
}

// WithSceneLocked runs fn with exclusive access to the scene. The lock is
// released on every exit path, including a panic in fn. With no source or
// no scene it returns ErrSceneUnavailable without locking anything.
func (g *UpdateGate) WithSceneLocked(fn func(s *scene.Scene) error) error {
	src := g.current()
	if src == nil {
		return ErrSceneUnavailable
	}
	s := src.Scene()
	if s == nil {
		return ErrSceneUnavailable
	}

	src.Lock()
	defer src.Unlock()
	return fn(s)
}
