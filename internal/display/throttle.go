package display

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/banshee-data/sceneview/internal/scene"
)

// MinRenderInterval is the smallest accepted spacing between render attempts.
const MinRenderInterval = 100 * time.Microsecond

// RenderThrottle turns a stream of wall-clock ticks into rate-limited
// render attempts. An attempt draws only if the gate is dirty; the
// accumulated time is reset after every attempt either way, so attempts are
// never closer together than the interval.
//
// Tick must be called from a single goroutine.
type RenderThrottle struct {
	gate     *UpdateGate
	render   func(s *scene.Scene) error
	interval time.Duration
	elapsed  time.Duration

	attempts atomic.Uint64
	renders  atomic.Uint64
	failures atomic.Uint64
}

// ThrottleStats counts render attempts and their outcomes.
type ThrottleStats struct {
	Attempts uint64 // interval-exceeded ticks
	Renders  uint64 // draw calls made, failed ones included
	Failures uint64 // draw calls that returned an error or panicked
}

// NewRenderThrottle returns a throttle drawing through render.
func NewRenderThrottle(gate *UpdateGate, interval time.Duration, render func(s *scene.Scene) error) *RenderThrottle {
	t := &RenderThrottle{gate: gate, render: render}
	t.SetInterval(interval)
	return t
}

// SetInterval changes the minimum spacing between attempts.
func (t *RenderThrottle) SetInterval(d time.Duration) {
	if d < MinRenderInterval {
		d = MinRenderInterval
	}
	t.interval = d
}

// Interval returns the current minimum spacing.
func (t *RenderThrottle) Interval() time.Duration { return t.interval }

// Elapsed returns the time accumulated since the last attempt.
func (t *RenderThrottle) Elapsed() time.Duration { return t.elapsed }

// Tick advances the throttle by wallDelta and reports whether a render was
// drawn. Nothing accumulates while the gate has no scene.
func (t *RenderThrottle) Tick(wallDelta time.Duration) bool {
	if !t.gate.Available() {
		return false
	}
	if wallDelta > 0 {
		t.elapsed += wallDelta
	}
	if t.elapsed < t.interval {
		return false
	}
	defer func() { t.elapsed = 0 }()
	return t.attempt()
}

func (t *RenderThrottle) attempt() bool {
	t.attempts.Add(1)

	drew := false
	err := t.gate.WithSceneLocked(func(s *scene.Scene) (err error) {
		if !t.gate.consumeDirty() {
			return nil
		}
		drew = true
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("renderer panic: %v", r)
			}
		}()
		return t.render(s)
	})

	switch {
	case errors.Is(err, ErrSceneUnavailable):
		return false
	case err != nil:
		t.failures.Add(1)
		logf("Exception thrown while rendering planning scene: %v", err)
	}
	if drew {
		t.renders.Add(1)
	}
	return drew
}

// Stats returns attempt counters. Safe from any goroutine.
func (t *RenderThrottle) Stats() ThrottleStats {
	return ThrottleStats{
		Attempts: t.attempts.Load(),
		Renders:  t.renders.Load(),
		Failures: t.failures.Load(),
	}
}
