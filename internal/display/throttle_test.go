package display

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sceneview/internal/scene"
)

func newTestThrottle(t *testing.T, interval time.Duration) (*RenderThrottle, *UpdateGate, *int) {
	t.Helper()
	gate := &UpdateGate{}
	gate.SetSource(scene.NewMonitor("m", testModel(t), nil))
	draws := 0
	th := NewRenderThrottle(gate, interval, func(*scene.Scene) error {
		draws++
		return nil
	})
	return th, gate, &draws
}

func TestRenderThrottle_RendersOnceWhenIntervalReached(t *testing.T) {
	tests := []struct {
		name         string
		notifyBefore int // tick number, from 1
	}{
		{"update before first tick", 1},
		{"update mid interval", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th, gate, draws := newTestThrottle(t, 200*time.Millisecond)

			var rendered []bool
			for i := 1; i <= 5; i++ {
				if i == tt.notifyBefore {
					gate.NotifyUpdate()
				}
				rendered = append(rendered, th.Tick(50*time.Millisecond))
			}

			// the interval is reached on tick 4 however late the update came
			assert.Equal(t, []bool{false, false, false, true, false}, rendered)
			assert.Equal(t, 1, *draws)
			assert.False(t, gate.Dirty())
			assert.Equal(t, 50*time.Millisecond, th.Elapsed())
			assert.Equal(t, ThrottleStats{Attempts: 1, Renders: 1}, th.Stats())
		})
	}
}

func TestRenderThrottle_CleanFlagStillResetsTimer(t *testing.T) {
	th, gate, draws := newTestThrottle(t, 100*time.Millisecond)

	assert.False(t, th.Tick(150*time.Millisecond))
	assert.Equal(t, time.Duration(0), th.Elapsed())
	assert.Equal(t, 0, *draws)

	// an update arriving right after an empty attempt waits a full interval
	gate.NotifyUpdate()
	assert.False(t, th.Tick(60*time.Millisecond))
	assert.True(t, th.Tick(40*time.Millisecond))
	assert.Equal(t, 1, *draws)
	assert.Equal(t, ThrottleStats{Attempts: 2, Renders: 1}, th.Stats())
}

func TestRenderThrottle_BurstCoalesces(t *testing.T) {
	th, gate, draws := newTestThrottle(t, 100*time.Millisecond)

	for i := 0; i < 1000; i++ {
		gate.NotifyUpdate()
	}
	for i := 0; i < 10; i++ {
		th.Tick(100 * time.Millisecond)
	}
	assert.Equal(t, 1, *draws)
}

func TestRenderThrottle_FailedRenderDoesNotWedge(t *testing.T) {
	tests := []struct {
		name   string
		render func(*scene.Scene) error
	}{
		{"error", func(*scene.Scene) error { return errBoom }},
		{"panic", func(*scene.Scene) error { panic("renderer exploded") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := &UpdateGate{}
			m := scene.NewMonitor("m", testModel(t), nil)
			gate.SetSource(m)
			calls := 0
			th := NewRenderThrottle(gate, 100*time.Millisecond, func(s *scene.Scene) error {
				calls++
				return tt.render(s)
			})

			gate.NotifyUpdate()
			assert.True(t, th.Tick(100*time.Millisecond))
			assert.False(t, gate.Dirty())
			assert.Equal(t, time.Duration(0), th.Elapsed())

			// no retry without a new update
			for i := 0; i < 5; i++ {
				th.Tick(100 * time.Millisecond)
			}
			assert.Equal(t, 1, calls)
			assert.Equal(t, uint64(1), th.Stats().Failures)

			// scene lock was released
			m.Lock()
			m.Unlock()

			gate.NotifyUpdate()
			th.Tick(100 * time.Millisecond)
			assert.Equal(t, 2, calls)
		})
	}
}

func TestRenderThrottle_NoSceneDoesNotAccumulate(t *testing.T) {
	gate := &UpdateGate{}
	draws := 0
	th := NewRenderThrottle(gate, 100*time.Millisecond, func(*scene.Scene) error {
		draws++
		return nil
	})
	gate.NotifyUpdate()

	for i := 0; i < 10; i++ {
		assert.False(t, th.Tick(100*time.Millisecond))
	}
	assert.Equal(t, time.Duration(0), th.Elapsed())
	assert.Equal(t, uint64(0), th.Stats().Attempts)

	gate.SetSource(scene.NewMonitor("m", testModel(t), nil))
	assert.False(t, th.Tick(50*time.Millisecond))
	assert.True(t, th.Tick(50*time.Millisecond))
	assert.Equal(t, 1, draws)
}

func TestRenderThrottle_NotifyDuringRenderIsKept(t *testing.T) {
	gate := &UpdateGate{}
	gate.SetSource(scene.NewMonitor("m", testModel(t), nil))
	draws := 0
	th := NewRenderThrottle(gate, 100*time.Millisecond, func(*scene.Scene) error {
		draws++
		if draws == 1 {
			gate.NotifyUpdate()
		}
		return nil
	})

	gate.NotifyUpdate()
	require.True(t, th.Tick(100*time.Millisecond))
	assert.True(t, gate.Dirty())
	require.True(t, th.Tick(100*time.Millisecond))
	assert.Equal(t, 2, draws)
}

func TestRenderThrottle_SetInterval(t *testing.T) {
	th, _, _ := newTestThrottle(t, 0)
	assert.Equal(t, MinRenderInterval, th.Interval())

	th.SetInterval(time.Second)
	assert.Equal(t, time.Second, th.Interval())

	th.SetInterval(-time.Second)
	assert.Equal(t, MinRenderInterval, th.Interval())
}

func TestRenderThrottle_NegativeDeltaIgnored(t *testing.T) {
	th, gate, draws := newTestThrottle(t, 100*time.Millisecond)
	gate.NotifyUpdate()

	th.Tick(80 * time.Millisecond)
	th.Tick(-50 * time.Millisecond)
	assert.Equal(t, 80*time.Millisecond, th.Elapsed())
	th.Tick(20 * time.Millisecond)
	assert.Equal(t, 1, *draws)
}
