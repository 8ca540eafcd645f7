package display

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sceneview/internal/timeutil"
)

func TestRunner_TicksDisplay(t *testing.T) {
	h := newHarness(t, fastSettings())
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	r := NewRunner(h.display, clock, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.NoError(t, r.Do(ctx, func(d *Display) { d.Enable() }))

	require.Eventually(t, func() bool {
		clock.Advance(50 * time.Millisecond)
		return h.renderer().count() >= 1
	}, 2*time.Second, time.Millisecond)

	var enabled bool
	require.NoError(t, r.Do(ctx, func(d *Display) { enabled = d.Enabled() }))
	assert.True(t, enabled)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunner_DoAfterCancel(t *testing.T) {
	h := newHarness(t, fastSettings())
	r := NewRunner(h.display, nil, 0)
	assert.Equal(t, DefaultTickPeriod, r.period)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// fill the queue so Do has to wait on the context
	for i := 0; i < cap(r.calls); i++ {
		r.calls <- func() {}
	}
	assert.ErrorIs(t, r.Do(ctx, func(*Display) {}), context.Canceled)
}

func TestRunner_PostQueuesWithoutWaiting(t *testing.T) {
	h := newHarness(t, fastSettings())
	r := NewRunner(h.display, nil, time.Hour)

	var ran []string
	for i := 0; i < cap(r.calls); i++ {
		require.True(t, r.Post(func(d *Display) { ran = append(ran, d.Name()) }))
	}
	assert.False(t, r.Post(func(*Display) { t.Error("dropped call ran") }), "full queue drops the call")
	assert.Empty(t, ran, "nothing runs until the loop does")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)
	require.NoError(t, r.Do(ctx, func(*Display) {}))
	assert.Len(t, ran, cap(r.calls))
}
