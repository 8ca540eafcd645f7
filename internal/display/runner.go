package display

import (
	"context"
	"time"

	"github.com/banshee-data/sceneview/internal/timeutil"
)

// DefaultTickPeriod is the host frame period used when none is given.
const DefaultTickPeriod = 33 * time.Millisecond

// Runner is the host tick loop. It owns the single goroutine on which the
// display's lifecycle and property methods run.
type Runner struct {
	display *Display
	clock   timeutil.Clock
	period  time.Duration
	calls   chan func()
}

// NewRunner returns a runner ticking d every period.
func NewRunner(d *Display, clock timeutil.Clock, period time.Duration) *Runner {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if period <= 0 {
		period = DefaultTickPeriod
	}
	return &Runner{
		display: d,
		clock:   clock,
		period:  period,
		calls:   make(chan func(), 16),
	}
}

// Run ticks the display until ctx is cancelled. Each tick passes the wall
// time since the previous tick.
func (r *Runner) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.period)
	defer ticker.Stop()

	last := r.clock.Now()
	logf("%s: tick loop started (period %v)", r.display.Name(), r.period)
	for {
		select {
		case <-ctx.Done():
			logf("%s: tick loop stopped", r.display.Name())
			return ctx.Err()
		case fn := <-r.calls:
			fn()
		case now := <-ticker.C():
			delta := now.Sub(last)
			last = now
			r.display.Update(delta)
		}
	}
}

// Do runs fn on the tick goroutine and waits for it to finish.
func (r *Runner) Do(ctx context.Context, fn func(d *Display)) error {
	done := make(chan struct{})
	call := func() {
		defer close(done)
		fn(r.display)
	}
	select {
	case r.calls <- call:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post queues fn to run on the tick goroutine without waiting. It reports
// false when the queue is full and fn was dropped.
func (r *Runner) Post(fn func(d *Display)) bool {
	select {
	case r.calls <- func() { fn(r.display) }:
		return true
	default:
		return false
	}
}
