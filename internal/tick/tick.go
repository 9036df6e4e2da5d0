// Package tick runs fixed-timestep loops. Elapsed wall time accumulates and
// is consumed one whole step at a time, so a stalled loop catches up without
// ever running a fractional step.
package tick

import (
	"context"
	"time"
)

// Accumulator converts elapsed wall time into whole steps.
type Accumulator struct {
	Step    time.Duration
	pending time.Duration
}

// Add banks elapsed time.
func (a *Accumulator) Add(elapsed time.Duration) {
	if elapsed > 0 {
		a.pending += elapsed
	}
}

// Next consumes one step if enough time is banked.
func (a *Accumulator) Next() bool {
	if a.pending < a.Step {
		return false
	}
	a.pending -= a.Step
	return true
}

// Until returns the wall time left before the next step is due.
func (a *Accumulator) Until() time.Duration {
	if a.pending >= a.Step {
		return 0
	}
	return a.Step - a.pending
}

// Interval returns the step length for a rate in Hz.
func Interval(hz int) time.Duration {
	if hz <= 0 {
		hz = 1
	}
	return time.Second / time.Duration(hz)
}

// Run calls fn once per step until ctx is cancelled or fn returns false.
// Between steps it sleeps on a timer instead of spinning.
func Run(ctx context.Context, step time.Duration, fn func(dt time.Duration) bool) error {
	return run(ctx, step, time.Now, fn)
}

func run(ctx context.Context, step time.Duration, now func() time.Time, fn func(dt time.Duration) bool) error {
	acc := Accumulator{Step: step}
	timer := time.NewTimer(step)
	defer timer.Stop()

	last := now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		t := now()
		acc.Add(t.Sub(last))
		last = t
		for acc.Next() {
			if !fn(step) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		timer.Reset(acc.Until())
	}
}
