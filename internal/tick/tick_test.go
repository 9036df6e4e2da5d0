package tick

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAccumulatorWholeSteps(t *testing.T) {
	acc := Accumulator{Step: 10 * time.Millisecond}

	acc.Add(25 * time.Millisecond)
	steps := 0
	for acc.Next() {
		steps++
	}
	if steps != 2 {
		t.Fatalf("steps = %d, want 2", steps)
	}
	if got := acc.Until(); got != 5*time.Millisecond {
		t.Fatalf("Until = %v, want 5ms", got)
	}

	acc.Add(5 * time.Millisecond)
	if !acc.Next() {
		t.Fatal("banked remainder did not complete a step")
	}
	if acc.Next() {
		t.Fatal("ran a fractional step")
	}
}

func TestAccumulatorIgnoresNegative(t *testing.T) {
	acc := Accumulator{Step: time.Millisecond}
	acc.Add(-time.Second)
	if acc.Next() {
		t.Fatal("negative elapsed produced a step")
	}
}

func TestInterval(t *testing.T) {
	cases := []struct {
		hz   int
		want time.Duration
	}{
		{120, time.Second / 120},
		{1, time.Second},
		{0, time.Second},
	}
	for _, tc := range cases {
		if got := Interval(tc.hz); got != tc.want {
			t.Errorf("Interval(%d) = %v, want %v", tc.hz, got, tc.want)
		}
	}
}

func TestRunStopsWhenFnReturnsFalse(t *testing.T) {
	n := 0
	err := Run(context.Background(), time.Millisecond, func(dt time.Duration) bool {
		if dt != time.Millisecond {
			t.Errorf("dt = %v", dt)
		}
		n++
		return n < 5
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 5 {
		t.Fatalf("fn ran %d times, want 5", n)
	}
}

func TestRunCatchesUpAfterStall(t *testing.T) {
	base := time.Unix(0, 0)
	calls := 0
	clock := func() time.Time {
		calls++
		// The first reading is the start; the second pretends 35ms passed.
		if calls == 1 {
			return base
		}
		return base.Add(35 * time.Millisecond)
	}

	n := 0
	err := run(context.Background(), 10*time.Millisecond, clock, func(time.Duration) bool {
		n++
		return n < 3
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n != 3 {
		t.Fatalf("fn ran %d times, want 3 back-to-back", n)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Run(ctx, time.Hour, func(time.Duration) bool {
		t.Fatal("fn ran after cancel")
		return false
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
