package health

import (
	"context"
	"fmt"
	"time"

	"github.com/pactown/pactown/pkg/errdefs"
	"github.com/pactown/pactown/pkg/metrics"
)

// probeBackoff is the delay ladder between readiness attempts. After
// the last rung the prober settles into a steady poll.
var probeBackoff = []time.Duration{
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

// WaitReady polls checker until it reports healthy or timeout elapses.
// A fast service passes on one of the early attempts; a slow one is
// polled every 500ms until the deadline. Cancelling ctx aborts the
// wait immediately, which is how the caller interrupts a probe whose
// process has already died.
func WaitReady(ctx context.Context, checker Checker, timeout time.Duration) error {
	start := time.Now()
	defer func() {
		metrics.HealthProbeDuration.Observe(time.Since(start).Seconds())
	}()

	deadline := start.Add(timeout)
	var last Result
	for attempt := 0; ; attempt++ {
		last = checker.Check(ctx)
		if last.Healthy {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: no healthy response within %s (last: %s)",
				errdefs.ErrHealthTimeout, timeout, last.Message)
		}

		wait := probeBackoff[len(probeBackoff)-1]
		if attempt < len(probeBackoff) {
			wait = probeBackoff[attempt]
		}
		if remaining := time.Until(deadline); wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
