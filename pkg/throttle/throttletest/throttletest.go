// Package throttletest provides throttles for tests.
package throttletest

import (
	"context"
	"sync/atomic"

	"outreach-controlplane/pkg/throttle"
)

// Counting wraps a Throttle and records how many times Wait was called. It is
// safe for concurrent use.
type Counting struct {
	Inner throttle.Throttle
	// FailAfter makes every Wait past the first FailAfter calls return
	// context.Canceled. Zero never fails.
	FailAfter int

	calls atomic.Int64
}

func (c *Counting) Wait(ctx context.Context) error {
	n := c.calls.Add(1)
	if c.FailAfter > 0 && n > int64(c.FailAfter) {
		return context.Canceled
	}
	if c.Inner == nil {
		return ctx.Err()
	}
	return c.Inner.Wait(ctx)
}

func (c *Counting) Calls() int {
	return int(c.calls.Load())
}
