// Package throttle paces calls against rate-limited external APIs.
package throttle

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

type Throttle interface {
	Wait(ctx context.Context) error
}

type limiter struct {
	l *rate.Limiter
}

// Every allows one call per interval with the given burst. A non-positive
// interval disables throttling.
func Every(interval time.Duration, burst int) Throttle {
	if interval <= 0 {
		return Noop()
	}
	if burst < 1 {
		burst = 1
	}
	return &limiter{l: rate.NewLimiter(rate.Every(interval), burst)}
}

func (t *limiter) Wait(ctx context.Context) error {
	return t.l.Wait(ctx)
}

type noop struct{}

func Noop() Throttle { return noop{} }

func (noop) Wait(ctx context.Context) error {
	return ctx.Err()
}
