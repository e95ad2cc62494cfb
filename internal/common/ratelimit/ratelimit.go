// Package ratelimit paces outbound requests with a token bucket.
// A Limiter created with a non-positive rate is disabled and never blocks.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps rate.Limiter with an enabled switch.
type Limiter struct {
	limiter *rate.Limiter
	rps     float64
}

// New creates a limiter allowing rps requests per second with a burst of one.
// rps <= 0 returns a disabled limiter.
func New(rps float64) *Limiter {
	if rps <= 0 {
		return &Limiter{}
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		rps:     rps,
	}
}

// Enabled reports whether the limiter paces requests.
func (l *Limiter) Enabled() bool {
	return l != nil && l.limiter != nil
}

// Wait blocks until a request may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if !l.Enabled() {
		return nil
	}
	return l.limiter.Wait(ctx)
}

func (l *Limiter) String() string {
	if !l.Enabled() {
		return "disabled"
	}
	if l.rps < 1 {
		return fmt.Sprintf("1 request per %v", time.Duration(float64(time.Second)/l.rps).Round(time.Millisecond))
	}
	return fmt.Sprintf("%.2f rps", l.rps)
}
