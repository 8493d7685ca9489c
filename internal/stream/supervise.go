package stream

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/yanun0323/logs"
)

// RunFunc runs one connection until it ends. A nil return means a clean stop.
type RunFunc func(ctx context.Context) error

// Backoff controls how Supervise restarts a stream.
type Backoff struct {
	Min time.Duration
	Max time.Duration
	// Attempts caps restarts, 0 restarts forever.
	Attempts uint
}

// DefaultBackoff provides conservative reconnect defaults.
func DefaultBackoff() Backoff {
	return Backoff{
		Min: 250 * time.Millisecond,
		Max: 30 * time.Second,
	}
}

// Supervise restarts run after every transport error until ctx is done, run
// returns nil or the attempts are exhausted. Streams themselves never retry.
func Supervise(ctx context.Context, name string, b Backoff, run RunFunc) error {
	if b.Min <= 0 {
		b.Min = DefaultBackoff().Min
	}
	if b.Max < b.Min {
		b.Max = b.Min
	}

	return retry.Do(
		func() error {
			return run(ctx)
		},
		retry.Attempts(b.Attempts),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(b.Min),
		retry.MaxDelay(b.Max),
		retry.MaxJitter(b.Min/5),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logs.Warnf("stream %s: restarting, attempt: %d, err: %+v", name, n+1, err)
		}),
	)
}
