package apierr

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// Policy bounds how often and how fast a single external call is retried.
type Policy struct {
	Attempts  uint
	Delay     time.Duration
	MaxDelay  time.Duration
	MaxJitter time.Duration
}

// DefaultPolicy is used by Retry. Tests shrink the delays.
var DefaultPolicy = Policy{
	Attempts:  4,
	Delay:     500 * time.Millisecond,
	MaxDelay:  5 * time.Second,
	MaxJitter: 250 * time.Millisecond,
}

// Retry runs fn under DefaultPolicy, retrying only errors classified as
// retryable. op names the call in logs.
func Retry(ctx context.Context, op string, fn func() error) error {
	return DefaultPolicy.Do(ctx, op, fn)
}

// Do runs fn under p.
func (p Policy) Do(ctx context.Context, op string, fn func() error) error {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}
	return retry.Do(
		fn,
		retry.Attempts(attempts),
		retry.Delay(p.Delay),
		retry.MaxDelay(p.MaxDelay),
		retry.MaxJitter(p.MaxJitter),
		retry.Context(ctx),
		retry.RetryIf(IsRetryable),
		retry.OnRetry(func(n uint, err error) {
			slog.Debug("retrying external call", slog.String("op", op), slog.Uint64("attempt", uint64(n)), slog.Any("err", err))
		}),
	)
}
