package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"relaybot/pkg/relay"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultMaxAttempts bounds how often one rate-limited call is attempted.
	DefaultMaxAttempts = 3
	// DefaultRetryPadding is added to every server-required wait.
	DefaultRetryPadding = time.Second
)

// RetryPolicy bounds rate-limit retries of one client call.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Padding is added to the server-required wait.
	Padding time.Duration
}

// RateLimitNotify observes every wait before a rate-limited call is retried.
type RateLimitNotify func(ctx context.Context, wait time.Duration, attempt int)

type rateLimitNotifyKey struct{}

// ContextWithRateLimitNotify attaches a per-call observer of rate-limit waits,
// called in addition to the one configured on the dispatcher.
func ContextWithRateLimitNotify(ctx context.Context, notify RateLimitNotify) context.Context {
	return context.WithValue(ctx, rateLimitNotifyKey{}, notify)
}

func rateLimitNotifyFrom(ctx context.Context) RateLimitNotify {
	notify, _ := ctx.Value(rateLimitNotifyKey{}).(RateLimitNotify)
	return notify
}

// serverWait is a backoff.BackOff that always waits what the server asked for.
type serverWait struct {
	next time.Duration
}

func (w *serverWait) NextBackOff() time.Duration {
	return w.next
}

func (w *serverWait) Reset() {
	w.next = 0
}

type retrier struct {
	policy RetryPolicy
	timer  backoff.Timer
	notify RateLimitNotify
	logger *slog.Logger
}

// do runs call and retries it while it fails with a rate limit, waiting at
// least the server-required duration between attempts.
func (r retrier) do(ctx context.Context, operation string, call func(ctx context.Context) error) error {
	maxAttempts := r.policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	wait := &serverWait{}
	attempt := 0
	var lastErr error
	op := func() error {
		attempt++
		lastErr = call(ctx)
		if lastErr == nil {
			return nil
		}
		retryAfter, limited := relay.AsOutboundRateLimit(lastErr)
		if !limited {
			return backoff.Permanent(lastErr)
		}
		wait.next = retryAfter + r.policy.Padding

		return lastErr
	}
	notify := func(err error, delay time.Duration) {
		if r.logger != nil {
			r.logger.WarnContext(ctx, "rate limited, waiting before retry",
				"operation", operation,
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"wait", delay,
				"error", err,
			)
		}
		if r.notify != nil {
			r.notify(ctx, delay, attempt)
		}
		if scoped := rateLimitNotifyFrom(ctx); scoped != nil {
			scoped(ctx, delay, attempt)
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(wait, uint64(maxAttempts-1)), ctx)
	err := backoff.RetryNotifyWithTimer(op, policy, notify, r.timer)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && lastErr != nil {
		return fmt.Errorf("%s: %w (last error: %w)", operation, ctxErr, lastErr)
	}

	return fmt.Errorf("%s: %w", operation, err)
}
