package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Retrying retries a provider call with exponential backoff, but only while
// nothing has been streamed yet. Once text has reached the caller a failure
// is returned as is.
type Retrying struct {
	next     Provider
	attempts int
	base     time.Duration
	logger   *slog.Logger
	sleep    func(context.Context, time.Duration) error
}

// WithRetry wraps p. retries is the number of extra attempts; zero returns p
// unchanged.
func WithRetry(p Provider, retries int, base time.Duration, logger *slog.Logger) Provider {
	if retries <= 0 {
		return p
	}
	return &Retrying{next: p, attempts: retries + 1, base: base, logger: logger, sleep: sleepCtx}
}

func (r *Retrying) Name() string       { return r.next.Name() }
func (r *Retrying) RequiresSeed() bool { return r.next.RequiresSeed() }

func (r *Retrying) Complete(ctx context.Context, req Request, fn DeltaFunc) error {
	var err error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			wait := r.base << (attempt - 1)
			r.logger.Warn("retrying provider call", "provider", r.next.Name(), "attempt", attempt+1, "wait", wait, "error", err)
			if serr := r.sleep(ctx, wait); serr != nil {
				return err
			}
		}

		streamed := false
		err = r.next.Complete(ctx, req, func(delta string) error {
			streamed = true
			return fn(delta)
		})
		if err == nil || streamed || errors.Is(err, context.Canceled) {
			return err
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
