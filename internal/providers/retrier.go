package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrExhausted wraps the final provider error after every eligible
// provider has been retried to its ceiling.
var ErrExhausted = errors.New("all providers exhausted")

// Route names the primary provider for a call and an optional fallback.
type Route struct {
	Primary  string
	Fallback string
}

// Attempt describes one provider call made by the retrier, for audit
// recording. Err is nil when the call succeeded.
type Attempt struct {
	Provider string
	Number   int
	Duration time.Duration
	Err      error
}

// RetrierConfig holds the retry policy knobs.
type RetrierConfig struct {
	// MaxAttempts is the per-provider ceiling on attempts that count
	// (transient failures). Rate limits do not consume attempts.
	MaxAttempts int

	// Base and Cap bound the exponential backoff between retries.
	Base time.Duration
	Cap  time.Duration

	// RateLimitCeiling bounds how many rate-limit responses one provider
	// may return before the retrier moves on to the fallback.
	RateLimitCeiling int
}

// Retrier drives provider calls under the retry and fallback policy.
// It is safe for concurrent use; each Do call tracks its own counters.
type Retrier struct {
	cfg     RetrierConfig
	backoff *Backoff
	logger  *slog.Logger

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a retrier with the given policy.
func NewRetrier(cfg RetrierConfig, logger *slog.Logger) *Retrier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RateLimitCeiling <= 0 {
		cfg.RateLimitCeiling = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{
		cfg:     cfg,
		backoff: NewBackoff(cfg.Base, cfg.Cap),
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// Do runs call against the route's primary provider, retrying transient
// failures with jittered backoff and honoring rate-limit hints, then
// switches to the fallback provider when the primary's ceilings are hit
// or its credentials are rejected. observe, when non-nil, is invoked
// once per provider call for audit recording.
//
// Non-retryable failures (permanent, unreadable or oversized input)
// return immediately without engaging the fallback: the same input would
// fail there too. When both providers are exhausted the returned error
// wraps ErrExhausted around the last provider error.
func (r *Retrier) Do(ctx context.Context, route Route, call func(ctx context.Context, provider string) error, observe func(Attempt)) error {
	providers := []string{route.Primary}
	if route.Fallback != "" && route.Fallback != route.Primary {
		providers = append(providers, route.Fallback)
	}

	var lastErr error
	for _, provider := range providers {
		err := r.runProvider(ctx, provider, call, observe)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}

		kind := KindOf(err)
		switch kind {
		case ErrKindPermanent, ErrKindInputUnreadable, ErrKindInputTooLarge:
			return err
		}

		// Auth, rate-limit ceiling, or retry exhaustion: move on.
		r.logger.Warn("provider gave up, engaging fallback",
			slog.String("provider", provider),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		lastErr = err
	}

	return fmt.Errorf("%w: %w", ErrExhausted, lastErr)
}

// runProvider retries one provider to its ceilings.
func (r *Retrier) runProvider(ctx context.Context, provider string, call func(ctx context.Context, provider string) error, observe func(Attempt)) error {
	attempts := 0
	rateLimits := 0

	for {
		start := time.Now()
		err := call(ctx, provider)
		if observe != nil {
			observe(Attempt{
				Provider: provider,
				Number:   attempts + rateLimits + 1,
				Duration: time.Since(start),
				Err:      err,
			})
		}
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}

		kind := KindOf(err)
		switch kind {
		case ErrKindRateLimited:
			rateLimits++
			if rateLimits >= r.cfg.RateLimitCeiling {
				return err
			}
			delay := r.backoff.Delay(rateLimits - 1)
			if pe, ok := AsError(err); ok && pe.RetryAfter > 0 {
				delay = pe.RetryAfter
			}
			r.logger.Info("provider rate limited, waiting",
				slog.String("provider", provider),
				slog.Duration("delay", delay),
				slog.Int("rate_limit_count", rateLimits),
			)
			if err := r.sleep(ctx, delay); err != nil {
				return err
			}

		case ErrKindTransient:
			attempts++
			if attempts >= r.cfg.MaxAttempts {
				return err
			}
			delay := r.backoff.Delay(attempts - 1)
			r.logger.Info("provider call failed, retrying",
				slog.String("provider", provider),
				slog.Duration("delay", delay),
				slog.Int("attempt", attempts),
				slog.String("error", err.Error()),
			)
			if err := r.sleep(ctx, delay); err != nil {
				return err
			}

		default:
			// Auth, permanent, input errors: no point retrying here.
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
