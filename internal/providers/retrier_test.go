package providers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRetrier returns a retrier whose sleeps complete instantly and are
// recorded for inspection.
func newTestRetrier(cfg RetrierConfig) (*Retrier, *[]time.Duration) {
	r := NewRetrier(cfg, nil)
	slept := &[]time.Duration{}
	r.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return r, slept
}

func TestDoSucceedsFirstTry(t *testing.T) {
	r, slept := newTestRetrier(RetrierConfig{MaxAttempts: 3, RateLimitCeiling: 3})

	var calls []string
	err := r.Do(context.Background(), Route{Primary: "deepl", Fallback: "openai"},
		func(_ context.Context, provider string) error {
			calls = append(calls, provider)
			return nil
		}, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"deepl"}, calls)
	assert.Empty(t, *slept)
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	r, slept := newTestRetrier(RetrierConfig{MaxAttempts: 5, RateLimitCeiling: 3})

	calls := 0
	err := r.Do(context.Background(), Route{Primary: "openai"},
		func(_ context.Context, provider string) error {
			calls++
			if calls < 3 {
				return NewError(provider, ErrKindTransient, errors.New("502"))
			}
			return nil
		}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, *slept, 2)
}

func TestDoFallsBackAfterExhaustingPrimary(t *testing.T) {
	r, _ := newTestRetrier(RetrierConfig{MaxAttempts: 2, RateLimitCeiling: 3})

	var calls []string
	err := r.Do(context.Background(), Route{Primary: "deepl", Fallback: "openai"},
		func(_ context.Context, provider string) error {
			calls = append(calls, provider)
			if provider == "deepl" {
				return NewError(provider, ErrKindTransient, errors.New("503"))
			}
			return nil
		}, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"deepl", "deepl", "openai"}, calls)
}

func TestDoAuthSkipsStraightToFallback(t *testing.T) {
	r, slept := newTestRetrier(RetrierConfig{MaxAttempts: 5, RateLimitCeiling: 3})

	var calls []string
	err := r.Do(context.Background(), Route{Primary: "openai", Fallback: "deepl"},
		func(_ context.Context, provider string) error {
			calls = append(calls, provider)
			if provider == "openai" {
				return NewError(provider, ErrKindAuth, errors.New("401"))
			}
			return nil
		}, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"openai", "deepl"}, calls, "auth failure is never retried on the same provider")
	assert.Empty(t, *slept)
}

func TestDoPermanentDoesNotEngageFallback(t *testing.T) {
	r, _ := newTestRetrier(RetrierConfig{MaxAttempts: 5, RateLimitCeiling: 3})

	var calls []string
	err := r.Do(context.Background(), Route{Primary: "deepl", Fallback: "openai"},
		func(_ context.Context, provider string) error {
			calls = append(calls, provider)
			return NewError(provider, ErrKindPermanent, errors.New("400"))
		}, nil)

	require.Error(t, err)
	assert.Equal(t, []string{"deepl"}, calls, "the same bad input would fail on the fallback too")
	assert.Equal(t, ErrKindPermanent, KindOf(err))
	assert.NotErrorIs(t, err, ErrExhausted)
}

func TestDoInputUnreadableFailsImmediately(t *testing.T) {
	r, _ := newTestRetrier(RetrierConfig{MaxAttempts: 5, RateLimitCeiling: 3})

	calls := 0
	err := r.Do(context.Background(), Route{Primary: "openai", Fallback: "deepl"},
		func(_ context.Context, provider string) error {
			calls++
			return NewError(provider, ErrKindInputUnreadable, errors.New("empty file"))
		}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, ErrKindInputUnreadable, KindOf(err))
}

func TestDoRateLimitHonorsHintAndCeiling(t *testing.T) {
	r, slept := newTestRetrier(RetrierConfig{MaxAttempts: 5, RateLimitCeiling: 3})

	var calls []string
	err := r.Do(context.Background(), Route{Primary: "deepl", Fallback: "openai"},
		func(_ context.Context, provider string) error {
			calls = append(calls, provider)
			if provider == "deepl" {
				e := NewError(provider, ErrKindRateLimited, errors.New("429"))
				e.RetryAfter = 7 * time.Second
				return e
			}
			return nil
		}, nil)

	require.NoError(t, err)
	// Ceiling 3: two waits, then the third 429 hands over to the fallback.
	assert.Equal(t, []string{"deepl", "deepl", "deepl", "openai"}, calls)
	require.Len(t, *slept, 2)
	assert.Equal(t, 7*time.Second, (*slept)[0], "provider hint overrides computed backoff")
	assert.Equal(t, 7*time.Second, (*slept)[1])
}

func TestDoRateLimitsDoNotConsumeAttempts(t *testing.T) {
	r, _ := newTestRetrier(RetrierConfig{MaxAttempts: 2, RateLimitCeiling: 5})

	calls := 0
	err := r.Do(context.Background(), Route{Primary: "openai"},
		func(_ context.Context, provider string) error {
			calls++
			if calls <= 3 {
				return NewError(provider, ErrKindRateLimited, errors.New("429"))
			}
			if calls == 4 {
				return NewError(provider, ErrKindTransient, errors.New("500"))
			}
			return nil
		}, nil)

	require.NoError(t, err)
	// Three 429s, one 500, then success: MaxAttempts 2 never tripped
	// because only the 500 counted as an attempt.
	assert.Equal(t, 5, calls)
}

func TestDoExhaustedWrapsSentinel(t *testing.T) {
	r, _ := newTestRetrier(RetrierConfig{MaxAttempts: 2, RateLimitCeiling: 3})

	err := r.Do(context.Background(), Route{Primary: "deepl", Fallback: "openai"},
		func(_ context.Context, provider string) error {
			return NewError(provider, ErrKindTransient, errors.New("boom"))
		}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)

	pe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "openai", pe.Provider, "the wrapped error is the last provider's")
}

func TestDoObserveSeesEveryCall(t *testing.T) {
	r, _ := newTestRetrier(RetrierConfig{MaxAttempts: 2, RateLimitCeiling: 3})

	var attempts []Attempt
	_ = r.Do(context.Background(), Route{Primary: "deepl", Fallback: "openai"},
		func(_ context.Context, provider string) error {
			if provider == "deepl" {
				return NewError(provider, ErrKindTransient, errors.New("503"))
			}
			return nil
		},
		func(a Attempt) { attempts = append(attempts, a) })

	require.Len(t, attempts, 3)
	assert.Equal(t, "deepl", attempts[0].Provider)
	assert.Equal(t, 1, attempts[0].Number)
	assert.Error(t, attempts[0].Err)
	assert.Equal(t, 2, attempts[1].Number)
	assert.Equal(t, "openai", attempts[2].Provider)
	assert.NoError(t, attempts[2].Err)
}

func TestDoStopsOnContextCancel(t *testing.T) {
	r := NewRetrier(RetrierConfig{MaxAttempts: 5, RateLimitCeiling: 3, Base: time.Hour, Cap: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Do(ctx, Route{Primary: "openai", Fallback: "deepl"},
			func(_ context.Context, provider string) error {
				calls++
				return NewError(provider, ErrKindTransient, errors.New("503"))
			}, nil)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.Equal(t, 1, calls, "cancellation interrupts the backoff sleep")
	case <-time.After(2 * time.Second):
		t.Fatal("retrier did not return after cancellation")
	}
}

func TestBackoffBounds(t *testing.T) {
	b := NewBackoff(2*time.Second, 60*time.Second)

	for attempt := 0; attempt < 20; attempt++ {
		d := b.Delay(attempt)
		ideal := 2 * time.Second << uint(attempt)
		if ideal > 60*time.Second || ideal <= 0 {
			ideal = 60 * time.Second
		}
		assert.GreaterOrEqual(t, d, time.Duration(float64(ideal)*0.5), "attempt %d", attempt)
		assert.LessOrEqual(t, d, time.Duration(float64(ideal)*1.5), "attempt %d", attempt)
	}
}

func TestBackoffGrowsThenCaps(t *testing.T) {
	b := NewBackoff(time.Second, 8*time.Second)

	// Strip jitter by bounding: Delay(10) must sit in [4s, 12s], the
	// jitter window around the 8s cap.
	d := b.Delay(10)
	assert.GreaterOrEqual(t, d, 4*time.Second)
	assert.LessOrEqual(t, d, 12*time.Second)
}

func TestFromHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrKind
	}{
		{http.StatusUnauthorized, ErrKindAuth},
		{http.StatusForbidden, ErrKindAuth},
		{http.StatusRequestEntityTooLarge, ErrKindInputTooLarge},
		{http.StatusTooManyRequests, ErrKindRateLimited},
		{http.StatusInternalServerError, ErrKindTransient},
		{http.StatusBadGateway, ErrKindTransient},
		{http.StatusServiceUnavailable, ErrKindTransient},
		{http.StatusBadRequest, ErrKindPermanent},
		{http.StatusNotFound, ErrKindPermanent},
	}
	for _, tt := range tests {
		e := FromHTTPStatus("openai", tt.status, http.Header{}, "body")
		assert.Equal(t, tt.want, e.Kind, "status %d", tt.status)
		assert.Equal(t, "openai", e.Provider)
	}
}

func TestFromHTTPStatusRetryAfterSeconds(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "30")
	e := FromHTTPStatus("deepl", http.StatusTooManyRequests, h, "")
	assert.Equal(t, 30*time.Second, e.RetryAfter)
}

func TestFromHTTPStatusRetryAfterDate(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", time.Now().Add(45*time.Second).UTC().Format(http.TimeFormat))
	e := FromHTTPStatus("deepl", http.StatusTooManyRequests, h, "")
	assert.Greater(t, e.RetryAfter, 40*time.Second)
	assert.LessOrEqual(t, e.RetryAfter, 45*time.Second)
}

func TestKindOfUnclassifiedDefaultsTransient(t *testing.T) {
	assert.Equal(t, ErrKindTransient, KindOf(errors.New("connection reset")))
}

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterTranslation(stubTranslator{name: "deepl"})

	p, err := reg.Translation("deepl")
	require.NoError(t, err)
	assert.Equal(t, "deepl", p.Name())

	_, err = reg.Translation("openai")
	assert.Error(t, err)
	_, err = reg.Transcription("deepl")
	assert.Error(t, err, "capability lookups are independent")
}

type stubTranslator struct{ name string }

func (s stubTranslator) Name() string { return s.name }
func (s stubTranslator) Translate(_ context.Context, texts []string, _, _ string) ([]string, error) {
	return texts, nil
}
