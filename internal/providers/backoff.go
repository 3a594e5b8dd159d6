package providers

import (
	"math/rand"
	"sync"
	"time"
)

// Backoff computes jittered exponential delays between retries of the
// same provider. The delay for attempt n is min(cap, base*2^n) scaled by
// a uniform factor in [0.5, 1.5).
type Backoff struct {
	base time.Duration
	cap  time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewBackoff creates a backoff with the given base and cap.
func NewBackoff(base, capDelay time.Duration) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if capDelay < base {
		capDelay = base
	}
	return &Backoff{
		base: base,
		cap:  capDelay,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Delay returns the jittered delay before retry attempt n (zero-based:
// the delay after the first failure is Delay(0)).
func (b *Backoff) Delay(attempt int) time.Duration {
	d := b.cap
	// Shifting past 62 bits would overflow; the cap applies long before.
	if attempt < 62 {
		if scaled := b.base << uint(attempt); scaled > 0 && scaled < b.cap {
			d = scaled
		}
	}

	b.mu.Lock()
	factor := 0.5 + b.rng.Float64()
	b.mu.Unlock()

	return time.Duration(float64(d) * factor)
}
