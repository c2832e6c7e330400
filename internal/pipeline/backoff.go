package pipeline

import (
	"math/rand"
	"time"
)

// truncatedBackoff implements the backoff.BackOff interface from
// github.com/cenkalti/backoff/v5: base 200ms, doubling, capped at 3000ms,
// plus uniform jitter in [0, 200)ms. A custom BackOff is used instead of the
// library's own ExponentialBackOff (whose jitter is multiplicative) because
// callers need exact, reproducible per-attempt delay bounds.
type truncatedBackoff struct {
	attempt int
	base    time.Duration
	max     time.Duration
	jitter  time.Duration
	rng     *rand.Rand
}

func newTruncatedBackoff() *truncatedBackoff {
	return &truncatedBackoff{
		base:   200 * time.Millisecond,
		max:    3000 * time.Millisecond,
		jitter: 200 * time.Millisecond,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NextBackOff returns the delay before the next retry attempt, satisfying
// github.com/cenkalti/backoff/v5's BackOff interface.
func (b *truncatedBackoff) NextBackOff() time.Duration {
	delay := b.base * (1 << uint(b.attempt))
	if delay > b.max {
		delay = b.max
	}
	b.attempt++
	return delay + time.Duration(b.rng.Int63n(int64(b.jitter)))
}
