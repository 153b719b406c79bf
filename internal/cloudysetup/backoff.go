package cloudysetup

import (
	"math/rand/v2"
	"time"
)

// Default poll timing.
const (
	// SeedWait is the wait before the second status query.
	SeedWait = 2 * time.Second
	// MaxWait caps any single wait between status queries.
	MaxWait = 900 * time.Second
)

// Backoff computes the wait between successive status queries: double the
// previous wait, add up to one Unit of uniform jitter, and cap at Max.
// The zero value behaves like DefaultBackoff.
type Backoff struct {
	// Seed is the first wait of a session.
	Seed time.Duration
	// Max caps every computed wait.
	Max time.Duration
	// Unit scales the jitter; the added jitter lies in [0, Unit).
	Unit time.Duration
	// Jitter returns a value in [0, 1). Defaults to math/rand/v2.Float64.
	Jitter func() float64
}

// DefaultBackoff is the policy used when no override is configured.
var DefaultBackoff = Backoff{Seed: SeedWait, Max: MaxWait, Unit: time.Second}

// NextWait applies DefaultBackoff.
func NextWait(attempt int, previousWait time.Duration) time.Duration {
	return DefaultBackoff.NextWait(attempt, previousWait)
}

// SeedWait returns the first wait of a session.
func (b Backoff) SeedWait() time.Duration {
	if b.Seed <= 0 {
		return SeedWait
	}
	return b.Seed
}

// NextWait returns min(Max, previousWait*2 + jitter). The attempt number is
// accepted for symmetry with the poll loop; the policy depends only on the
// previous wait.
func (b Backoff) NextWait(_ int, previousWait time.Duration) time.Duration {
	limit := b.Max
	if limit <= 0 {
		limit = MaxWait
	}
	unit := b.Unit
	if unit <= 0 {
		unit = time.Second
	}
	jitter := b.Jitter
	if jitter == nil {
		jitter = rand.Float64
	}

	if previousWait >= limit/2 {
		return limit
	}
	next := previousWait*2 + time.Duration(jitter()*float64(unit))
	if next > limit {
		return limit
	}
	return next
}
