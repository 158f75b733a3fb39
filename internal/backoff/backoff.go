// Package backoff implements the pure, stateless retry-delay function
// described in spec.md §4.C. It holds no queue or clock state; callers
// pass retry_count and last_attempt explicitly.
package backoff

import (
	"math/rand"
	"time"
)

// Policy holds the tunables; zero value is not valid, use Default or set
// every field.
type Policy struct {
	Base       time.Duration
	Max        time.Duration
	MaxJitter  time.Duration
}

// Default matches spec.md §6's configuration defaults.
var Default = Policy{
	Base:      1000 * time.Millisecond,
	Max:       30000 * time.Millisecond,
	MaxJitter: 1000 * time.Millisecond,
}

// Delay computes delay(retry_count) = min(Base*2^retry_count, Max) + jitter,
// so it saturates at Max+MaxJitter. Jitter is sampled fresh on every call via math/rand — the only source of
// non-determinism the spec allows for this otherwise-pure function; no
// library in the example corpus exposes this exact "pure function of an
// explicit retry count" shape, so plain math/rand is used here rather than
// a stateful backoff iterator (see DESIGN.md).
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}

	base := p.Base
	for i := 0; i < retryCount; i++ {
		base *= 2
		if base >= p.Max {
			base = p.Max
			break
		}
	}

	jitter := time.Duration(0)
	if p.MaxJitter > 0 {
		jitter = time.Duration(rand.Int63n(int64(p.MaxJitter) + 1))
	}

	d := base + jitter
	if d > p.Max+p.MaxJitter {
		d = p.Max + p.MaxJitter
	}
	return d
}

// EligibleAt returns the time at which an item with the given retryCount
// and lastAttempt becomes eligible for redispatch. retryCount=0 is always
// immediately eligible (spec.md §4.C).
func (p Policy) EligibleAt(lastAttempt time.Time, retryCount int) time.Time {
	if retryCount < 1 {
		return time.Time{}
	}
	return lastAttempt.Add(p.Delay(retryCount - 1))
}

// IsEligible reports whether an item is eligible for dispatch at now.
func (p Policy) IsEligible(lastAttempt time.Time, retryCount int, now time.Time) bool {
	if retryCount < 1 {
		return true
	}
	return !p.EligibleAt(lastAttempt, retryCount).After(now)
}
