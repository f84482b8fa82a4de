// Package retry provides the exponential backoff policy used to space out
// webhook delivery retries.
package retry

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Policy defines the backoff behavior for failed delivery attempts.
//
// The delay for attempt n (1-based) is:
//
//	base  = min(BaseDelay * 2^(n-1), MaxDelay)
//	delay = base + uniform(0, base/JitterDivisor)
//
// With the defaults this yields bases of 30s, 1m, 2m, 4m, 8m, capped at 10m,
// with up to 20% jitter to avoid synchronized retry storms across subscriptions.
type Policy struct {
	BaseDelay     time.Duration // delay base for the first retry
	MaxDelay      time.Duration // cap on the exponential base
	JitterDivisor int64         // jitter drawn from [0, base/JitterDivisor)

	// Rand supplies jitter randomness. Nil uses the shared global source;
	// tests inject a seeded source for determinism.
	Rand *rand.Rand
}

// DefaultPolicy returns the production backoff policy:
// 30s base doubling per attempt, capped at 10 minutes, jitter up to base/5.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:     30 * time.Second,
		MaxDelay:      10 * time.Minute,
		JitterDivisor: 5,
	}
}

// Base returns the un-jittered exponential base delay for an attempt (1-based).
func (p Policy) Base(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	base := p.BaseDelay
	// Shift instead of math.Pow; cap early so large attempt numbers can't overflow.
	for i := 1; i < attempt; i++ {
		base *= 2
		if base >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if base > p.MaxDelay {
		return p.MaxDelay
	}
	return base
}

// Delay returns the jittered delay to wait before the given attempt (1-based).
// The result is always in [base, base+base/JitterDivisor).
func (p Policy) Delay(attempt int) time.Duration {
	base := p.Base(attempt)

	div := p.JitterDivisor
	if div <= 0 {
		div = 5
	}
	span := int64(base) / div
	if span <= 0 {
		return base
	}

	var jitter int64
	if p.Rand != nil {
		jitter = p.Rand.Int63n(span)
	} else {
		jitter = rand.Int63n(span)
	}
	return base + time.Duration(jitter)
}

// Schedule returns a human-readable description of the base delays up to
// maxAttempts, for logs and diagnostics.
func (p Policy) Schedule(maxAttempts int) string {
	var b strings.Builder
	for i := 1; i <= maxAttempts; i++ {
		if i > 1 {
			b.WriteString(" → ")
		}
		fmt.Fprintf(&b, "%v", p.Base(i))
	}
	return b.String()
}
