package outbox

import (
	"math/rand/v2"
	"time"
)

// Backoff computes how long a requeued record waits before it is eligible again.
type Backoff struct {
	Base time.Duration
	Max  time.Duration

	// Jitter spreads delays over [d/2, d] so many workers requeueing at once
	// do not reclaim in lockstep. Off by default, Delay is deterministic then.
	Jitter bool
}

func NewBackoff(base, maxDelay time.Duration) Backoff {
	return Backoff{Base: base, Max: maxDelay}
}

// Delay returns min(Base * 2^attempts, Max), where attempts counts the tries made before this one.
func (b Backoff) Delay(attempts int) time.Duration {
	d := b.exponential(attempts)
	if !b.Jitter || d <= 1 {
		return d
	}

	half := d / 2
	return half + rand.N(d-half+1) //nolint:gosec // jitter does not need crypto rand
}

func (b Backoff) exponential(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if b.Base <= 0 {
		return 0
	}

	d := b.Base
	for range attempts {
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
		// Stop doubling before it overflows.
		if d > time.Duration(1<<62)/2 {
			break
		}
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}

	return d
}
