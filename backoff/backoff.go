// Package backoff provides release delay strategies for failed attempts.
// A worker without a strategy releases with its fixed delay option.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes how long a released job stays unavailable.
type Strategy interface {
	// Delay receives the number of attempts made so far, which is 1 after
	// the first failure.
	Delay(attempts int) time.Duration
}

// Func adapts a function to Strategy.
type Func func(attempts int) time.Duration

// Delay calls f.
func (f Func) Delay(attempts int) time.Duration { return f(attempts) }

// Fixed always returns the same delay.
type Fixed time.Duration

// Delay returns d.
func (d Fixed) Delay(int) time.Duration { return time.Duration(d) }

// Steps returns the delay at index attempts-1, repeating the last step once
// attempts run past the end. An empty Steps never delays.
type Steps []time.Duration

// Delay returns the step for attempts.
func (s Steps) Delay(attempts int) time.Duration {
	if len(s) == 0 {
		return 0
	}
	i := attempts - 1
	switch {
	case i < 0:
		i = 0
	case i >= len(s):
		i = len(s) - 1
	}
	return s[i]
}

// Linear grows by Step per attempt, capped at Max when Max is positive.
type Linear struct {
	Step time.Duration
	Max  time.Duration
}

// Delay returns Step * attempts.
func (l Linear) Delay(attempts int) time.Duration {
	return capAt(l.Step*time.Duration(max(attempts, 1)), l.Max)
}

// Exponential doubles Initial per attempt, capped at Max when Max is
// positive. With Jitter set the result is drawn uniformly from
// [0, computed delay].
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  bool
}

// Delay returns Initial * 2^(attempts-1).
func (e Exponential) Delay(attempts int) time.Duration {
	base := float64(e.Initial) * math.Pow(2, float64(max(attempts, 1)-1))
	if base > math.MaxInt64 {
		base = math.MaxInt64
	}
	d := capAt(time.Duration(base), e.Max)
	if e.Jitter {
		return time.Duration(rand.Float64() * float64(d)) //nolint:gosec // jitter does not need crypto rand
	}
	return d
}

func capAt(d, limit time.Duration) time.Duration {
	if limit > 0 && d > limit {
		return limit
	}
	return d
}
