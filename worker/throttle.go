package worker

import (
	"sync"

	"golang.org/x/time/rate"
)

// throttle holds one token bucket per queue name. Buckets are created on
// first use from the options of that call.
type throttle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newThrottle() *throttle {
	return &throttle{limiters: make(map[string]*rate.Limiter)}
}

// allow reports whether a job from queue may be launched now.
func (t *throttle) allow(queue string, opts Options) bool {
	if opts.RateLimit <= 0 {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	l := t.limiters[queue]
	if l == nil {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
		t.limiters[queue] = l
	}
	return l.Allow()
}
