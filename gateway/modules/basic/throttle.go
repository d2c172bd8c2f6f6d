package basic

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	staleLimiter = 10 * time.Minute
)

type (
	// throttle keeps one limiter per source address.
	throttle struct {
		sync.Mutex
		perMinute int
		limiters  map[string]*sourceLimiter
		lastSweep time.Time
	}

	sourceLimiter struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}
)

func newThrottle(perMinute int) *throttle {
	if perMinute <= 0 {
		return nil
	}
	return &throttle{
		perMinute: perMinute,
		limiters:  make(map[string]*sourceLimiter),
	}
}

func (t *throttle) allow(source string, now time.Time) bool {
	if t == nil {
		return true
	}
	t.Lock()
	defer t.Unlock()
	t.sweep(now)
	sl, ok := t.limiters[source]
	if !ok {
		sl = &sourceLimiter{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(t.perMinute)), t.perMinute),
		}
		t.limiters[source] = sl
	}
	sl.lastSeen = now
	return sl.limiter.AllowN(now, 1)
}

// sweep drops limiters of sources that went quiet, a quiet source would be
// back at full burst anyway.
func (t *throttle) sweep(now time.Time) {
	if now.Sub(t.lastSweep) < staleLimiter {
		return
	}
	t.lastSweep = now
	for source, sl := range t.limiters {
		if now.Sub(sl.lastSeen) >= staleLimiter {
			delete(t.limiters, source)
		}
	}
}
