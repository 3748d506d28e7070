package v1

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	chatRequestsPerMinute = 30
	limiterIdleExpiry     = 10 * time.Minute
)

// RateLimiter applies a per-client token bucket to expensive endpoints.
// Entries for idle clients are dropped lazily on the next sweep.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	lastGC   time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*clientLimiter),
		lastGC:   time.Now(),
	}
}

// Allow reports whether the client identified by key may proceed.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.lastGC) > limiterIdleExpiry {
		for k, cl := range r.limiters {
			if now.Sub(cl.lastSeen) > limiterIdleExpiry {
				delete(r.limiters, k)
			}
		}
		r.lastGC = now
	}

	cl, ok := r.limiters[key]
	if !ok {
		cl = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(chatRequestsPerMinute)/60, chatRequestsPerMinute),
		}
		r.limiters[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter.Allow()
}
