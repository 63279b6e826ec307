package transport

import (
	"sync"

	"golang.org/x/time/rate"
)

// userLimiter hands out one token bucket per user.
type userLimiter struct {
	limit    rate.Limit
	burst    int
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// newUserLimiter returns nil when perSecond is not positive, which disables
// limiting.
func newUserLimiter(perSecond float64, burst int) *userLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &userLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow consumes a token for userID, reporting false when none is left.
func (l *userLimiter) Allow(userID string) bool {
	if l == nil {
		return true
	}
	return l.get(userID).Allow()
}

func (l *userLimiter) get(userID string) *rate.Limiter {
	l.mu.RLock()
	limiter, ok := l.limiters[userID]
	l.mu.RUnlock()
	if ok {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// Double-check after acquiring write lock
	if limiter, ok = l.limiters[userID]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(l.limit, l.burst)
	l.limiters[userID] = limiter
	return limiter
}
