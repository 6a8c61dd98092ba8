package httpapi

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxTrackedLimiters = 10000

// userLimiter hands out one token bucket per user. A user may start
// limit generations per window, refilled evenly.
type userLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	every    rate.Limit
	burst    int
}

func newUserLimiter(limit int, window time.Duration) *userLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &userLimiter{
		limiters: make(map[int64]*rate.Limiter),
		every:    rate.Every(window / time.Duration(limit)),
		burst:    limit,
	}
}

func (l *userLimiter) Allow(userID int64) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[userID]
	if !ok {
		// Crude bound on memory; a reset only ever grants extra tokens.
		if len(l.limiters) >= maxTrackedLimiters {
			l.limiters = make(map[int64]*rate.Limiter)
		}
		limiter = rate.NewLimiter(l.every, l.burst)
		l.limiters[userID] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}
