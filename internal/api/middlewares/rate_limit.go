package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/time/rate"
)

// UserRateLimiter hands out one token bucket per authenticated user.
type UserRateLimiter struct {
	limit rate.Limit
	burst int
	// retryAfter is the refill interval of one token, in whole seconds.
	retryAfter int

	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// NewUserRateLimiter allows perMinute requests per user with the given burst.
// Both are raised to at least 1.
func NewUserRateLimiter(perMinute, burst int) *UserRateLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &UserRateLimiter{
		limit:      rate.Limit(float64(perMinute) / 60),
		burst:      burst,
		retryAfter: int(math.Ceil(60 / float64(perMinute))),
		limiters:   make(map[string]*rate.Limiter),
	}
}

func (l *UserRateLimiter) limiter(userID string) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.limiters[userID]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok = l.limiters[userID]; ok {
		return lim
	}
	lim = rate.NewLimiter(l.limit, l.burst)
	l.limiters[userID] = lim
	return lim
}

// Allow reports whether userID may make another request now.
func (l *UserRateLimiter) Allow(userID string) bool {
	return l.limiter(userID).Allow()
}

// Middleware rejects requests over the user's budget with 429. It must run
// after JWTMiddleware; anonymous requests share one bucket.
func (l *UserRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserIDFromContext(r.Context())
		if !l.Allow(userID) {
			w.Header().Set("Retry-After", strconv.Itoa(l.retryAfter))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
