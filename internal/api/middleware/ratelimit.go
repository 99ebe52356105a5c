package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RateLimiter is a sliding-window limiter keyed by client.
type RateLimiter struct {
	requests int
	window   time.Duration
	clients  map[string]*clientWindow
	mu       sync.Mutex
	now      func() time.Time
}

type clientWindow struct {
	timestamps []time.Time
}

func NewRateLimiter(requests int, windowSeconds int) *RateLimiter {
	if requests <= 0 {
		requests = 100
	}
	if windowSeconds <= 0 {
		windowSeconds = 60
	}

	return &RateLimiter{
		requests: requests,
		window:   time.Duration(windowSeconds) * time.Second,
		clients:  make(map[string]*clientWindow),
		now:      time.Now,
	}
}

// Run forgets idle clients every interval until done is closed.
func (rl *RateLimiter) Run(done <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			rl.purge()
		}
	}
}

func (rl *RateLimiter) purge() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, c := range rl.clients {
		if len(c.timestamps) == 0 || now.Sub(c.timestamps[len(c.timestamps)-1]) > rl.window*2 {
			delete(rl.clients, key)
		}
	}
}

// Allow records a request for key if it fits in the window. It returns the
// remaining budget and when the window resets.
func (rl *RateLimiter) Allow(key string) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.clients[key]
	if !ok {
		c = &clientWindow{timestamps: make([]time.Time, 0, rl.requests)}
		rl.clients[key] = c
	}

	now := rl.now()
	windowStart := now.Add(-rl.window)

	keep := len(c.timestamps)
	for i, ts := range c.timestamps {
		if ts.After(windowStart) {
			keep = i
			break
		}
	}
	c.timestamps = c.timestamps[keep:]

	if len(c.timestamps) >= rl.requests {
		return false, 0, c.timestamps[0].Add(rl.window)
	}

	c.timestamps = append(c.timestamps, now)
	return true, rl.requests - len(c.timestamps), now.Add(rl.window)
}

// RateLimit limits requests per client IP.
func RateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return limit(limiter, getClientIP)
}

// RateLimitByUser limits authenticated requests per user and anonymous ones
// per IP. It must run after Auth or OptionalAuth.
func RateLimitByUser(limiter *RateLimiter) func(http.Handler) http.Handler {
	return limit(limiter, func(r *http.Request) string {
		if userID := GetUserID(r.Context()); userID != uuid.Nil {
			return "user:" + userID.String()
		}
		return getClientIP(r)
	})
}

func limit(limiter *RateLimiter, key func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, remaining, resetTime := limiter.Allow(key(r))

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.requests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

			if !allowed {
				retry := int64(time.Until(resetTime).Seconds()) + 1
				w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
