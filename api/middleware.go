package api

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const apiKeyHeader = "X-API-Key"

// authenticate rejects requests without a configured API key. When no
// keys are configured the check is a pass-through.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.keys) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		if _, ok := s.keys[r.Header.Get(apiKeyHeader)]; !ok {
			writeError(w, http.StatusUnauthorized, "Invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// throttle applies the per-key hourly budget. Unauthenticated setups
// are throttled per remote address instead.
func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(apiKeyHeader)
		if key == "" {
			key = r.RemoteAddr
		}
		if !s.limiters.allow(key) {
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// keyLimiters hands out one token bucket per caller. Buckets refill at
// perHour/hour and allow the full hourly budget as a burst, matching a
// "100/hour" style limit.
type keyLimiters struct {
	perHour int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func newKeyLimiters(perHour int) *keyLimiters {
	if perHour <= 0 {
		perHour = 100
	}
	return &keyLimiters{
		perHour: perHour,
		buckets: make(map[string]*rate.Limiter),
	}
}

func (kl *keyLimiters) allow(key string) bool {
	kl.mu.Lock()
	limiter, ok := kl.buckets[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Hour/time.Duration(kl.perHour)), kl.perHour)
		kl.buckets[key] = limiter
	}
	kl.mu.Unlock()
	return limiter.Allow()
}
