package web

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/JonMunkholm/ThreatBoard/internal/web/middleware"
	"golang.org/x/time/rate"
)

// errRateLimited maps to RATE001.
var errRateLimited = errors.New("rate limit exceeded")

// rateLimiter is a token bucket per client IP. Each IP may burst up to
// perMinute requests and refills at perMinute per minute.
type rateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	perMinute int
	now       func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(perMinute int) *rateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &rateLimiter{
		visitors:  make(map[string]*visitor),
		perMinute: perMinute,
		now:       time.Now,
	}
}

// allow consumes a token for ip if one is available.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{
			limiter: rate.NewLimiter(rate.Limit(float64(rl.perMinute)/60), rl.perMinute),
		}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// cleanup drops visitors idle longer than maxIdle. Returns the number removed.
func (rl *rateLimiter) cleanup(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-maxIdle)
	removed := 0
	for ip, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, ip)
			removed++
		}
	}
	return removed
}

// run calls cleanup every minute until stop is closed.
func (rl *rateLimiter) run(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			rl.cleanup(2 * time.Minute)
		}
	}
}

// middleware rejects requests over the limit with 429.
func (s *Server) rateLimit(rl *rateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.allow(middleware.ClientIP(r)) {
				retry := 60 / rl.perMinute
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				s.respondError(w, r, errRateLimited, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
