// ABOUTME: Per-principal token bucket rate limiting for the REST API
// ABOUTME: Keys on the authenticated principal, falling back to the client IP

package gateway

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/2389/fanclub-gateway/internal/auth"
)

const (
	// cleanupThreshold is the minimum map size before a cleanup pass runs.
	cleanupThreshold = 500
	// maxIdleAge is the duration after which an idle entry is eligible for cleanup.
	maxIdleAge = 10 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PrincipalRateLimiter hands out one token bucket per caller and prunes stale
// entries inline.
type PrincipalRateLimiter struct {
	entries map[string]*limiterEntry
	mu      sync.Mutex
	r       rate.Limit
	b       int
}

// NewPrincipalRateLimiter creates a new PrincipalRateLimiter.
func NewPrincipalRateLimiter(r rate.Limit, b int) *PrincipalRateLimiter {
	return &PrincipalRateLimiter{
		entries: make(map[string]*limiterEntry),
		r:       r,
		b:       b,
	}
}

// GetLimiter returns the rate.Limiter for key, pruning stale entries when the
// map exceeds cleanupThreshold.
func (p *PrincipalRateLimiter) GetLimiter(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.entries) > cleanupThreshold {
		cutoff := time.Now().Add(-maxIdleAge)
		for k, e := range p.entries {
			if e.lastSeen.Before(cutoff) {
				delete(p.entries, k)
			}
		}
	}

	e, exists := p.entries[key]
	if !exists {
		e = &limiterEntry{limiter: rate.NewLimiter(p.r, p.b)}
		p.entries[key] = e
	}
	e.lastSeen = time.Now()

	return e.limiter
}

// RateLimitMiddleware rejects callers that exceed their bucket with 429. It
// must run after the auth middleware to key on the principal.
func RateLimitMiddleware(limiter *PrincipalRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := auth.PrincipalID(r.Context())
			if key == "" {
				ip, _, err := net.SplitHostPort(r.RemoteAddr)
				if err != nil {
					ip = r.RemoteAddr
				}
				key = "ip:" + ip
			}

			if !limiter.GetLimiter(key).Allow() {
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusTooManyRequests, errorResponse{
					Error: "rate limit exceeded",
					Code:  codeRateLimited,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
