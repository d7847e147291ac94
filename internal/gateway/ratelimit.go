package gateway

import (
	"net/http"
	"sync"
	"time"
)

// rateLimiter enforces a per-tenant fixed window: the first request in
// a window starts it, and requests past the budget are rejected until
// the window rolls over. The `now` function is injectable for
// deterministic testing.
type rateLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	windows map[string]*tenantWindow
	now     func() time.Time
}

type tenantWindow struct {
	count int
	start time.Time
}

// newRateLimiter creates a limiter allowing max requests per window per
// tenant.
func newRateLimiter(max int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		max:     max,
		window:  window,
		windows: make(map[string]*tenantWindow),
		now:     time.Now,
	}
}

// allow records one request for the tenant and reports whether it fits
// the current window.
func (rl *rateLimiter) allow(tenant string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[tenant]
	if !ok {
		w = &tenantWindow{start: now}
		rl.windows[tenant] = w
	}
	if now.Sub(w.start) >= rl.window {
		w.count = 0
		w.start = now
	}
	w.count++
	return w.count <= rl.max
}

// rateLimitMiddleware rejects requests over the tenant's budget. A nil
// limiter disables the check. Must run after authMiddleware so the
// tenant id is on the context.
func rateLimitMiddleware(limiter *rateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil && !limiter.allow(tenantID(r.Context())) {
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
