package httpx

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// Expired windows are dropped lazily, at most once per prune interval.
const rateLimiterPruneInterval = 5 * time.Minute

// RateLimiter counts requests per key in fixed windows.
type RateLimiter interface {
	Allow(key string, limit int, window time.Duration) rateDecision
	Close()
}

type rateDecision struct {
	allowed   bool
	count     int
	windowEnd time.Time
}

// fixedWindow is the counter for one key. The window is open while now is
// before ends.
type fixedWindow struct {
	hits int
	ends time.Time
}

type memoryRateLimiter struct {
	mu        sync.Mutex
	windows   map[string]fixedWindow
	now       func() time.Time
	nextPrune time.Time
}

// NewMemoryRateLimiter returns a process-local limiter. It is the fallback
// when no Redis address is configured.
func NewMemoryRateLimiter() RateLimiter {
	return newMemoryRateLimiter(time.Now)
}

func newMemoryRateLimiter(now func() time.Time) *memoryRateLimiter {
	return &memoryRateLimiter{
		windows:   make(map[string]fixedWindow),
		now:       now,
		nextPrune: now().Add(rateLimiterPruneInterval),
	}
}

func (rl *memoryRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if !now.Before(rl.nextPrune) {
		rl.prune(now)
		rl.nextPrune = now.Add(rateLimiterPruneInterval)
	}

	current := rl.windows[key]
	if !now.Before(current.ends) {
		current = fixedWindow{ends: now.Add(window)}
	}
	if current.hits >= limit {
		return rateDecision{count: current.hits, windowEnd: current.ends}
	}
	current.hits++
	rl.windows[key] = current
	return rateDecision{allowed: true, count: current.hits, windowEnd: current.ends}
}

// prune must be called with mu held.
func (rl *memoryRateLimiter) prune(now time.Time) {
	for key, w := range rl.windows {
		if !now.Before(w.ends) {
			delete(rl.windows, key)
		}
	}
}

// Close is a no-op; the memory limiter owns no goroutines.
func (rl *memoryRateLimiter) Close() {}

func (r *Router) withRateLimit(route string, limit int, window time.Duration, keyFn func(*http.Request) string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if limit <= 0 || r.limiter == nil {
			next(w, req)
			return
		}
		key := keyFn(req)
		if key == "" {
			key = r.rateLimitKeyIP(req)
		}
		decision := r.limiter.Allow(key, limit, window)
		r.applyRateHeaders(w, limit, decision)
		if decision.allowed {
			next(w, req)
			return
		}
		r.recordRateLimitHit(route, rateMetricKey(key))
		writeError(w, http.StatusTooManyRequests, "Too many requests")
	}
}

func (r *Router) handlerAuthRate(route string, limit int, window time.Duration, next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(r.withRateLimit(route, limit, window, r.rateLimitKeyUser, next))
}

func (r *Router) rateLimitKeyUser(req *http.Request) string {
	if identity, ok := identityFromContext(req.Context()); ok && identity.ID != "" {
		return "user:" + identity.ID
	}
	return ""
}

// rateLimitKeyIP keys on the connection peer, or on the forwarded client when
// the peer is a configured proxy.
func (r *Router) rateLimitKeyIP(req *http.Request) string {
	host := r.proxies.clientAddr(req)
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}

// rateMetricKey keeps only the key kind ("ip", "user") as a metric label.
func rateMetricKey(key string) string {
	if kind, _, ok := strings.Cut(key, ":"); ok && kind != "" {
		return kind
	}
	if key == "" {
		return "unknown"
	}
	return key
}
