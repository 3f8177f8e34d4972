package api

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// staleLimiterTTL is how long a client's bucket may sit idle before it is swept.
	staleLimiterTTL = 10 * time.Minute
	sweepInterval   = time.Minute
)

// route names one rate-limited surface. Writes each ask the wallet for a
// signature, so they get budgets counted per minute.
type route struct {
	name   string
	method string
	path   string
	every  time.Duration
	burst  int
}

var defaultRoutes = []route{
	{name: "deploy", method: http.MethodPost, path: "/v1/deploy", every: time.Minute, burst: 1},
	{name: "withdraw", method: http.MethodPost, path: "/v1/withdraw", every: 30 * time.Second, burst: 1},
	{name: "tip", method: http.MethodPost, path: "/v1/tip", every: 6 * time.Second, burst: 3},
	{name: "refresh", method: http.MethodPost, path: "/v1/refresh", every: time.Second, burst: 2},
}

var readRoute = route{name: "read", every: 100 * time.Millisecond, burst: 20}

// unlimitedPaths are scrapes and the long-lived websocket.
var unlimitedPaths = map[string]bool{"/healthz": true, "/metrics": true, "/v1/ws": true}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per (route, client IP).
type RateLimiter struct {
	routes  []route
	logger  *slog.Logger
	nowFunc func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stopOnce sync.Once
	stop     chan struct{}
}

// NewRateLimiter starts a sweep of idle buckets; Stop ends it.
func NewRateLimiter(logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	rl := &RateLimiter{
		routes:  defaultRoutes,
		logger:  logger.With("component", "api_ratelimit"),
		nowFunc: time.Now,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) LimiterCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Wrap answers 429 with a Retry-After of the seconds until the client's next
// token.
func (rl *RateLimiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if unlimitedPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		rt := rl.routeFor(r)
		client := extractClientIP(r)
		now := rl.nowFunc()
		res := rl.bucketFor(rt, client, now).ReserveN(now, 1)
		if wait := res.DelayFrom(now); wait > 0 {
			res.CancelAt(now)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			rl.logger.Warn("rate limit exceeded", "route", rt.name, "client_ip", client, "retry_after", wait)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) routeFor(r *http.Request) route {
	for _, rt := range rl.routes {
		if r.Method == rt.method && r.URL.Path == rt.path {
			return rt
		}
	}
	return readRoute
}

func (rl *RateLimiter) bucketFor(rt route, client string, now time.Time) *rate.Limiter {
	key := rt.name + "|" + client

	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Every(rt.every), rt.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evictStale()
		}
	}
}

func (rl *RateLimiter) evictStale() {
	cutoff := rl.nowFunc().Add(-staleLimiterTTL)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// extractClientIP prefers the first X-Forwarded-For hop, then X-Real-IP,
// then the peer address.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
