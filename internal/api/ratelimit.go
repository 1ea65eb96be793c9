package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// Idle buckets are dropped during allow() once sweepInterval has
	// passed since the last sweep; no background goroutine is involved.
	limiterSweepInterval = 5 * time.Minute
	limiterIdleExpiry    = 10 * time.Minute
)

// bucket is one client's token bucket plus its last activity stamp.
type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// ipLimiter hands out tokens per client IP. Every bucket starts with
// `burst` tokens and refills at `perSecond`.
type ipLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	perSecond rate.Limit
	burst     int
	lastSweep time.Time
}

func newIPLimiter(perSecond float64, burst int) *ipLimiter {
	return &ipLimiter{
		buckets:   make(map[string]*bucket),
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		lastSweep: time.Now(),
	}
}

// allow reports whether a request from ip may proceed.
func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastSweep) > limiterSweepInterval {
		l.sweep(now)
	}

	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.perSecond, l.burst)}
		l.buckets[ip] = b
	}
	b.seen = now
	return b.lim.Allow()
}

// sweep drops buckets idle past the expiry. Caller holds l.mu.
func (l *ipLimiter) sweep(now time.Time) {
	for ip, b := range l.buckets {
		if now.Sub(b.seen) > limiterIdleExpiry {
			delete(l.buckets, ip)
		}
	}
	l.lastSweep = now
}

// rateLimitMiddleware rejects requests once a client's bucket runs dry.
func rateLimitMiddleware(l *ipLimiter, trustProxy bool, logger *slog.Logger) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, trustProxy)
			if !l.allow(ip) {
				logger.Warn("rate limit exceeded",
					"ip", ip,
					"method", r.Method,
					"path", r.URL.Path,
				)
				w.Header().Set("Retry-After", "1")
				WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP resolves the address a request should be limited under.
//
// With trustProxy set, proxy headers win: X-Real-IP first, then the
// first X-Forwarded-For entry. Header values must parse as IPs so a
// client cannot mint arbitrary limiter keys. Without trustProxy only
// RemoteAddr is consulted.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := headerIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
		xff := r.Header.Get("X-Forwarded-For")
		if first, _, ok := strings.Cut(xff, ","); ok {
			xff = first
		}
		if ip := headerIP(xff); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// headerIP validates a proxy-supplied address, returning "" when it is
// absent or not an IP.
func headerIP(raw string) string {
	ip := net.ParseIP(strings.TrimSpace(raw))
	if ip == nil {
		return ""
	}
	return ip.String()
}
