package gateway

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/jibby/internal/logging"
	"github.com/soyeahso/jibby/internal/metrics"
	"golang.org/x/time/rate"
)

// withMiddleware wraps a handler with the standard middleware chain.
func withMiddleware(handler http.Handler, log *logging.Logger, corsOrigins []string) http.Handler {
	h := handler
	h = requestIDMiddleware(h)
	h = corsMiddleware(h, corsOrigins)
	h = loggingMiddleware(h, log)
	return h
}

// loggingMiddleware logs each HTTP request and records it in the request
// metrics, labelled by the matched route pattern.
func loggingMiddleware(next http.Handler, log *logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordRequest(r.Method, route, sw.status, time.Since(start))
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("http request")
	})
}

// requestIDMiddleware adds a unique request ID to each request/response.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware handles CORS headers.
func corsMiddleware(next http.Handler, allowedOrigins []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && isOriginAllowed(origin, allowedOrigins) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isOriginAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

// statusWriter wraps ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Hijack lets the WebSocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// ipLimiter keeps one token bucket per client address.
type ipLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*visitor
	maxIPs   int
}

type visitor struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(limit rate.Limit, burst int) *ipLimiter {
	return &ipLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*visitor),
		maxIPs:   10000,
	}
}

// perMinute allows n requests per minute with a burst of n.
func perMinute(n int) *ipLimiter {
	return newIPLimiter(rate.Every(time.Minute/time.Duration(n)), n)
}

func clientHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil || host == "" {
		return remoteAddr
	}
	return host
}

func (l *ipLimiter) get(remoteAddr string) *rate.Limiter {
	host := clientHost(remoteAddr)
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.limiters[host]
	if !ok {
		if len(l.limiters) >= l.maxIPs {
			l.evictLocked()
		}
		v = &visitor{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[host] = v
	}
	v.lastSeen = time.Now()
	return v.lim
}

// evictLocked drops the least recently seen address.
func (l *ipLimiter) evictLocked() {
	var oldest string
	var oldestAt time.Time
	for ip, v := range l.limiters {
		if oldest == "" || v.lastSeen.Before(oldestAt) {
			oldest, oldestAt = ip, v.lastSeen
		}
	}
	delete(l.limiters, oldest)
}

// Allow consumes a token for remoteAddr.
func (l *ipLimiter) Allow(remoteAddr string) bool {
	return l.get(remoteAddr).Allow()
}

// Exhausted reports whether remoteAddr has no tokens left, without
// consuming one.
func (l *ipLimiter) Exhausted(remoteAddr string) bool {
	return l.get(remoteAddr).Tokens() < 1
}

// rateLimitMiddleware rejects callers that exceed their budget.
func rateLimitMiddleware(next http.Handler, l *ipLimiter) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(r.RemoteAddr) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware requires a valid bearer credential.
func authMiddleware(next http.Handler, auth ResolvedAuth) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := AuthorizeToken(auth, bearerToken(r))
		if !res.OK {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", res.Reason, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
