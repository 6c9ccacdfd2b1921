package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type requestIDKey struct{}

// requestID assigns a unique request ID to each request. An incoming
// X-Request-ID header is reused; otherwise a new UUID is generated. The ID
// is set on the response header and stored in the request context.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestIDFromContext extracts the request ID, or "" when absent.
func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// statusRecorder captures the response status for the request logger.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// requestLogger logs one line per request at info level.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
				"request_id", requestIDFromContext(r.Context()),
			)
		})
	}
}

// clientTTL is how long an idle client's limiter is kept.
const clientTTL = 10 * time.Minute

// clientLimiter tracks a per-client rate limiter and when it was last seen,
// in unix nanos so request goroutines and the sweep never race.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// limiterTable holds one token bucket per client IP. Idle entries are swept
// inline from the request path, at most once per half TTL, so the table
// needs no background goroutine.
type limiterTable struct {
	rps   float64
	burst int
	ttl   time.Duration

	clients   sync.Map // map[string]*clientLimiter
	lastSweep atomic.Int64
}

func newLimiterTable(rps float64, burst int, ttl time.Duration) *limiterTable {
	t := &limiterTable{rps: rps, burst: burst, ttl: ttl}
	t.lastSweep.Store(time.Now().UnixNano())
	return t
}

// get returns the limiter for ip, creating it on first sight. At most one
// caller per sweep interval pays for the sweep; the CAS makes the others
// skip it.
func (t *limiterTable) get(ip string, now time.Time) *rate.Limiter {
	if prev := t.lastSweep.Load(); now.UnixNano()-prev > t.ttl.Nanoseconds()/2 &&
		t.lastSweep.CompareAndSwap(prev, now.UnixNano()) {
		t.sweep(now)
	}

	if v, ok := t.clients.Load(ip); ok {
		cl := v.(*clientLimiter)
		cl.lastSeen.Store(now.UnixNano())
		return cl.limiter
	}

	cl := &clientLimiter{limiter: rate.NewLimiter(rate.Limit(t.rps), t.burst)}
	cl.lastSeen.Store(now.UnixNano())
	v, _ := t.clients.LoadOrStore(ip, cl)
	return v.(*clientLimiter).limiter
}

// sweep drops clients idle for longer than the TTL.
func (t *limiterTable) sweep(now time.Time) {
	t.clients.Range(func(key, value any) bool {
		cl := value.(*clientLimiter)
		if now.UnixNano()-cl.lastSeen.Load() > t.ttl.Nanoseconds() {
			t.clients.Delete(key)
		}
		return true
	})
}

// rateLimiter enforces a per-client token-bucket rate limit, responding 429
// with standard rate-limit headers when exceeded.
func rateLimiter(rps float64, burst int) func(http.Handler) http.Handler {
	limiters := newLimiterTable(rps, burst, clientTTL)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := limiters.get(clientIP(r), time.Now())

			if !limiter.Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": "rate limit exceeded",
					"kind":  "rate_limit",
				})
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(burst))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the client IP from RemoteAddr, stripping the port.
// X-Forwarded-For is untrusted and ignored to prevent rate-limit bypass via
// header spoofing.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
