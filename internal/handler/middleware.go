package handler

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/sekolahku/merit/internal/metrics"
)

// slowRequestThreshold marks requests worth a warning.
const slowRequestThreshold = 5 * time.Second

// requestIDHeader carries the request id back to the client.
const requestIDHeader = "X-Request-Id"

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// RequestLogger assigns each request an id, injects a request-scoped
// logger into the context, and logs the outcome.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(requestIDHeader)
			if requestID == "" {
				requestID = xid.New().String()
			}
			w.Header().Set(requestIDHeader, requestID)

			reqLogger := logger.With().
				Str("request_id", requestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Logger()

			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()

			next.ServeHTTP(rec, r.WithContext(reqLogger.WithContext(r.Context())))

			elapsed := time.Since(start)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}

			event := reqLogger.Info()
			if elapsed > slowRequestThreshold {
				event = reqLogger.Warn().Bool("slow", true)
			}
			event.
				Int("status", rec.status).
				Dur("elapsed", elapsed).
				Str("remote", r.RemoteAddr).
				Msg("request")
		})
	}
}

// Metrics records request counts, durations, and in-flight gauge.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			done := m.RequestStarted()
			defer done()

			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()

			next.ServeHTTP(rec, r)

			if rec.status == 0 {
				rec.status = http.StatusOK
			}

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = r.URL.Path
			}
			m.ObserveHTTP(r.Method, route, rec.status, time.Since(start))
		})
	}
}

// clientLimiter tracks one token bucket per client address.
type clientLimiter struct {
	mu       sync.Mutex
	clients  map[string]*limiterEntry
	rps      rate.Limit
	burst    int
	lastSeen time.Duration
}

type limiterEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

// RateLimit limits each client address to rps requests per second with
// the given burst. Stale client buckets are evicted in the background.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	cl := &clientLimiter{
		clients:  make(map[string]*limiterEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
		lastSeen: 3 * time.Minute,
	}
	go cl.evictLoop()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cl.allow(clientAddr(r)) {
				writeJSON(w, http.StatusTooManyRequests, errorBody{
					StatusCode: http.StatusTooManyRequests,
					Message:    "too many requests",
					Error:      http.StatusText(http.StatusTooManyRequests),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (cl *clientLimiter) allow(addr string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	entry, ok := cl.clients[addr]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(cl.rps, cl.burst)}
		cl.clients[addr] = entry
	}
	entry.seen = time.Now()
	return entry.limiter.Allow()
}

func (cl *clientLimiter) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cl.mu.Lock()
		for addr, entry := range cl.clients {
			if time.Since(entry.seen) > cl.lastSeen {
				delete(cl.clients, addr)
			}
		}
		cl.mu.Unlock()
	}
}

// clientAddr strips the port from the remote address.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
