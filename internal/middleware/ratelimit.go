package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/eurisko-info-lab/json-graphql-server/internal/observability"
)

// RateLimitConfig configures the server-wide request limiter.
type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
	Metrics *observability.SecurityMetrics
	// Route maps a request to the low-cardinality route label used on the
	// rejection metric. Nil labels every rejection with the raw path.
	Route func(*http.Request) string
}

// RateLimitMiddleware admits at most RPS requests per second on average,
// with up to Burst back to back. Rejected requests get 429 and a
// Retry-After telling the client when the next request would be admitted.
func RateLimitMiddleware(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	limiter := newGCRA(cfg.RPS, cfg.Burst, time.Now)
	route := cfg.Route
	if route == nil {
		route = func(r *http.Request) string { return r.URL.Path }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ok, wait := limiter.admit(); !ok {
				cfg.Metrics.RecordRateLimitRejection(r.Context(), route(r))
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", retryAfterSeconds(wait))
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = fmt.Fprint(w, `{"error":"rate limit exceeded"}`)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// gcra is a generic cell rate limiter. It tracks only the theoretical
// arrival time of the next request: each admitted request pushes it one
// emission interval later, and a request is admitted while it is no more
// than tolerance ahead of now.
type gcra struct {
	mu        sync.Mutex
	interval  time.Duration
	tolerance time.Duration
	tat       time.Time
	now       func() time.Time
}

// newGCRA returns nil, which admits everything, when rps or burst is not
// positive.
func newGCRA(rps float64, burst int, now func() time.Time) *gcra {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	interval := time.Duration(float64(time.Second) / rps)
	return &gcra{
		interval:  interval,
		tolerance: time.Duration(burst-1) * interval,
		now:       now,
	}
}

// admit reports whether a request arriving now conforms. When it does not,
// wait is how long until one would.
func (g *gcra) admit() (ok bool, wait time.Duration) {
	if g == nil {
		return true, 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	tat := g.tat
	if tat.Before(now) {
		tat = now
	}
	if allowAt := tat.Add(-g.tolerance); now.Before(allowAt) {
		return false, allowAt.Sub(now)
	}
	g.tat = tat.Add(g.interval)
	return true, 0
}

// retryAfterSeconds renders wait as a Retry-After value: whole seconds,
// rounded up, at least 1.
func retryAfterSeconds(wait time.Duration) string {
	secs := int64(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
