package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Jiangye-Song/resume-agent/internal/logging"
)

const (
	// defaultRateLimit is the sustained requests per second per client.
	defaultRateLimit = 10
	// defaultRateBurst is the per-client burst.
	defaultRateBurst = 20
	// clientIdleTTL is how long an unseen client's bucket is kept.
	clientIdleTTL = 5 * time.Minute
	// sweepInterval is how often idle buckets are dropped.
	sweepInterval = time.Minute
)

// bucket is one client's token bucket.
type bucket struct {
	// lim is the token bucket.
	lim *rate.Limiter
	// seen is the last request time, used for eviction.
	seen time.Time
}

// rateLimiter keeps a token bucket per client IP. Chat and admin routes share
// it, so a client hammering the admin login also slows its own chat requests.
type rateLimiter struct {
	// mu protects buckets.
	mu sync.Mutex
	// buckets maps client IP to its bucket.
	buckets map[string]*bucket
	// limit is the sustained rate per client.
	limit rate.Limit
	// burst is the bucket size per client.
	burst int
	// now is the clock, replaced in tests.
	now func() time.Time
}

// newRateLimiter starts a limiter and its sweeper. Call stop to end the
// sweeper goroutine.
func newRateLimiter(rps float64, burst int) (rl *rateLimiter, stop func()) {
	rl = &rateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(sweepInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				rl.sweep()
			}
		}
	}()
	var once sync.Once
	return rl, func() { once.Do(func() { close(done) }) }
}

// allow takes one token for key. When the bucket is empty it returns false
// and how long until a token is available.
func (rl *rateLimiter) allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.seen = now
	rl.mu.Unlock()

	res := b.lim.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	if wait := res.DelayFrom(now); wait > 0 {
		res.CancelAt(now)
		return false, wait
	}
	return true, 0
}

// sweep drops buckets idle for longer than clientIdleTTL.
func (rl *rateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-clientIdleTTL)
	for k, b := range rl.buckets {
		if b.seen.Before(cutoff) {
			delete(rl.buckets, k)
		}
	}
}

// size reports the number of tracked clients.
func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// rateLimit rejects requests over the per-client budget with 429 and a
// Retry-After header in whole seconds.
func (s *Server) rateLimit(rl *rateLimiter, name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		ok, wait := rl.allow(ip)
		if !ok {
			s.metrics.rateLimitedTotal.WithLabelValues(name).Inc()
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.Duration("retry_after", wait),
			)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeError(r.Context(), w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP is the remote address without its port. X-Forwarded-For is not
// trusted: a client could set it to dodge the limit.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
