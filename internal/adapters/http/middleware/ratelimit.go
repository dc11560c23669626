package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	sweepPeriod = time.Minute
	idleAfter   = 5 * time.Minute
)

// RateLimiter hands each client IP a bucket of rate tokens that refills in
// full once per interval.
type RateLimiter struct {
	rate     int
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stop     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	tokens     int
	refilledAt time.Time
	lastSeen   time.Time
}

// NewRateLimiter allows rate requests per interval from each IP.
// Call Stop to end the background sweep of idle buckets.
func NewRateLimiter(rate int, interval time.Duration) *RateLimiter {
	rl := &RateLimiter{
		rate:     rate,
		interval: interval,
		now:      time.Now,
		buckets:  make(map[string]*bucket),
		stop:     make(chan struct{}),
	}
	go rl.sweep(sweepPeriod, idleAfter)
	return rl
}

// Allow reports whether ip may make a request now and takes a token if so.
// PRE: ip is non-empty
// POST: At most rate calls per interval return true for one ip
func (rl *RateLimiter) Allow(ip string) bool {
	ok, _ := rl.take(ip)
	return ok
}

// take returns false and the time until the next refill when ip's bucket is empty.
func (rl *RateLimiter) take(ip string) (bool, time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{tokens: rl.rate, refilledAt: now}
		rl.buckets[ip] = b
	}
	b.lastSeen = now

	// Only whole intervals refill; the partial one carries over.
	if n := now.Sub(b.refilledAt) / rl.interval; n > 0 {
		b.tokens = rl.rate
		b.refilledAt = b.refilledAt.Add(n * rl.interval)
	}
	if b.tokens <= 0 {
		return false, b.refilledAt.Add(rl.interval).Sub(now)
	}
	b.tokens--
	return true, 0
}

func (rl *RateLimiter) sweep(period, idle time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evictIdle(idle)
		}
	}
}

// evictIdle drops buckets not used within idle.
func (rl *RateLimiter) evictIdle(idle time.Duration) {
	cutoff := rl.now().Add(-idle)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, ip)
		}
	}
}

// Stop ends the background sweep. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// clientIP strips the port from RemoteAddr so every connection from one
// host shares a bucket.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit rejects requests over the limiter's budget with 429 and a
// Retry-After header in whole seconds.
func RateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			ok, wait := limiter.take(ip)
			if !ok {
				slog.Warn("rate_limit_exceeded", "ip", ip, "path", r.URL.Path)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"too many requests","code":"rate_limited","retryable":true}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(wait time.Duration) int {
	return max(1, int(math.Ceil(wait.Seconds())))
}
