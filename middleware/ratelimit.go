package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wehriam/hiitrack/observability"
)

// RateLimiter applies a per-key token bucket: rpm tokens refill per minute
// up to a capacity of burst. State is in-memory per process; distributed
// deployments would move the buckets into the store.
type RateLimiter struct {
	logger  zerolog.Logger
	metrics *observability.Metrics
	enabled bool
	rpm     int
	burst   int
	mu      sync.Mutex
	buckets map[string]*tokenBucket
}

type tokenBucket struct {
	tokens   float64
	lastFill time.Time
}

// NewRateLimiter creates a new rate limiter. A burst of zero or less falls
// back to rpm, making the bucket a plain per-minute window.
func NewRateLimiter(logger zerolog.Logger, metrics *observability.Metrics, enabled bool, rpm, burst int) *RateLimiter {
	if burst <= 0 {
		burst = rpm
	}
	return &RateLimiter{
		logger:  logger,
		metrics: metrics,
		enabled: enabled,
		rpm:     rpm,
		burst:   burst,
		buckets: make(map[string]*tokenBucket),
	}
}

// Handler returns the rate limiting middleware handler.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.enabled {
			next.ServeHTTP(w, r)
			return
		}

		// Key by the authenticated user when an earlier middleware has set
		// one; otherwise by the remote address. The router mounts this limiter
		// ahead of Basic auth, so there every request is keyed by remote address.
		key := AuthUser(r.Context())
		if key == "" {
			key = r.RemoteAddr
		}

		allowed, remaining, retryAfter := rl.take(key)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.rpm))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(retryAfter).Unix(), 10))

		if !allowed {
			secs := int(retryAfter.Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			http.Error(w, fmt.Sprintf(`{"error":"rate_limit_exceeded","message":"Rate limit of %d requests per minute exceeded","retry_after":%d}`,
				rl.rpm, secs), http.StatusTooManyRequests)
			rl.logger.Warn().Str("key", truncateKey(key)).Int("limit", rl.rpm).Msg("rate limit exceeded")
			if rl.metrics != nil {
				rl.metrics.TrackRateLimitRejected(truncateKey(key))
			}
			return
		}

		next.ServeHTTP(w, r)
	})
}

// take refills the key's bucket for the elapsed time, then spends one token
// if available. retryAfter is how long until the next token when rejected,
// or until the bucket is full again when allowed.
func (rl *RateLimiter) take(key string) (allowed bool, remaining int, retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: float64(rl.burst), lastFill: now}
		rl.buckets[key] = b
	}

	perSecond := float64(rl.rpm) / 60.0
	b.tokens += now.Sub(b.lastFill).Seconds() * perSecond
	if b.tokens > float64(rl.burst) {
		b.tokens = float64(rl.burst)
	}
	b.lastFill = now

	if b.tokens < 1 {
		wait := time.Duration((1 - b.tokens) / perSecond * float64(time.Second))
		return false, 0, wait
	}

	b.tokens--
	refill := time.Duration((float64(rl.burst) - b.tokens) / perSecond * float64(time.Second))
	return true, int(b.tokens), refill
}

func truncateKey(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8] + "..."
}

// Cleanup evicts buckets that have been idle for more than two minutes.
// Call periodically.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-2 * time.Minute)
	for key, b := range rl.buckets {
		if b.lastFill.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}
