package middleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/config"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/telemetry/logging"
)

// idleBucketTTL is how long an unused client bucket is kept.
const idleBucketTTL = 10 * time.Minute

// ClientKeyFunc identifies the client a request is charged to.
type ClientKeyFunc func(r *http.Request) string

// RemoteHost charges requests to the remote address without its port.
func RemoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// TokenBucket allows bursts up to capacity while holding the average rate
// at refillRate tokens per second.
type TokenBucket struct {
	capacity   float64
	tokens     float64
	refillRate float64
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a full bucket.
func NewTokenBucket(capacity int, refillRate float64) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Take consumes one token at now. When the bucket is empty it returns false
// and the wait until the next token.
func (tb *TokenBucket) Take(now time.Time) (bool, time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if elapsed := now.Sub(tb.lastRefill); elapsed > 0 {
		tb.tokens = math.Min(tb.capacity, tb.tokens+elapsed.Seconds()*tb.refillRate)
		tb.lastRefill = now
	}
	if tb.tokens >= 1 {
		tb.tokens--
		return true, 0
	}
	wait := (1 - tb.tokens) / tb.refillRate
	return false, time.Duration(wait * float64(time.Second))
}

// RateLimiter throttles requests per client and caps concurrency.
type RateLimiter struct {
	cfg    config.RateLimitConfig
	key    ClientKeyFunc
	now    func() time.Time
	slots  chan struct{}
	mu     sync.Mutex
	bucket map[string]*clientBucket
	swept  time.Time
}

type clientBucket struct {
	*TokenBucket
	lastSeen time.Time
}

// NewRateLimiter creates a limiter for cfg. A nil key charges requests to
// RemoteHost.
func NewRateLimiter(cfg config.RateLimitConfig, key ClientKeyFunc) *RateLimiter {
	if key == nil {
		key = RemoteHost
	}
	if cfg.RequestsPerSecond > 0 && cfg.Burst <= 0 {
		cfg.Burst = max(1, int(math.Ceil(cfg.RequestsPerSecond)))
	}
	rl := &RateLimiter{
		cfg:    cfg,
		key:    key,
		now:    time.Now,
		bucket: make(map[string]*clientBucket),
	}
	if cfg.MaxConcurrent > 0 {
		rl.slots = make(chan struct{}, cfg.MaxConcurrent)
	}
	return rl
}

// Enabled reports whether any limit is configured.
func (rl *RateLimiter) Enabled() bool {
	return rl.cfg.RequestsPerSecond > 0 || rl.slots != nil
}

// Allow charges one request to client. It returns the suggested wait when
// the client is over its rate.
func (rl *RateLimiter) Allow(client string) (bool, time.Duration) {
	if rl.cfg.RequestsPerSecond <= 0 {
		return true, 0
	}
	now := rl.now()

	rl.mu.Lock()
	if now.Sub(rl.swept) > idleBucketTTL {
		for k, b := range rl.bucket {
			if now.Sub(b.lastSeen) > idleBucketTTL {
				delete(rl.bucket, k)
			}
		}
		rl.swept = now
	}
	b, ok := rl.bucket[client]
	if !ok {
		b = &clientBucket{TokenBucket: NewTokenBucket(rl.cfg.Burst, rl.cfg.RequestsPerSecond)}
		b.lastRefill = now
		rl.bucket[client] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	return b.Take(now)
}

// Middleware rejects requests over the client's rate with 429 and requests
// beyond the concurrency cap with 503.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	if !rl.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ok, wait := rl.Allow(rl.key(r)); !ok {
			secs := int(math.Ceil(wait.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(1, secs)))
			writeLimitError(w, r, http.StatusTooManyRequests, "rate_limited", "request rate exceeded")
			return
		}
		if rl.slots != nil {
			select {
			case rl.slots <- struct{}{}:
				defer func() { <-rl.slots }()
			default:
				w.Header().Set("Retry-After", "1")
				writeLimitError(w, r, http.StatusServiceUnavailable, "too_many_concurrent", "too many concurrent requests")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func writeLimitError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{Error: ErrorDetail{
		Code:      code,
		Message:   message,
		RequestID: logging.GetRequestID(r.Context()),
	}})
}
