package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether one more request under key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// MemoryLimiter is a per-key token bucket held in process memory.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   int     // max tokens
	stop    chan struct{}
	once    sync.Once
}

type bucket struct {
	tokens   float64
	lastTime time.Time
}

// NewMemoryLimiter creates a limiter. rate = requests/second, burst = max burst size.
func NewMemoryLimiter(rate float64, burst int) *MemoryLimiter {
	rl := &MemoryLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		stop:    make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

func (rl *MemoryLimiter) Allow(_ context.Context, key string) bool {
	return rl.allowAt(key, time.Now())
}

func (rl *MemoryLimiter) allowAt(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		rl.buckets[key] = &bucket{tokens: float64(rl.burst) - 1, lastTime: now}
		return rl.burst > 0
	}

	elapsed := now.Sub(b.lastTime).Seconds()
	b.tokens += elapsed * rl.rate
	if b.tokens > float64(rl.burst) {
		b.tokens = float64(rl.burst)
	}
	b.lastTime = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Close stops the cleanup goroutine.
func (rl *MemoryLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

// cleanup removes stale entries every 5 minutes.
func (rl *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			stale := time.Now().Add(-10 * time.Minute)
			for key, b := range rl.buckets {
				if b.lastTime.Before(stale) {
					delete(rl.buckets, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// RedisLimiter is a fixed-window counter shared by every replica.
// Redis errors fail open.
type RedisLimiter struct {
	client      redis.Cmdable
	maxRequests int
	window      time.Duration
}

func NewRedisLimiter(client redis.Cmdable, maxRequests int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, maxRequests: maxRequests, window: window}
}

// key format: rl:<window_seconds>:<key>
//
// INCR and EXPIRE NX share one MULTI/EXEC, so a counter always carries a
// TTL. EXPIRE NX needs Redis 7 or later.
func (rl *RedisLimiter) Allow(ctx context.Context, key string) bool {
	k := "rl:" + strconv.FormatInt(int64(rl.window.Seconds()), 10) + ":" + key

	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true
	}
	return incr.Val() <= int64(rl.maxRequests)
}

// RateLimit applies a Limiter per client IP under a named scope.
type RateLimit struct {
	limiter    Limiter
	scope      string
	trustProxy bool
}

func NewRateLimit(limiter Limiter, scope string, trustProxy bool) *RateLimit {
	return &RateLimit{limiter: limiter, scope: scope, trustProxy: trustProxy}
}

func (rl *RateLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r, rl.trustProxy)
		if !rl.limiter.Allow(r.Context(), rl.scope+":"+ip) {
			rateLimitBlocked.WithLabelValues(rl.scope).Inc()
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		rateLimitAllowed.WithLabelValues(rl.scope).Inc()
		next.ServeHTTP(w, r)
	})
}

func extractIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if idx := strings.Index(xff, ","); idx > 0 {
				return strings.TrimSpace(xff[:idx])
			}
			return strings.TrimSpace(xff)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx > 0 {
		ip = ip[:idx]
	}
	return ip
}
