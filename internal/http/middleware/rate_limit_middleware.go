package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onboardworks/chat-onboarding-backend/internal/http/response"
	"github.com/onboardworks/chat-onboarding-backend/internal/observability"
)

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter decides whether a keyed request fits inside a fixed window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

type RateLimiter struct {
	limiter Limiter
	limit   int
	window  time.Duration
	scope   string
}

func NewRateLimiter(limit int, window time.Duration, scope string) *RateLimiter {
	return &RateLimiter{limiter: NewLocalFixedWindowLimiter(), limit: limit, window: window, scope: scope}
}

func NewDistributedRateLimiter(limiter Limiter, limit int, window time.Duration, scope string) *RateLimiter {
	return &RateLimiter{limiter: limiter, limit: limit, window: window, scope: scope}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIPKey(r)
			decision, err := rl.limiter.Allow(r.Context(), key, rl.limit, rl.window)
			if err != nil {
				// Fail closed: an unavailable backend must not turn
				// the limiter off.
				observability.RecordRateLimitDecision(r.Context(), rl.scope, "backend_error")
				w.Header().Set("Retry-After", retryAfterHeader(rl.window))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}
			if !decision.Allowed {
				observability.RecordRateLimitDecision(r.Context(), rl.scope, "deny")
				w.Header().Set("Retry-After", retryAfterHeader(decision.RetryAfter))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}
			observability.RecordRateLimitDecision(r.Context(), rl.scope, "allow")
			next.ServeHTTP(w, r)
		})
	}
}

type localFixedWindowLimiter struct {
	mu    sync.Mutex
	store map[string]*windowState
}

type windowState struct {
	windowStart time.Time
	hits        int
}

func NewLocalFixedWindowLimiter() Limiter {
	return &localFixedWindowLimiter{store: make(map[string]*windowState)}
}

func (l *localFixedWindowLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.store[key]
	if !ok || now.Sub(state.windowStart) >= window {
		state = &windowState{windowStart: now}
		l.store[key] = state
		// Opportunistic sweep of stale entries.
		for k, v := range l.store {
			if now.Sub(v.windowStart) >= 2*window {
				delete(l.store, k)
			}
		}
	}
	if state.hits >= limit {
		return Decision{Allowed: false, RetryAfter: state.windowStart.Add(window).Sub(now)}, nil
	}
	state.hits++
	return Decision{Allowed: true}, nil
}

// RedisFixedWindowLimiter shares the window across replicas.
type RedisFixedWindowLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisFixedWindowLimiter(client redis.UniversalClient, prefix string) *RedisFixedWindowLimiter {
	if prefix == "" {
		prefix = "http_rate_limit"
	}
	return &RedisFixedWindowLimiter{client: client, prefix: prefix}
}

func (l *RedisFixedWindowLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)
	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("rate limit incr: %w", err)
	}
	if incr.Val() > int64(limit) {
		ttl, err := l.client.TTL(ctx, redisKey).Result()
		if err != nil || ttl < 0 {
			ttl = window
		}
		return Decision{Allowed: false, RetryAfter: ttl}, nil
	}
	return Decision{Allowed: true}, nil
}

func clientIPKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func retryAfterHeader(d time.Duration) string {
	seconds := int(d.Round(time.Second).Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return fmt.Sprintf("%d", seconds)
}
