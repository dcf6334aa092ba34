package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLocalFixedWindowLimiter(t *testing.T) {
	ctx := context.Background()
	limiter := NewLocalFixedWindowLimiter()

	for i := 0; i < 3; i++ {
		d, err := limiter.Allow(ctx, "ip1", 3, time.Minute)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("expected request %d allowed", i)
		}
	}
	d, err := limiter.Allow(ctx, "ip1", 3, time.Minute)
	if err != nil {
		t.Fatalf("allow over limit: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected denial over the limit")
	}
	if d.RetryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %v", d.RetryAfter)
	}

	// A different key gets its own window.
	d, err = limiter.Allow(ctx, "ip2", 3, time.Minute)
	if err != nil || !d.Allowed {
		t.Fatalf("expected isolated key allowed, got %+v err=%v", d, err)
	}
}

func TestRedisFixedWindowLimiter(t *testing.T) {
	ctx := context.Background()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := NewRedisFixedWindowLimiter(client, "rl_test")

	for i := 0; i < 2; i++ {
		d, err := limiter.Allow(ctx, "ip1", 2, time.Minute)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("expected request %d allowed", i)
		}
	}
	d, err := limiter.Allow(ctx, "ip1", 2, time.Minute)
	if err != nil {
		t.Fatalf("allow over limit: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected denial over the limit")
	}

	server.FastForward(2 * time.Minute)
	d, err = limiter.Allow(ctx, "ip1", 2, time.Minute)
	if err != nil || !d.Allowed {
		t.Fatalf("expected fresh window after expiry, got %+v err=%v", d, err)
	}
}

func TestRateLimiterMiddlewareDeniesWith429(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, "test")
	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}
