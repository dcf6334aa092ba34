package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestProbeRunnerReportsPerCheckResults(t *testing.T) {
	runner := NewProbeRunner(time.Millisecond, time.Second)
	runner.Register("db", func(context.Context) error { return nil })
	runner.Register("redis", func(context.Context) error { return errors.New("dial refused") })

	ready, results := runner.Ready(context.Background())
	if ready {
		t.Fatal("expected not ready with a failing check")
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Healthy || results[0].Name != "db" {
		t.Fatalf("unexpected db result: %+v", results[0])
	}
	if results[1].Healthy || results[1].Error == "" {
		t.Fatalf("unexpected redis result: %+v", results[1])
	}
}

func TestProbeRunnerCachesWithinTTL(t *testing.T) {
	calls := 0
	runner := NewProbeRunner(time.Hour, time.Second)
	runner.Register("db", func(context.Context) error {
		calls++
		return nil
	})

	for i := 0; i < 3; i++ {
		if ready, _ := runner.Ready(context.Background()); !ready {
			t.Fatalf("expected ready on call %d", i)
		}
	}
	if calls != 1 {
		t.Fatalf("expected 1 probe call within TTL, got %d", calls)
	}
}

func TestProbeRunnerHonorsCheckTimeout(t *testing.T) {
	runner := NewProbeRunner(time.Millisecond, 10*time.Millisecond)
	runner.Register("slow", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})

	start := time.Now()
	ready, _ := runner.Ready(context.Background())
	if ready {
		t.Fatal("expected timeout to fail the check")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("check timeout not enforced")
	}
}
