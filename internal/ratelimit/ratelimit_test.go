package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAcquire_PacesToConfiguredRPS(t *testing.T) {
	l := New(map[string]Limit{"shopify": {RPS: 20}})

	const n = 5
	start := time.Now()
	for i := 0; i < n; i++ {
		if err := l.Acquire(context.Background(), "shopify"); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	elapsed := time.Since(start)
	// N acquires at R rps need at least (N-1)/R seconds; allow scheduler slack.
	min := time.Duration(float64(n-1)/20*float64(time.Second)) - 20*time.Millisecond
	if elapsed < min {
		t.Fatalf("%d acquires finished in %v, want >= %v", n, elapsed, min)
	}
}

func TestAcquire_UnconfiguredProviderUnlimited(t *testing.T) {
	l := New(nil)
	start := time.Now()
	for i := 0; i < 1000; i++ {
		if err := l.Acquire(context.Background(), "ebay"); err != nil {
			t.Fatalf("acquire: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("unlimited provider throttled: %v", elapsed)
	}
}

func TestAcquire_ConcurrentCallersSameProvider(t *testing.T) {
	l := New(map[string]Limit{"amazon": {RPS: 50}})

	const n = 6
	errs := make(chan error, n)
	start := time.Now()
	for i := 0; i < n; i++ {
		go func() { errs <- l.Acquire(context.Background(), "amazon") }()
	}
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("acquire: %v", err)
		}
	}
	min := time.Duration(float64(n-1)/50*float64(time.Second)) - 20*time.Millisecond
	if elapsed := time.Since(start); elapsed < min {
		t.Fatalf("concurrent acquires finished in %v, want >= %v", elapsed, min)
	}
}

func TestAcquire_CancelledContextUnblocks(t *testing.T) {
	l := New(map[string]Limit{"slow": {RPS: 0.1}})
	// Drain the single token.
	if err := l.Acquire(context.Background(), "slow"); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx, "slow"); err == nil {
		t.Fatalf("expected cancellation error while blocked")
	}
}
