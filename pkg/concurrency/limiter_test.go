package concurrency

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLimiterAcquireReleaseTracksMetrics(t *testing.T) {
	limiter := NewLimiter(2)
	ctx := context.Background()

	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if limiter.CurrentActive() != 1 {
		t.Fatalf("expected 1 active worker, got %d", limiter.CurrentActive())
	}
	limiter.Release()

	metrics := limiter.GetMetrics()
	if metrics.TotalAcquired != 1 {
		t.Fatalf("expected TotalAcquired 1, got %d", metrics.TotalAcquired)
	}
	if metrics.TotalReleased != 1 {
		t.Fatalf("expected TotalReleased 1, got %d", metrics.TotalReleased)
	}
}

func TestLimiterAcquireHonorsContextCancellation(t *testing.T) {
	limiter := NewLimiter(1)
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer limiter.Release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := limiter.Acquire(ctx)
	if err == nil || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestLimiterTryAcquireFailsFastWhenFull(t *testing.T) {
	limiter := NewLimiter(1)
	if !limiter.TryAcquire() {
		t.Fatal("expected first TryAcquire to succeed")
	}
	if limiter.TryAcquire() {
		t.Fatal("expected second TryAcquire to fail while full")
	}
	limiter.Release()
	if !limiter.TryAcquire() {
		t.Fatal("expected TryAcquire to succeed after release")
	}
}

func TestLimiterGoSyncReleasesOnError(t *testing.T) {
	limiter := NewLimiter(1)
	err := limiter.GoSync(context.Background(), func() error {
		return errors.New("boom")
	})
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected GoSync to propagate error, got %v", err)
	}
	if limiter.CurrentActive() != 0 {
		t.Fatalf("expected slot released after GoSync, got %d active", limiter.CurrentActive())
	}
}

func TestLimiterGoReleasesAsynchronously(t *testing.T) {
	limiter := NewLimiter(1)
	done := make(chan struct{})
	if err := limiter.Go(context.Background(), func() error {
		close(done)
		return nil
	}); err != nil {
		t.Fatalf("Go failed: %v", err)
	}
	<-done

	deadline := time.After(time.Second)
	for limiter.CurrentActive() != 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for release")
		default:
		}
	}
}
