package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestNewRateLimiterStartsFull(t *testing.T) {
	rl := NewRateLimiter(1.0, 10.0, nil)
	if tokens := rl.GetCurrentTokens(); tokens < 9.9 {
		t.Errorf("expected ~10 tokens, got %.2f", tokens)
	}
}

func TestTryAcquireConsumesToken(t *testing.T) {
	rl := NewRateLimiter(0.001, 5.0, nil)

	for i := 0; i < 5; i++ {
		if !rl.tryAcquire() {
			t.Fatalf("tryAcquire() failed on attempt %d", i+1)
		}
	}
	if rl.tryAcquire() {
		t.Error("tryAcquire() should fail when bucket is empty")
	}
}

func TestTokenRefill(t *testing.T) {
	rl := NewRateLimiter(10.0, 10.0, nil)
	for i := 0; i < 10; i++ {
		rl.tryAcquire()
	}

	time.Sleep(200 * time.Millisecond)

	tokens := rl.GetCurrentTokens()
	if tokens < 1.5 || tokens > 3.5 {
		t.Errorf("expected ~2 tokens after 200ms at 10/sec, got %.2f", tokens)
	}
}

func TestWaitRespectsContext(t *testing.T) {
	rl := NewRateLimiter(0.01, 1.0, nil)
	rl.tryAcquire()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := rl.Wait(ctx); err == nil {
		t.Error("Wait() should fail when the context expires first")
	}
}

func TestCooldownBlocksAcquire(t *testing.T) {
	rl := NewRateLimiter(1000.0, 10.0, nil)
	rl.Cooldown(100 * time.Millisecond)

	if rl.tryAcquire() {
		t.Fatal("tryAcquire() should fail during cooldown")
	}

	start := time.Now()
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("Wait() returned after %v, expected to honor the cooldown", elapsed)
	}
}

func TestConcurrentWait(t *testing.T) {
	rl := NewRateLimiter(1000.0, 5.0, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- rl.Wait(context.Background())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	}
}
