package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAllow(t *testing.T) {
	rl := New(2, time.Minute)
	defer rl.Close()

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two requests should be allowed")
	}
	if rl.Allow("a") {
		t.Error("third request inside the window should be refused")
	}
	if !rl.Allow("b") {
		t.Error("keys are limited independently")
	}
}

func TestWindowSlides(t *testing.T) {
	rl := New(1, time.Minute)
	defer rl.Close()

	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") {
		t.Fatal("first request refused")
	}
	now = now.Add(59 * time.Second)
	if rl.Allow("a") {
		t.Error("request before the window passed was allowed")
	}
	now = now.Add(time.Second)
	if !rl.Allow("a") {
		t.Error("request after the window passed was refused")
	}
}

func TestWait(t *testing.T) {
	rl := New(1, 20*time.Millisecond)
	defer rl.Close()

	ctx := context.Background()
	start := time.Now()
	if err := rl.Wait(ctx, "svc"); err != nil {
		t.Fatal(err)
	}
	if err := rl.Wait(ctx, "svc"); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Error("second Wait returned before the window passed")
	}
}

func TestWaitCancelled(t *testing.T) {
	rl := New(1, time.Hour)
	defer rl.Close()

	rl.Allow("svc")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx, "svc"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestUnlimited(t *testing.T) {
	rl := New(0, time.Second)
	defer rl.Close()
	for i := 0; i < 100; i++ {
		if !rl.Allow("a") {
			t.Fatal("zero limit should not refuse")
		}
	}
	rl.Close()
}
