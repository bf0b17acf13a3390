package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a sliding window limiter keyed by caller. The HTTP surface keys
// it by client IP; the EPA client uses a single key per service.
type Limiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // Maximum requests per window
	window   time.Duration // Time window
	done     chan struct{}
	once     sync.Once
	now      func() time.Time
}

// New creates a limiter and starts its cleanup goroutine. Call Close to stop it.
func New(limit int, window time.Duration) *Limiter {
	rl := &Limiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		done:     make(chan struct{}),
		now:      time.Now,
	}

	go rl.cleanup()

	return rl
}

// cleanup removes old entries periodically
func (rl *Limiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
		}

		rl.mu.Lock()
		now := rl.now()
		for key, times := range rl.requests {
			valid := rl.prune(times, now)
			if len(valid) == 0 {
				delete(rl.requests, key)
			} else {
				rl.requests[key] = valid
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *Limiter) prune(times []time.Time, now time.Time) []time.Time {
	var valid []time.Time
	for _, t := range times {
		if now.Sub(t) < rl.window {
			valid = append(valid, t)
		}
	}
	return valid
}

// Allow records a request for key if the window has room
func (rl *Limiter) Allow(key string) bool {
	_, ok := rl.reserve(key)
	return ok
}

// reserve returns how long to wait before the next slot opens when the
// window is full
func (rl *Limiter) reserve(key string) (time.Duration, bool) {
	if rl.limit <= 0 {
		return 0, true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	valid := rl.prune(rl.requests[key], now)

	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return valid[0].Add(rl.window).Sub(now), false
	}

	rl.requests[key] = append(valid, now)
	return 0, true
}

// Wait blocks until key may make a request or ctx is done
func (rl *Limiter) Wait(ctx context.Context, key string) error {
	for {
		wait, ok := rl.reserve(key)
		if ok {
			return nil
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Close stops the cleanup goroutine
func (rl *Limiter) Close() {
	rl.once.Do(func() { close(rl.done) })
}
