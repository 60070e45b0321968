package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter keeps attempt timestamps in process memory. It is safe for
// concurrent use.
type MemoryLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	windows  map[string]time.Duration
	clock    func() time.Time
}

// MemoryOption customises a MemoryLimiter.
type MemoryOption func(*MemoryLimiter)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// NewMemoryLimiter constructs an empty in-memory limiter.
func NewMemoryLimiter(opts ...MemoryOption) *MemoryLimiter {
	limiter := &MemoryLimiter{
		attempts: make(map[string][]time.Time),
		windows:  make(map[string]time.Duration),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(limiter)
	}
	return limiter
}

func (l *MemoryLimiter) IsLimited(_ context.Context, key string, max int, window time.Duration) (bool, error) {
	max, window = normalize(max, window)
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := dropBefore(append(l.attempts[key], now), now.Add(-window))
	l.attempts[key] = recent
	l.windows[key] = window

	return len(recent) > max, nil
}

func (l *MemoryLimiter) Clear(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.attempts = make(map[string][]time.Time)
	l.windows = make(map[string]time.Duration)
	return nil
}

func (l *MemoryLimiter) ClearKey(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.attempts, key)
	delete(l.windows, key)
	return nil
}

// Prune forgets keys whose attempts have all left their window and returns
// how many keys were removed.
func (l *MemoryLimiter) Prune() int {
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, attempts := range l.attempts {
		recent := dropBefore(attempts, now.Add(-l.windows[key]))
		if len(recent) == 0 {
			delete(l.attempts, key)
			delete(l.windows, key)
			removed++
			continue
		}
		l.attempts[key] = recent
	}
	return removed
}

// Len reports the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.attempts)
}

// dropBefore returns the suffix of the ascending slice at or after cutoff.
func dropBefore(attempts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(attempts) && attempts[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return attempts
	}
	return append([]time.Time(nil), attempts[i:]...)
}
