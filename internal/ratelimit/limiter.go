// Package ratelimit provides sliding-window attempt counters keyed by an
// arbitrary string such as "login:<ip>".
package ratelimit

import (
	"context"
	"time"
)

const (
	DefaultMaxAttempts = 5
	DefaultWindow      = 10 * time.Second
)

// Limiter records attempts and reports whether a key has gone over its budget.
// IsLimited records the current attempt, discards attempts older than window
// and reports true when more than max attempts remain.
type Limiter interface {
	IsLimited(ctx context.Context, key string, max int, window time.Duration) (bool, error)
	// Clear drops every recorded attempt.
	Clear(ctx context.Context) error
	// ClearKey drops the attempts recorded for key.
	ClearKey(ctx context.Context, key string) error
}

func normalize(max int, window time.Duration) (int, time.Duration) {
	if max <= 0 {
		max = DefaultMaxAttempts
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return max, window
}
