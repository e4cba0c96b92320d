package ratelimit

import (
	"context"
	"sync"
	"time"
)

// pruneThreshold bounds the counter map before stale windows are swept.
const pruneThreshold = 4096

type memoryEntry struct {
	window time.Time
	count  int
}

// MemoryLimiter implements a fixed-window in-memory rate limiter.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*memoryEntry
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*memoryEntry),
	}
}

// Allow checks whether the request should be allowed in the current window.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	if limit <= 0 || key == "" || window <= 0 {
		return Result{Allowed: true}, nil
	}
	start := windowStart(now, window)
	reset := start.Add(window)

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.counters) >= pruneThreshold {
		l.pruneLocked(start)
	}
	entry := l.counters[key]
	if entry == nil {
		entry = &memoryEntry{window: start}
		l.counters[key] = entry
	}
	if !entry.window.Equal(start) {
		entry.window = start
		entry.count = 0
	}
	if entry.count >= limit {
		return Result{Allowed: false, Remaining: 0, Reset: reset}, nil
	}
	entry.count++
	return Result{Allowed: true, Remaining: limit - entry.count, Reset: reset}, nil
}

func (l *MemoryLimiter) pruneLocked(current time.Time) {
	for key, entry := range l.counters {
		if entry.window.Before(current) {
			delete(l.counters, key)
		}
	}
}
