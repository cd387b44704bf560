// Package guard holds in-memory abuse guards for the API surface.
package guard

import (
	"fmt"
	"sync"
	"time"
)

// Result reports whether a guarded action is allowed.
type Result struct {
	Allowed bool
	Reason  string
}

// AttemptLimiter locks out a key after repeated failures inside a sliding
// window. Session codes are short, so unthrottled guessing would let a
// scraper walk the code space; the limiter makes that impractical without
// ever bothering a player who mistypes a code once or twice.
type AttemptLimiter struct {
	mu      sync.Mutex
	entries map[string]*attempts

	threshold int
	window    time.Duration
	lockout   time.Duration
	now       func() time.Time
}

type attempts struct {
	failures    []time.Time
	lockedUntil time.Time
}

// NewAttemptLimiter creates a limiter: threshold failures within window lock
// the key for lockout.
func NewAttemptLimiter(threshold int, window, lockout time.Duration) *AttemptLimiter {
	return &AttemptLimiter{
		entries:   make(map[string]*attempts),
		threshold: threshold,
		window:    window,
		lockout:   lockout,
		now:       time.Now,
	}
}

// Check returns whether the key may attempt another guess.
func (l *AttemptLimiter) Check(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		return Result{Allowed: true}
	}

	now := l.now()
	if now.Before(e.lockedUntil) {
		return Result{
			Allowed: false,
			Reason:  fmt.Sprintf("too many failed attempts, retry in %s", e.lockedUntil.Sub(now).Round(time.Second)),
		}
	}
	return Result{Allowed: true}
}

// RecordFailure notes a failed guess and locks the key when the window fills.
func (l *AttemptLimiter) RecordFailure(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok {
		e = &attempts{}
		l.entries[key] = e
	}

	cutoff := now.Add(-l.window)
	kept := e.failures[:0]
	for _, t := range e.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	e.failures = append(kept, now)

	if len(e.failures) >= l.threshold {
		e.lockedUntil = now.Add(l.lockout)
		e.failures = nil
	}
}

// RecordSuccess clears the key's failure history.
func (l *AttemptLimiter) RecordSuccess(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}
