// Package ratelimit enforces a per-user sliding window over message sends.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

type Config struct {
	MaxMessages   int
	WindowSeconds int
}

// DefaultConfig allows 10 messages per trailing 10 seconds.
var DefaultConfig = Config{MaxMessages: 10, WindowSeconds: 10}

// Limiter keeps an ordered timestamp list per user. Lists are pruned lazily
// on every check and deleted once empty so idle users cost nothing.
type Limiter struct {
	mu         sync.Mutex
	cfg        Config
	timestamps map[string][]time.Time
	now        func() time.Time
}

func New(cfg Config) *Limiter {
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = DefaultConfig.MaxMessages
	}
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = DefaultConfig.WindowSeconds
	}
	return &Limiter{
		cfg:        cfg,
		timestamps: make(map[string][]time.Time),
		now:        time.Now,
	}
}

// NewWithClock injects a clock for tests.
func NewWithClock(cfg Config, now func() time.Time) *Limiter {
	l := New(cfg)
	l.now = now
	return l
}

func (l *Limiter) window() time.Duration {
	return time.Duration(l.cfg.WindowSeconds) * time.Second
}

// prune drops entries older than the window and returns what remains.
// Callers hold l.mu.
func (l *Limiter) prune(userID string, now time.Time) []time.Time {
	windowStart := now.Add(-l.window())
	ts := l.timestamps[userID]
	kept := ts[:0]
	for _, t := range ts {
		if t.After(windowStart) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(l.timestamps, userID)
		return nil
	}
	l.timestamps[userID] = kept
	return kept
}

// Check reports whether the user may send now. It is a pure predicate: it
// never records a send.
func (l *Limiter) Check(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.prune(userID, l.now())
	return len(kept) < l.cfg.MaxMessages
}

// Record appends "now" to the user's window. Callers check first; the
// check-then-act pair is not atomic, which is accepted looseness for
// concurrent sends from the same user on multiple devices.
func (l *Limiter) Record(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timestamps[userID] = append(l.timestamps[userID], l.now())
}

// RetryAfter returns 0 when the user is under the limit; otherwise the
// ceiling in seconds until the oldest in-window entry ages out, i.e. the
// slot that must free up before the next send is allowed.
func (l *Limiter) RetryAfter(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	kept := l.prune(userID, now)
	if len(kept) < l.cfg.MaxMessages {
		return 0
	}
	wait := kept[0].Add(l.window()).Sub(now)
	if wait < 0 {
		return 0
	}
	return int(math.Ceil(wait.Seconds()))
}
