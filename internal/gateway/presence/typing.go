package presence

import (
	"sync"
	"time"
)

// DefaultTypingStop is how long a typing indicator stays up without a
// refresh before a synthetic typing_stop is broadcast.
const DefaultTypingStop = 5 * time.Second

// TypingTracker arms one cancellable timer per (user, scope) typing entry.
// A later explicit stop or a newer start cancels the pending timer, so a
// stop is broadcast exactly once per typing burst.
type TypingTracker struct {
	mu     sync.Mutex
	delay  time.Duration
	timers map[typingKey]*time.Timer
}

type typingKey struct {
	userID string
	scope  string
}

func NewTypingTracker(delay time.Duration) *TypingTracker {
	if delay <= 0 {
		delay = DefaultTypingStop
	}
	return &TypingTracker{
		delay:  delay,
		timers: make(map[typingKey]*time.Timer),
	}
}

// Start arms (or re-arms) the auto-stop timer for the entry. When the timer
// fires, autoStop runs once and the entry is cleared.
func (t *TypingTracker) Start(userID, scope string, autoStop func()) {
	key := typingKey{userID: userID, scope: scope}
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[key]; ok {
		timer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(t.delay, func() {
		t.mu.Lock()
		// a newer start may have replaced this timer; only the live one fires
		if t.timers[key] != timer {
			t.mu.Unlock()
			return
		}
		delete(t.timers, key)
		t.mu.Unlock()
		autoStop()
	})
	t.timers[key] = timer
}

// Stop cancels the pending timer for the entry and reports whether one was
// active. Callers broadcast the stop themselves when it returns true.
func (t *TypingTracker) Stop(userID, scope string) bool {
	key := typingKey{userID: userID, scope: scope}
	t.mu.Lock()
	defer t.mu.Unlock()
	timer, ok := t.timers[key]
	if !ok {
		return false
	}
	timer.Stop()
	delete(t.timers, key)
	return true
}

// StopAll cancels every pending timer, used at shutdown.
func (t *TypingTracker) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, timer := range t.timers {
		timer.Stop()
		delete(t.timers, key)
	}
}
