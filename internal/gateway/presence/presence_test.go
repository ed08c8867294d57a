package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"AuroraGate/internal/gateway/connmgr"
	"AuroraGate/internal/store"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSession struct {
	id string

	mu        sync.Mutex
	closed    bool
	closeCode int
}

func (f *fakeSession) ID() string                     { return f.id }
func (f *fakeSession) Send(message interface{}) error { return nil }

func (f *fakeSession) Close(code int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closeCode = code
	return nil
}

func (f *fakeSession) isClosed() (bool, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed, f.closeCode
}

type fakeRegistry struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
}

func newFakeRegistry(ids ...string) *fakeRegistry {
	r := &fakeRegistry{sessions: make(map[string]*fakeSession)}
	for _, id := range ids {
		r.sessions[id] = &fakeSession{id: id}
	}
	return r
}

func (r *fakeRegistry) Get(connectionID string) (connmgr.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connectionID]
	return s, ok
}

type fakeProfiles struct {
	mu       sync.Mutex
	statuses map[string]string
	fail     bool
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{statuses: make(map[string]string)}
}

func (f *fakeProfiles) ProfileByToken(ctx context.Context, token string) (*store.Identity, error) {
	return nil, store.ErrNotFound
}

func (f *fakeProfiles) ProfileByID(ctx context.Context, id string) (*store.Identity, error) {
	return nil, store.ErrNotFound
}

func (f *fakeProfiles) UpdateStatus(ctx context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("profile store down")
	}
	f.statuses[id] = status
	return nil
}

func (f *fakeProfiles) CheckMembership(ctx context.Context, kind store.MembershipKind, scopeID, userID string) (bool, error) {
	return false, nil
}

func (f *fakeProfiles) statusOf(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[id]
}

func TestSweepTimeoutBoundary(t *testing.T) {
	reg := newFakeRegistry("at-boundary", "past-boundary", "fresh")
	now := time.Unix(1_700_000_000, 0)
	m := NewWithClock(reg, newFakeProfiles(), 30*time.Second, func() time.Time { return now })

	m.Touch("at-boundary")
	m.Touch("past-boundary")
	m.Touch("fresh")

	// exactly at the timeout: not stale. One millisecond past: stale.
	base := now
	now = base.Add(30 * time.Second)
	m.Sweep()
	for _, id := range []string{"at-boundary", "past-boundary", "fresh"} {
		if closed, _ := reg.sessions[id].isClosed(); closed {
			t.Fatalf("connection %s closed exactly at boundary, must not be stale", id)
		}
	}

	now = base.Add(30*time.Second + time.Millisecond)
	m.Touch("fresh") // fresh stays alive
	m.Sweep()

	if closed, code := reg.sessions["at-boundary"].isClosed(); !closed || code != CloseStale {
		t.Fatalf("expected at-boundary closed with code %d, got closed=%v code=%d", CloseStale, closed, code)
	}
	if closed, _ := reg.sessions["past-boundary"].isClosed(); !closed {
		t.Fatal("expected past-boundary closed")
	}
	if closed, _ := reg.sessions["fresh"].isClosed(); closed {
		t.Fatal("fresh connection must survive the sweep")
	}
}

func TestSweepUsesOneNowPerPass(t *testing.T) {
	reg := newFakeRegistry("c1")
	calls := 0
	base := time.Unix(1_700_000_000, 0)
	// the clock jumps forward on every call; a sweep that captured "now"
	// per-connection would see different values
	m := NewWithClock(reg, newFakeProfiles(), 30*time.Second, func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Hour)
	})

	m.Touch("c1")
	m.Sweep()
	if closed, _ := reg.sessions["c1"].isClosed(); !closed {
		t.Fatal("expected c1 stale under the advancing clock")
	}
}

func TestSweepForgetsEvicted(t *testing.T) {
	reg := newFakeRegistry("c1")
	now := time.Unix(1_700_000_000, 0)
	m := NewWithClock(reg, newFakeProfiles(), time.Second, func() time.Time { return now })

	m.Touch("c1")
	now = now.Add(2 * time.Second)
	m.Sweep()

	m.mu.Lock()
	_, tracked := m.last["c1"]
	m.mu.Unlock()
	if tracked {
		t.Fatal("evicted connection must be dropped from the heartbeat map")
	}
}

func TestForgetStopsTracking(t *testing.T) {
	reg := newFakeRegistry("c1")
	now := time.Unix(1_700_000_000, 0)
	m := NewWithClock(reg, newFakeProfiles(), time.Second, func() time.Time { return now })

	m.Touch("c1")
	m.Forget("c1")
	now = now.Add(time.Hour)
	m.Sweep()

	if closed, _ := reg.sessions["c1"].isClosed(); closed {
		t.Fatal("forgotten connection must not be closed by the sweeper")
	}
}

func TestSetStatusPersists(t *testing.T) {
	profiles := newFakeProfiles()
	m := New(newFakeRegistry(), profiles, time.Second)

	m.SetStatus(context.Background(), "alice", "online")
	if got := profiles.statusOf("alice"); got != "online" {
		t.Fatalf("unexpected persisted status: got %q want %q", got, "online")
	}
}

func TestSetStatusSwallowsWriteFailure(t *testing.T) {
	profiles := newFakeProfiles()
	profiles.fail = true
	m := New(newFakeRegistry(), profiles, time.Second)

	// must not panic or propagate; presence is soft state
	m.SetStatus(context.Background(), "alice", "online")
}

func TestRunStops(t *testing.T) {
	reg := newFakeRegistry()
	m := New(reg, newFakeProfiles(), time.Second)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		m.Run(10*time.Millisecond, stop)
		close(done)
	}()

	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
