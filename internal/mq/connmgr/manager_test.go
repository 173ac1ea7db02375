package connmgr

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mixdown/internal/logging"
	"mixdown/internal/mq"
	"mixdown/internal/testsupport"
)

type countingDialer struct {
	mu       sync.Mutex
	broker   *mq.Broker
	failures int
	calls    int
}

func (d *countingDialer) Connect() (*mq.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.calls <= d.failures {
		return nil, errors.New("broker offline")
	}
	if d.broker == nil {
		return nil, errors.New("broker offline")
	}
	return d.broker.Connect()
}

func (d *countingDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func recordedSleeps(m *Manager) *[]time.Duration {
	recorded := &[]time.Duration{}
	m.sleep = func(_ context.Context, d time.Duration) error {
		*recorded = append(*recorded, d)
		return nil
	}
	return recorded
}

func TestAcquireFailsAfterExactAttemptBudget(t *testing.T) {
	dialer := &countingDialer{failures: 100}
	m := New(dialer, []string{"video"}, Policy{MaxAttempts: 5, BaseDelay: 2 * time.Second}, logging.NewNop())
	sleeps := recordedSleeps(m)

	_, err := m.Acquire(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if got := dialer.callCount(); got != 5 {
		t.Fatalf("expected exactly 5 connection attempts, got %d", got)
	}
	if m.State() != StateDisconnected {
		t.Fatalf("expected disconnected state, got %v", m.State())
	}

	// Four waits between five attempts, delays non-decreasing and doubling.
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("expected %d backoff waits, got %d (%v)", len(want), len(*sleeps), *sleeps)
	}
	for i, d := range *sleeps {
		if d != want[i] {
			t.Fatalf("backoff wait %d: expected %v, got %v", i, want[i], d)
		}
		if i > 0 && d < (*sleeps)[i-1] {
			t.Fatalf("backoff delays decreased: %v", *sleeps)
		}
	}
}

func TestAcquireSucceedsAfterTransientFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	broker := testsupport.MustOpenBroker(t, cfg)

	dialer := &countingDialer{broker: broker, failures: 2}
	m := New(dialer, []string{"video", "mp3"}, Policy{MaxAttempts: 5, BaseDelay: time.Second}, logging.NewNop())
	recordedSleeps(m)

	session, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if session == nil {
		t.Fatal("expected session")
	}
	if got := dialer.callCount(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	if m.State() != StateConnected {
		t.Fatalf("expected connected state, got %v", m.State())
	}

	// Channels declared on connect; publish must succeed without declaring.
	if err := session.Publish(context.Background(), "video", []byte("x"), true); err != nil {
		t.Fatalf("publish to declared channel failed: %v", err)
	}
}

func TestAcquireReturnsExistingSessionWithoutDialing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	broker := testsupport.MustOpenBroker(t, cfg)

	dialer := &countingDialer{broker: broker}
	m := New(dialer, []string{"video"}, Policy{MaxAttempts: 5, BaseDelay: time.Second}, logging.NewNop())
	recordedSleeps(m)

	first, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	second, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
	if first != second {
		t.Fatal("expected the same session handle")
	}
	if got := dialer.callCount(); got != 1 {
		t.Fatalf("expected a single dial, got %d", got)
	}
}

func TestAcquireIsSafeUnderConcurrency(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	broker := testsupport.MustOpenBroker(t, cfg)

	dialer := &countingDialer{broker: broker}
	m := New(dialer, []string{"video"}, Policy{MaxAttempts: 5, BaseDelay: time.Second}, logging.NewNop())
	recordedSleeps(m)

	const callers = 16
	sessions := make([]*mq.Session, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			session, err := m.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire %d failed: %v", i, err)
				return
			}
			sessions[i] = session
		}(i)
	}
	wg.Wait()

	if got := dialer.callCount(); got != 1 {
		t.Fatalf("expected one physical connect across %d callers, got %d", callers, got)
	}
	for i := 1; i < callers; i++ {
		if sessions[i] != sessions[0] {
			t.Fatal("callers received different sessions")
		}
	}
}

func TestInvalidateForcesReconnect(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	broker := testsupport.MustOpenBroker(t, cfg)

	dialer := &countingDialer{broker: broker}
	m := New(dialer, []string{"video"}, Policy{MaxAttempts: 5, BaseDelay: time.Second}, logging.NewNop())
	recordedSleeps(m)

	session, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	m.Invalidate(session)
	if m.State() != StateDisconnected {
		t.Fatalf("expected disconnected after invalidate, got %v", m.State())
	}

	replacement, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after invalidate failed: %v", err)
	}
	if replacement == session {
		t.Fatal("expected a fresh session after invalidation")
	}
	if got := dialer.callCount(); got != 2 {
		t.Fatalf("expected two dials, got %d", got)
	}

	// Invalidating a stale handle must not disturb the current session.
	m.Invalidate(session)
	if m.State() != StateConnected {
		t.Fatalf("stale invalidate changed state to %v", m.State())
	}
}
