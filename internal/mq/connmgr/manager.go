// Package connmgr maintains the shared queue connection for all pipeline
// stages, masking transient broker unavailability behind bounded-retry
// exponential backoff.
package connmgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mixdown/internal/logging"
	"mixdown/internal/mq"
)

// ErrUnavailable indicates the broker could not be reached within the
// configured attempt budget.
var ErrUnavailable = errors.New("queue unavailable")

// State describes the connection lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Dialer produces fresh broker sessions. *mq.Broker satisfies it.
type Dialer interface {
	Connect() (*mq.Session, error)
}

// Policy bounds reconnection behavior.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Manager owns the process-wide queue session. Every stage acquires its
// handle here; no stage manages its own connection lifecycle.
type Manager struct {
	dialer   Dialer
	channels []string
	policy   Policy
	logger   *slog.Logger

	// Single mutex guards the state machine; concurrent Acquire callers
	// serialize on it so only one physical reconnect runs at a time.
	mu      sync.Mutex
	state   State
	session *mq.Session

	sleep func(ctx context.Context, d time.Duration) error
}

// New constructs a manager that declares the given durable channels on every
// successful connect.
func New(dialer Dialer, channels []string, policy Policy, logger *slog.Logger) *Manager {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 5
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 2 * time.Second
	}
	return &Manager{
		dialer:   dialer,
		channels: channels,
		policy:   policy,
		logger:   logging.NewComponentLogger(logger, "connmgr"),
		state:    StateDisconnected,
		sleep:    sleepContext,
	}
}

// State reports the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Acquire returns a usable session. When connected it returns the existing
// handle immediately; otherwise it attempts to connect up to the policy's
// attempt budget with exponential backoff, declaring the required durable
// channels on success. Exhaustion returns ErrUnavailable and leaves the
// manager disconnected.
func (m *Manager) Acquire(ctx context.Context) (*mq.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateConnected && m.session != nil {
		return m.session, nil
	}

	m.state = StateConnecting
	delay := m.policy.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= m.policy.MaxAttempts; attempt++ {
		session, err := m.connectOnce(ctx)
		if err == nil {
			m.state = StateConnected
			m.session = session
			m.logger.Info("queue connection established", logging.Int("attempt", attempt))
			return session, nil
		}
		lastErr = err
		m.logger.Warn("queue connection attempt failed",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", m.policy.MaxAttempts),
			logging.Duration("next_delay", delay),
			logging.Error(err),
		)

		if attempt == m.policy.MaxAttempts {
			break
		}
		if err := m.sleep(ctx, delay); err != nil {
			m.state = StateDisconnected
			return nil, err
		}
		delay *= 2
	}

	m.state = StateDisconnected
	m.session = nil
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrUnavailable, m.policy.MaxAttempts, lastErr)
}

// Invalidate discards a dead session so the next Acquire reconnects. Stale
// handles from earlier connections are ignored.
func (m *Manager) Invalidate(session *mq.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session == nil || session != m.session {
		return
	}
	_ = session.Close()
	m.session = nil
	m.state = StateDisconnected
	m.logger.Info("queue connection invalidated")
}

func (m *Manager) connectOnce(ctx context.Context) (*mq.Session, error) {
	session, err := m.dialer.Connect()
	if err != nil {
		return nil, err
	}
	for _, channel := range m.channels {
		if err := session.DeclareChannel(ctx, channel, true); err != nil {
			_ = session.Close()
			return nil, fmt.Errorf("declare %q: %w", channel, err)
		}
	}
	return session, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
