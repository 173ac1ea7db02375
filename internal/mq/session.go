package mq

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Session is a handle to the broker. All publish and consume traffic flows
// through a session so a lost connection is observable as ErrClosed and can
// be replaced by the connection manager.
type Session struct {
	broker *Broker

	mu     sync.Mutex
	closed bool
}

// Close marks the session unusable. Consumers draining this session stop.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *Session) usable() error {
	if s == nil {
		return ErrClosed
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed || s.broker.isClosed() {
		return ErrClosed
	}
	return nil
}

// DeclareChannel creates a named durable channel. Declaring an existing
// channel is a no-op.
func (s *Session) DeclareChannel(ctx context.Context, name string, durable bool) error {
	if err := s.usable(); err != nil {
		return fmt.Errorf("declare channel: %w", err)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("declare channel: empty name")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.broker.execWithRetry(
		ctx,
		`INSERT INTO channels (name, durable, created_at) VALUES (?, ?, ?)
         ON CONFLICT (name) DO NOTHING`,
		name, boolToInt(durable), now,
	)
	if err != nil {
		return fmt.Errorf("declare channel %q: %w", name, err)
	}
	return nil
}

// Publish appends a message to a declared channel. Persistent messages
// survive broker restarts; others are dropped on the next open.
func (s *Session) Publish(ctx context.Context, channel string, body []byte, persistent bool) error {
	if err := s.usable(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	declared, err := s.channelExists(ctx, channel)
	if err != nil {
		return err
	}
	if !declared {
		return fmt.Errorf("publish to %q: %w", channel, ErrChannelUnknown)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.broker.execWithRetry(
		ctx,
		`INSERT INTO messages (channel, body, persistent, state, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		channel, body, boolToInt(persistent), stateReady, now, now,
	)
	if err != nil {
		return fmt.Errorf("publish to %q: %w", channel, err)
	}
	return nil
}

// Consume delivers messages from a channel until ctx is canceled or the
// session dies. Each delivery stays claimed until acked or nacked.
func (s *Session) Consume(ctx context.Context, channel string, pollInterval time.Duration) (<-chan Delivery, error) {
	if err := s.usable(); err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	declared, err := s.channelExists(ctx, channel)
	if err != nil {
		return nil, err
	}
	if !declared {
		return nil, fmt.Errorf("consume from %q: %w", channel, ErrChannelUnknown)
	}
	if pollInterval <= 0 {
		pollInterval = 250 * time.Millisecond
	}

	deliveries := make(chan Delivery)
	go func() {
		defer close(deliveries)
		for {
			if err := s.usable(); err != nil {
				return
			}
			delivery, err := s.claimNext(ctx, channel)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				// Transient claim failures back off like an empty channel.
				delivery = nil
			}
			if delivery == nil {
				select {
				case <-ctx.Done():
					return
				case <-time.After(pollInterval):
				}
				continue
			}
			select {
			case <-ctx.Done():
				// Claim stays unacked; broker recovery requeues it.
				return
			case deliveries <- *delivery:
			}
		}
	}()
	return deliveries, nil
}

// claimNext atomically moves the oldest ready message to unacked.
func (s *Session) claimNext(ctx context.Context, channel string) (*Delivery, error) {
	ctx = ensureContext(ctx)
	tx, err := s.broker.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		id            int64
		body          []byte
		deliveryCount int
	)
	row := tx.QueryRowContext(
		ctx,
		`SELECT id, body, delivery_count FROM messages
         WHERE channel = ? AND state = ? ORDER BY id LIMIT 1`,
		channel, stateReady,
	)
	if err := row.Scan(&id, &body, &deliveryCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select next message: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := tx.ExecContext(
		ctx,
		`UPDATE messages SET state = ?, updated_at = ? WHERE id = ? AND state = ?`,
		stateUnacked, now, id, stateReady,
	)
	if err != nil {
		return nil, fmt.Errorf("claim message: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// Another consumer won the claim.
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	return &Delivery{MessageID: id, Body: body, RedeliveryCount: deliveryCount, session: s}, nil
}

func (s *Session) channelExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := s.broker.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT COUNT(1) FROM channels WHERE name = ?`,
		name,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check channel %q: %w", name, err)
	}
	return count > 0, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
