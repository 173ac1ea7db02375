package mq

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"mixdown/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

const (
	stateReady   = "ready"
	stateUnacked = "unacked"
)

const (
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// ChannelStats reports message counts for one channel.
type ChannelStats struct {
	Ready   int
	Unacked int
}

// Broker manages durable channels persisted in SQLite.
type Broker struct {
	db   *sql.DB
	path string

	mu     sync.Mutex
	closed bool
}

// Open initializes or connects to the queue database, returns in-flight
// claims from a previous run to their channels, and purges messages that
// were published without persistence.
func Open(cfg *config.Config) (*Broker, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "queue.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	broker := &Broker{db: db, path: dbPath}
	ctx := context.Background()
	if err := broker.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := broker.recover(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return broker, nil
}

// Close closes the broker. Existing sessions become unusable.
func (b *Broker) Close() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Connect returns a new session handle, or ErrClosed when the broker is shut down.
func (b *Broker) Connect() (*Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("connect: %w", ErrClosed)
	}
	return &Session{broker: b}, nil
}

// Stats returns ready and unacked message counts per declared channel.
func (b *Broker) Stats(ctx context.Context) (map[string]ChannelStats, error) {
	rows, err := b.db.QueryContext(ctx, `
        SELECT c.name,
               COALESCE(SUM(CASE WHEN m.state = 'ready' THEN 1 ELSE 0 END), 0),
               COALESCE(SUM(CASE WHEN m.state = 'unacked' THEN 1 ELSE 0 END), 0)
        FROM channels c
        LEFT JOIN messages m ON m.channel = c.name
        GROUP BY c.name`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]ChannelStats)
	for rows.Next() {
		var name string
		var ready, unacked int
		if err := rows.Scan(&name, &ready, &unacked); err != nil {
			return nil, err
		}
		stats[name] = ChannelStats{Ready: ready, Unacked: unacked}
	}
	return stats, rows.Err()
}

// Purge deletes every message, claimed or not. Channels survive.
func (b *Broker) Purge(ctx context.Context) (int64, error) {
	if b.isClosed() {
		return 0, fmt.Errorf("purge: %w", ErrClosed)
	}
	res, err := b.execWithRetry(ensureContext(ctx), `DELETE FROM messages`)
	if err != nil {
		return 0, fmt.Errorf("purge messages: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}

func (b *Broker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// recover requeues claims abandoned by a previous process and drops
// non-persistent messages. Requeued messages count as redeliveries.
func (b *Broker) recover(ctx context.Context) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := b.db.ExecContext(
		ctx,
		`UPDATE messages SET state = ?, delivery_count = delivery_count + 1, updated_at = ?
         WHERE state = ?`,
		stateReady, now, stateUnacked,
	); err != nil {
		return fmt.Errorf("requeue abandoned claims: %w", err)
	}
	if _, err := b.db.ExecContext(ctx, `DELETE FROM messages WHERE persistent = 0`); err != nil {
		return fmt.Errorf("purge non-persistent messages: %w", err)
	}
	return nil
}

func (b *Broker) initSchema(ctx context.Context) error {
	var tableExists int
	err := b.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return b.createSchema(ctx)
	}

	var version int
	err = b.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d", ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (b *Broker) createSchema(ctx context.Context) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == 5 {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (b *Broker) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = b.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}
