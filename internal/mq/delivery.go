package mq

import (
	"context"
	"fmt"
	"time"
)

// Delivery is one consumed message awaiting acknowledgment.
// RedeliveryCount is how many times the message was returned to the channel
// before this delivery; a fresh message carries zero.
type Delivery struct {
	MessageID       int64
	Body            []byte
	RedeliveryCount int

	session *Session
}

// Ack removes the message permanently. Responsibility for the work it
// describes has passed downstream.
func (d *Delivery) Ack(ctx context.Context) error {
	if err := d.session.usable(); err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	res, err := d.session.broker.execWithRetry(
		ctx,
		`DELETE FROM messages WHERE id = ? AND state = ?`,
		d.MessageID, stateUnacked,
	)
	if err != nil {
		return fmt.Errorf("ack message %d: %w", d.MessageID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("ack message %d: claim no longer held", d.MessageID)
	}
	return nil
}

// Nack releases the claim. With requeue the message returns to the channel
// with an incremented delivery count; without it the message is dropped.
func (d *Delivery) Nack(ctx context.Context, requeue bool) error {
	if err := d.session.usable(); err != nil {
		return fmt.Errorf("nack: %w", err)
	}
	if !requeue {
		_, err := d.session.broker.execWithRetry(
			ctx,
			`DELETE FROM messages WHERE id = ? AND state = ?`,
			d.MessageID, stateUnacked,
		)
		if err != nil {
			return fmt.Errorf("drop message %d: %w", d.MessageID, err)
		}
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := d.session.broker.execWithRetry(
		ctx,
		`UPDATE messages SET state = ?, delivery_count = delivery_count + 1, updated_at = ?
         WHERE id = ? AND state = ?`,
		stateReady, now, d.MessageID, stateUnacked,
	)
	if err != nil {
		return fmt.Errorf("requeue message %d: %w", d.MessageID, err)
	}
	return nil
}
