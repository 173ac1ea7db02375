package pipeline

import (
	"context"
	"log/slog"
	"time"

	"mixdown/internal/logging"
	"mixdown/internal/mq"
)

// Handler processes one delivery. It owns the ack/nack decision; RunConsumer
// never acknowledges on its behalf.
type Handler func(ctx context.Context, d mq.Delivery)

// RunConsumer drains channel through sessions from conn until ctx is
// canceled. A session whose delivery stream ends early is invalidated and
// replaced, so a broker restart surfaces as a pause rather than a crash.
func RunConsumer(ctx context.Context, conn SessionProvider, channel string, pollInterval time.Duration, handle Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewNop()
	}
	if pollInterval <= 0 {
		pollInterval = 250 * time.Millisecond
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		session, err := conn.Acquire(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("queue unavailable, retrying",
				logging.String(logging.FieldChannel, channel),
				logging.Error(err),
			)
			if err := waitFor(ctx, pollInterval); err != nil {
				return err
			}
			continue
		}

		deliveries, err := session.Consume(ctx, channel, pollInterval)
		if err != nil {
			conn.Invalidate(session)
			logger.Warn("consume setup failed, reconnecting",
				logging.String(logging.FieldChannel, channel),
				logging.Error(err),
			)
			if err := waitFor(ctx, pollInterval); err != nil {
				return err
			}
			continue
		}

		for d := range deliveries {
			handle(ctx, d)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Stream ended without cancellation: the session died underneath us.
		conn.Invalidate(session)
	}
}

func waitFor(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
