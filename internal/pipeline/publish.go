// Package pipeline holds the publish policy shared by the ingress stage and
// the conversion worker.
//
// Both stages follow the same rule: a blob may only outlive the call that
// wrote it if a job referencing it was durably published. PublishOrCompensate
// centralizes that rule so the invariant is enforced in one place rather
// than duplicated per stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mixdown/internal/job"
	"mixdown/internal/logging"
	"mixdown/internal/mq"
)

// ErrPublish indicates a job could not be durably published within the
// attempt budget. Any compensation has already run by the time it is
// returned.
var ErrPublish = errors.New("publish failed")

// SessionProvider yields queue sessions and retires dead ones.
// *connmgr.Manager satisfies it.
type SessionProvider interface {
	Acquire(ctx context.Context) (*mq.Session, error)
	Invalidate(session *mq.Session)
}

// PublishPolicy bounds publish retries. Backoff is linear: the same delay
// between each attempt.
type PublishPolicy struct {
	Attempts int
	Backoff  time.Duration
}

func (p PublishPolicy) normalized() PublishPolicy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
	return p
}

// PublishJob encodes j and publishes it persistently to channel, retrying up
// to the policy's attempt budget. A session that fails to publish is
// invalidated so the next attempt reconnects.
func PublishJob(ctx context.Context, conn SessionProvider, channel string, j job.Job, policy PublishPolicy) error {
	body, err := j.Encode()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}

	policy = policy.normalized()
	var lastErr error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		session, err := conn.Acquire(ctx)
		if err != nil {
			lastErr = err
		} else if err := session.Publish(ctx, channel, body, true); err != nil {
			conn.Invalidate(session)
			lastErr = err
		} else {
			return nil
		}

		if attempt == policy.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrPublish, ctx.Err())
		case <-time.After(policy.Backoff):
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrPublish, policy.Attempts, lastErr)
}

// PublishOrCompensate publishes j and, when every attempt fails, runs the
// compensation before returning ErrPublish. The compensation restores the
// blob-job invariant: a blob nothing will ever reference must not survive.
func PublishOrCompensate(ctx context.Context, conn SessionProvider, channel string, j job.Job, policy PublishPolicy, compensate func(context.Context) error, logger *slog.Logger) error {
	err := PublishJob(ctx, conn, channel, j, policy)
	if err == nil {
		return nil
	}

	if compensate != nil {
		if compErr := compensate(ctx); compErr != nil {
			if logger == nil {
				logger = logging.NewNop()
			}
			logger.Error("compensation after failed publish also failed; orphaned blob requires operator cleanup",
				logging.String(logging.FieldChannel, channel),
				logging.Error(compErr),
			)
			return errors.Join(err, compErr)
		}
	}
	return err
}
