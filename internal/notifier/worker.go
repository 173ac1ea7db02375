// Package notifier runs the notification worker: it drains the notification
// channel and tells each uploader their audio is ready.
//
// The worker never touches blob content. In particular it must not delete
// the audio blob on failure: the blob is referenced by the job being
// retried, and the download endpoint may already be serving it.
package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mixdown/internal/config"
	"mixdown/internal/delivery"
	"mixdown/internal/job"
	"mixdown/internal/logging"
	"mixdown/internal/mq"
	"mixdown/internal/pipeline"
)

// Worker consumes notification jobs and delivers user-facing messages.
type Worker struct {
	conn         pipeline.SessionProvider
	deliverer    delivery.Deliverer
	channel      string
	subject      string
	maxRedeliver int
	pollInterval time.Duration
	logger       *slog.Logger
}

// New wires the notification worker against the shared connection manager.
func New(conn pipeline.SessionProvider, deliverer delivery.Deliverer, cfg *config.Config, logger *slog.Logger) *Worker {
	return &Worker{
		conn:         conn,
		deliverer:    deliverer,
		channel:      cfg.Queue.NotificationChannel,
		subject:      cfg.Notifications.Subject,
		maxRedeliver: cfg.Queue.MaxRedeliveries,
		pollInterval: time.Duration(cfg.Queue.PollIntervalMillis) * time.Millisecond,
		logger:       logging.NewComponentLogger(logger, "notifier"),
	}
}

// Run blocks draining the notification channel until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("notification worker started", logging.String(logging.FieldChannel, w.channel))
	return pipeline.RunConsumer(ctx, w.conn, w.channel, w.pollInterval, w.handle, w.logger)
}

// Compose renders the message body for a converted job.
func Compose(j job.Job) string {
	return fmt.Sprintf("MP3 File ID: %s is now ready!", *j.MP3FID)
}

func (w *Worker) handle(ctx context.Context, d mq.Delivery) {
	j, err := job.Decode(d.Body)
	if err != nil {
		w.logger.Warn("dropping malformed notification job", logging.Error(err))
		w.drop(ctx, d)
		return
	}
	if !j.Converted() {
		// A notification job without an audio id can never be delivered.
		w.logger.Warn("dropping notification job without mp3_fid",
			logging.String(logging.FieldBlobID, j.VideoFID),
		)
		w.drop(ctx, d)
		return
	}

	if err := w.deliverer.Deliver(ctx, j.Username, w.subject, Compose(j)); err != nil {
		if d.RedeliveryCount >= w.maxRedeliver {
			w.logger.Error("giving up on notification, audio blob retained",
				logging.String("mp3_fid", *j.MP3FID),
				logging.String("username", j.Username),
				logging.Int("redeliveries", d.RedeliveryCount),
				logging.Error(err),
			)
			w.drop(ctx, d)
			return
		}
		w.logger.Warn("delivery failed, requeueing",
			logging.String("username", j.Username),
			logging.Int("redeliveries", d.RedeliveryCount),
			logging.Error(err),
		)
		if err := d.Nack(ctx, true); err != nil {
			w.logger.Warn("requeue failed", logging.Error(err))
		}
		return
	}

	if err := d.Ack(ctx); err != nil {
		// Redelivery sends a duplicate message; acceptable under
		// at-least-once semantics.
		w.logger.Warn("ack failed after successful delivery", logging.Error(err))
		return
	}
	w.logger.Info("notified uploader",
		logging.String("username", j.Username),
		logging.String("mp3_fid", *j.MP3FID),
	)
}

func (w *Worker) drop(ctx context.Context, d mq.Delivery) {
	if err := d.Nack(ctx, false); err != nil {
		w.logger.Warn("drop failed", logging.Error(err))
	}
}
