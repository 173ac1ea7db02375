// Package converter runs the conversion worker: it drains the conversion
// channel, extracts audio from each referenced video blob, stores the
// result, and hands the job to the notification channel.
//
// Delivery is at least once, so every side effect here must tolerate a
// redelivered job: re-storing audio yields a fresh blob id and the stale
// one is only ever created when the previous attempt failed before its
// notification job was published, in which case compensation already
// removed it.
package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mixdown/internal/blob"
	"mixdown/internal/config"
	"mixdown/internal/job"
	"mixdown/internal/logging"
	"mixdown/internal/mq"
	"mixdown/internal/pipeline"
	"mixdown/internal/transcode"
)

// Worker consumes conversion jobs and produces notification jobs.
type Worker struct {
	blobs        *blob.Store
	conn         pipeline.SessionProvider
	transcoder   transcode.Transcoder
	inChannel    string
	outChannel   string
	policy       pipeline.PublishPolicy
	maxRedeliver int
	pollInterval time.Duration
	logger       *slog.Logger
}

// New wires the conversion worker against the shared connection manager.
func New(blobs *blob.Store, conn pipeline.SessionProvider, transcoder transcode.Transcoder, cfg *config.Config, logger *slog.Logger) *Worker {
	return &Worker{
		blobs:      blobs,
		conn:       conn,
		transcoder: transcoder,
		inChannel:  cfg.Queue.ConversionChannel,
		outChannel: cfg.Queue.NotificationChannel,
		policy: pipeline.PublishPolicy{
			Attempts: cfg.Queue.PublishAttempts,
			Backoff:  time.Duration(cfg.Queue.PublishBackoffSeconds) * time.Second,
		},
		maxRedeliver: cfg.Queue.MaxRedeliveries,
		pollInterval: time.Duration(cfg.Queue.PollIntervalMillis) * time.Millisecond,
		logger:       logging.NewComponentLogger(logger, "converter"),
	}
}

// Run blocks draining the conversion channel until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("conversion worker started", logging.String(logging.FieldChannel, w.inChannel))
	return pipeline.RunConsumer(ctx, w.conn, w.inChannel, w.pollInterval, w.handle, w.logger)
}

func (w *Worker) handle(ctx context.Context, d mq.Delivery) {
	j, err := job.Decode(d.Body)
	if err != nil {
		w.logger.Warn("dropping malformed conversion job", logging.Error(err))
		w.drop(ctx, d)
		return
	}

	video, err := w.blobs.Get(ctx, j.VideoFID)
	if errors.Is(err, blob.ErrNotFound) {
		// The blob will not reappear on redelivery.
		w.logger.Warn("dropping job for missing video blob",
			logging.String(logging.FieldBlobID, j.VideoFID),
		)
		w.drop(ctx, d)
		return
	}
	if err != nil {
		w.retryOrDrop(ctx, d, j, fmt.Errorf("fetch video: %w", err))
		return
	}

	audio, err := w.transcoder.Transcode(ctx, video)
	if err != nil {
		w.retryOrDrop(ctx, d, j, err)
		return
	}

	mp3FID, err := w.blobs.Put(ctx, bytes.NewReader(audio), "audio/mpeg")
	if err != nil {
		w.retryOrDrop(ctx, d, j, fmt.Errorf("store audio: %w", err))
		return
	}

	converted := j.WithAudio(mp3FID)
	err = pipeline.PublishOrCompensate(ctx, w.conn, w.outChannel, converted, w.policy, func(ctx context.Context) error {
		if err := w.blobs.Delete(ctx, mp3FID); err != nil && !errors.Is(err, blob.ErrNotFound) {
			return err
		}
		w.logger.Info("deleted orphaned audio blob after failed publish",
			logging.String(logging.FieldBlobID, mp3FID),
		)
		return nil
	}, w.logger)
	if err != nil {
		// Redelivery re-transcodes from the still-present video blob.
		w.retryOrDrop(ctx, d, j, err)
		return
	}

	if err := d.Ack(ctx); err != nil {
		// The job will be redelivered and converted again; idempotent
		// apart from a duplicate notification.
		w.logger.Warn("ack failed after successful conversion", logging.Error(err))
		return
	}
	w.logger.Info("converted video",
		logging.String(logging.FieldBlobID, j.VideoFID),
		logging.String("mp3_fid", mp3FID),
		logging.String("username", j.Username),
	)
}

// retryOrDrop requeues the job until the redelivery bound is reached, then
// drops it. The video blob is kept for operator triage; dropping deletes
// only the message.
func (w *Worker) retryOrDrop(ctx context.Context, d mq.Delivery, j job.Job, cause error) {
	if d.RedeliveryCount >= w.maxRedeliver {
		w.logger.Error("giving up on conversion job, video blob retained",
			logging.String(logging.FieldBlobID, j.VideoFID),
			logging.Int("redeliveries", d.RedeliveryCount),
			logging.Error(cause),
		)
		w.drop(ctx, d)
		return
	}
	w.logger.Warn("conversion failed, requeueing",
		logging.String(logging.FieldBlobID, j.VideoFID),
		logging.Int("redeliveries", d.RedeliveryCount),
		logging.Error(cause),
	)
	if err := d.Nack(ctx, true); err != nil {
		w.logger.Warn("requeue failed", logging.Error(err))
	}
}

func (w *Worker) drop(ctx context.Context, d mq.Delivery) {
	if err := d.Nack(ctx, false); err != nil {
		w.logger.Warn("drop failed", logging.Error(err))
	}
}
