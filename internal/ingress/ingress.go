// Package ingress accepts an authorized upload and hands it to the pipeline.
//
// Submit owns the first blob-job atomicity point: the video blob it writes
// must not survive unless a conversion job referencing it was durably
// published. The blob write itself is never retried; repeating a failed
// write risks a duplicate nothing would ever clean up.
package ingress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"mixdown/internal/blob"
	"mixdown/internal/config"
	"mixdown/internal/job"
	"mixdown/internal/logging"
	"mixdown/internal/pipeline"
)

// ErrInvalidOwner indicates the uploader address failed validation before
// any side effect occurred.
var ErrInvalidOwner = errors.New("invalid owner address")

// Service implements the upload entry point of the pipeline.
type Service struct {
	blobs    *blob.Store
	conn     pipeline.SessionProvider
	channel  string
	policy   pipeline.PublishPolicy
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService wires the ingress stage against the shared connection manager.
func NewService(blobs *blob.Store, conn pipeline.SessionProvider, cfg *config.Config, logger *slog.Logger) *Service {
	return &Service{
		blobs:   blobs,
		conn:    conn,
		channel: cfg.Queue.ConversionChannel,
		policy: pipeline.PublishPolicy{
			Attempts: cfg.Queue.PublishAttempts,
			Backoff:  time.Duration(cfg.Queue.PublishBackoffSeconds) * time.Second,
		},
		validate: validator.New(),
		logger:   logging.NewComponentLogger(logger, "ingress"),
	}
}

// Submit stores the video and publishes a conversion job for it. The
// returned identifier doubles as the job id: it is the video blob id the
// job carries through the pipeline.
//
// The caller has already been authorized and has verified the request
// carries exactly one file payload.
func (s *Service) Submit(ctx context.Context, video io.Reader, owner string) (string, error) {
	if err := s.validate.Var(owner, "required,email"); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidOwner, owner)
	}

	videoFID, err := s.blobs.Put(ctx, video, "video/unknown")
	if err != nil {
		// Nothing to compensate: no blob, no job.
		return "", fmt.Errorf("store video: %w", err)
	}

	j := job.New(videoFID, owner)
	err = pipeline.PublishOrCompensate(ctx, s.conn, s.channel, j, s.policy, func(ctx context.Context) error {
		if err := s.blobs.Delete(ctx, videoFID); err != nil && !errors.Is(err, blob.ErrNotFound) {
			return err
		}
		s.logger.Info("deleted orphaned video blob after failed publish",
			logging.String(logging.FieldBlobID, videoFID),
		)
		return nil
	}, s.logger)
	if err != nil {
		return "", err
	}

	s.logger.Info("accepted upload",
		logging.String(logging.FieldBlobID, videoFID),
		logging.String("owner", owner),
		logging.String(logging.FieldChannel, s.channel),
	)
	return videoFID, nil
}
