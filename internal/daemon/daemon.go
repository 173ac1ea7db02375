package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"mixdown/internal/authz"
	"mixdown/internal/blob"
	"mixdown/internal/config"
	"mixdown/internal/converter"
	"mixdown/internal/delivery"
	"mixdown/internal/ingress"
	"mixdown/internal/logging"
	"mixdown/internal/mq"
	"mixdown/internal/mq/connmgr"
	"mixdown/internal/notifier"
	"mixdown/internal/pipeline"
	"mixdown/internal/transcode"
)

// Daemon coordinates the background workers and enforces single-instance
// execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	blobs      *blob.Store
	broker     *mq.Broker
	conn       *connmgr.Manager
	ingress    *ingress.Service
	converter  *converter.Worker
	notifier   *notifier.Worker
	transcoder transcode.Transcoder
	deliverer  delivery.Deliverer
	api        *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	workers sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	QueueDBPath  string
	BlobDBPath   string
	LockFilePath string
	Channels     map[string]mq.ChannelStats
	BlobCount    int
}

// Option overrides a daemon collaborator, mainly for tests.
type Option func(*Daemon)

// WithTranscoder substitutes the transcoder built from config.
func WithTranscoder(t transcode.Transcoder) Option {
	return func(d *Daemon) {
		d.transcoder = t
	}
}

// WithDeliverer substitutes the notification transport built from config.
func WithDeliverer(del delivery.Deliverer) Option {
	return func(d *Daemon) {
		d.deliverer = del
	}
}

// New constructs a daemon with initialized dependencies. The queue and blob
// databases are opened immediately; workers start on Start.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	blobs, err := blob.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	broker, err := mq.Open(cfg)
	if err != nil {
		_ = blobs.Close()
		return nil, fmt.Errorf("open queue: %w", err)
	}

	conn := connmgr.New(broker,
		[]string{cfg.Queue.ConversionChannel, cfg.Queue.NotificationChannel},
		connmgr.Policy{
			MaxAttempts: cfg.Queue.ConnectAttempts,
			BaseDelay:   time.Duration(cfg.Queue.ConnectBackoffSeconds) * time.Second,
		},
		logger,
	)

	d := &Daemon{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "daemon"),
		blobs:  blobs,
		broker: broker,
		conn:   conn,
		transcoder: transcode.NewFFmpeg(
			cfg.Transcode.FFmpegPath,
			cfg.Transcode.Bitrate,
			time.Duration(cfg.Transcode.TimeoutSeconds)*time.Second,
		),
		deliverer: delivery.NewFromConfig(cfg),
		lockPath:  filepath.Join(cfg.Paths.DataDir, "mixdownd.lock"),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.ingress = ingress.NewService(blobs, conn, cfg, logger)
	d.converter = converter.New(blobs, conn, d.transcoder, cfg, logger)
	d.notifier = notifier.New(conn, d.deliverer, cfg, logger)
	d.lock = flock.New(d.lockPath)
	d.api = newAPIServer(cfg, d, authz.NewStaticToken(cfg.Paths.APIToken), logger)
	return d, nil
}

// Start acquires the daemon lock and launches the workers and the API
// server. It returns once everything is running.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another mixdown daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.workers.Add(2)
	go func() {
		defer d.workers.Done()
		if err := d.converter.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("conversion worker exited", logging.Error(err))
		}
	}()
	go func() {
		defer d.workers.Done()
		if err := d.notifier.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("notification worker exited", logging.Error(err))
		}
	}()

	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.workers.Wait()
		_ = d.lock.Unlock()
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("mixdown daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops the workers and the API server and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.workers.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("mixdown daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return errors.Join(d.broker.Close(), d.blobs.Close())
}

// APIAddr reports the bound API listener address, or "" before Start.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// Submit stores a video and enqueues its conversion. It is the programmatic
// face of the upload endpoint.
func (d *Daemon) Submit(ctx context.Context, video io.Reader, owner string) (string, error) {
	return d.ingress.Submit(ctx, video, owner)
}

// PurgeQueue removes all pending and claimed messages.
func (d *Daemon) PurgeQueue(ctx context.Context) (int64, error) {
	return d.broker.Purge(ctx)
}

// TestNotification sends a probe message through the configured delivery
// transport.
func (d *Daemon) TestNotification(ctx context.Context, recipient string) error {
	if _, ok := d.deliverer.(delivery.Noop); ok {
		return errors.New("notifications are not configured")
	}
	return d.deliverer.Deliver(ctx, recipient, d.cfg.Notifications.Subject, "mixdown test notification")
}

// Status returns the current daemon status. Queue statistics are best
// effort; an unreachable queue yields empty counts.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		QueueDBPath:  filepath.Join(d.cfg.Paths.DataDir, "queue.db"),
		BlobDBPath:   filepath.Join(d.cfg.Paths.DataDir, "blobs.db"),
		LockFilePath: d.lockPath,
	}
	if stats, err := d.broker.Stats(ctx); err == nil {
		status.Channels = stats
	}
	if infos, err := d.blobs.List(ctx); err == nil {
		status.BlobCount = len(infos)
	}
	return status
}

var _ pipeline.SessionProvider = (*connmgr.Manager)(nil)
