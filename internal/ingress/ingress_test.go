package ingress_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"mixdown/internal/blob"
	"mixdown/internal/ingress"
	"mixdown/internal/job"
	"mixdown/internal/logging"
	"mixdown/internal/mq"
	"mixdown/internal/mq/connmgr"
	"mixdown/internal/pipeline"
	"mixdown/internal/testsupport"
)

func newService(t *testing.T) (*ingress.Service, *blob.Store, *mq.Broker) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	blobs := testsupport.MustOpenBlobStore(t, cfg)
	broker := testsupport.MustOpenBroker(t, cfg)
	conn := connmgr.New(broker,
		[]string{cfg.Queue.ConversionChannel, cfg.Queue.NotificationChannel},
		connmgr.Policy{MaxAttempts: 1},
		logging.NewNop(),
	)
	return ingress.NewService(blobs, conn, cfg, logging.NewNop()), blobs, broker
}

func TestSubmitStoresBlobAndPublishesJob(t *testing.T) {
	svc, blobs, broker := newService(t)
	ctx := context.Background()

	jobID, err := svc.Submit(ctx, strings.NewReader("fake video bytes"), "user@example.com")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	content, err := blobs.Get(ctx, jobID)
	if err != nil {
		t.Fatalf("video blob not stored: %v", err)
	}
	if string(content) != "fake video bytes" {
		t.Fatalf("unexpected blob content %q", content)
	}

	session, err := broker.Connect()
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	consumeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	deliveries, err := session.Consume(consumeCtx, "video", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	delivery, ok := <-deliveries
	if !ok {
		t.Fatal("no conversion job published")
	}
	j, err := job.Decode(delivery.Body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if j.VideoFID != jobID {
		t.Fatalf("job video_fid %q, want %q", j.VideoFID, jobID)
	}
	if j.MP3FID != nil {
		t.Fatal("conversion job must not carry mp3_fid")
	}
	if j.Username != "user@example.com" {
		t.Fatalf("unexpected username %q", j.Username)
	}
}

func TestSubmitRejectsInvalidOwner(t *testing.T) {
	svc, blobs, _ := newService(t)
	ctx := context.Background()

	for _, owner := range []string{"", "   ", "not-an-address"} {
		if _, err := svc.Submit(ctx, strings.NewReader("x"), owner); !errors.Is(err, ingress.ErrInvalidOwner) {
			t.Fatalf("owner %q: expected ErrInvalidOwner, got %v", owner, err)
		}
	}

	infos, err := blobs.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("rejected submits must not store blobs, found %d", len(infos))
	}
}

func TestSubmitDeletesBlobWhenPublishExhausted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	blobs := testsupport.MustOpenBlobStore(t, cfg)
	broker := testsupport.MustOpenBroker(t, cfg)
	// Closing the broker makes every publish fail while the blob store
	// stays healthy, forcing the compensation path.
	if err := broker.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	conn := connmgr.New(broker, []string{cfg.Queue.ConversionChannel}, connmgr.Policy{MaxAttempts: 1}, logging.NewNop())
	svc := ingress.NewService(blobs, conn, cfg, logging.NewNop())

	ctx := context.Background()
	_, err := svc.Submit(ctx, strings.NewReader("doomed upload"), "user@example.com")
	if !errors.Is(err, pipeline.ErrPublish) {
		t.Fatalf("expected ErrPublish, got %v", err)
	}

	infos, err := blobs.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("orphaned video blob survived failed publish, found %d blobs", len(infos))
	}
}

func TestSubmitRetriesPublishBeforeCompensating(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	blobs := testsupport.MustOpenBlobStore(t, cfg)
	broker := testsupport.MustOpenBroker(t, cfg)

	// Fails the first dial, succeeds afterwards: the retry budget must
	// absorb a transient broker outage without dropping the upload.
	dialer := &flakyDialer{broker: broker, failures: 1}
	conn := connmgr.New(dialer, []string{cfg.Queue.ConversionChannel}, connmgr.Policy{MaxAttempts: 1}, logging.NewNop())
	svc := ingress.NewService(blobs, conn, cfg, logging.NewNop())

	jobID, err := svc.Submit(context.Background(), strings.NewReader("video"), "user@example.com")
	if err != nil {
		t.Fatalf("Submit failed despite retry budget: %v", err)
	}
	if _, err := blobs.Get(context.Background(), jobID); err != nil {
		t.Fatalf("video blob missing after successful submit: %v", err)
	}
}

type flakyDialer struct {
	broker   *mq.Broker
	failures int
}

func (d *flakyDialer) Connect() (*mq.Session, error) {
	if d.failures > 0 {
		d.failures--
		return nil, errors.New("broker unavailable")
	}
	return d.broker.Connect()
}
