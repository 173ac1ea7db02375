package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"mixdown/internal/daemon"
	"mixdown/internal/logging"
	"mixdown/internal/testsupport"
)

type fakeTranscoder struct{}

func (fakeTranscoder) Transcode(ctx context.Context, video []byte) ([]byte, error) {
	return append([]byte("mp3 of: "), video...), nil
}

type recordingDeliverer struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingDeliverer) Deliver(ctx context.Context, recipient, subject, body string) error {
	r.mu.Lock()
	r.calls = append(r.calls, recipient+"|"+body)
	r.mu.Unlock()
	return nil
}

func (r *recordingDeliverer) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func startDaemon(t *testing.T, opts ...daemon.Option) (*daemon.Daemon, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken("secret"))
	d, err := daemon.New(cfg, logging.NewNop(), opts...)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	addr := d.APIAddr()
	if addr == "" {
		t.Fatal("daemon reports no api address")
	}
	return d, "http://" + addr
}

func uploadRequest(t *testing.T, base string, fileCount int, user string) *http.Request {
	t.Helper()
	// Stage the upload through a real file the way a client would.
	videoPath := filepath.Join(t.TempDir(), "clip.mp4")
	testsupport.WriteFile(t, videoPath, 64)
	content, err := os.ReadFile(videoPath)
	if err != nil {
		t.Fatalf("read staged video: %v", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for i := 0; i < fileCount; i++ {
		part, err := writer.CreateFormFile(fmt.Sprintf("file%d", i), "clip.mp4")
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, base+"/api/upload", &buf)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer secret")
	if user != "" {
		req.Header.Set("X-Mixdown-User", user)
	}
	return req
}

func decodeJSON(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestDaemonUploadToNotificationFlow(t *testing.T) {
	deliverer := &recordingDeliverer{}
	_, base := startDaemon(t, daemon.WithTranscoder(fakeTranscoder{}), daemon.WithDeliverer(deliverer))

	resp, err := http.DefaultClient.Do(uploadRequest(t, base, 1, "user@example.com"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("upload status %d: %s", resp.StatusCode, body)
	}
	var uploaded struct {
		JobID string `json:"job_id"`
	}
	decodeJSON(t, resp, &uploaded)
	if uploaded.JobID == "" {
		t.Fatal("empty job_id")
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) && len(deliverer.snapshot()) == 0 {
		time.Sleep(25 * time.Millisecond)
	}
	calls := deliverer.snapshot()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(calls))
	}
	if !strings.HasPrefix(calls[0], "user@example.com|MP3 File ID: ") {
		t.Fatalf("unexpected notification %q", calls[0])
	}
	mp3FID := strings.TrimSuffix(strings.TrimPrefix(calls[0], "user@example.com|MP3 File ID: "), " is now ready!")

	// Queue must drain once the notification is out.
	deadline = time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		req, _ := http.NewRequest(http.MethodGet, base+"/api/queue", nil)
		req.Header.Set("Authorization", "Bearer secret")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("queue: %v", err)
		}
		var queue struct {
			Channels map[string]struct {
				Ready   int `json:"ready"`
				Unacked int `json:"unacked"`
			} `json:"channels"`
		}
		decodeJSON(t, resp, &queue)
		total := 0
		for _, s := range queue.Channels {
			total += s.Ready + s.Unacked
		}
		if total == 0 {
			break
		}
		time.Sleep(25 * time.Millisecond)
	}

	dlReq, _ := http.NewRequest(http.MethodGet, base+"/api/download/"+mp3FID, nil)
	dlReq.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(dlReq)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download status %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "audio/mpeg" {
		t.Fatalf("unexpected content type %q", got)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read audio: %v", err)
	}
	if !bytes.HasPrefix(audio, []byte("mp3 of: ")) {
		t.Fatal("downloaded audio does not match transcoder output")
	}
}

func TestDaemonRejectsUnauthorizedUpload(t *testing.T) {
	_, base := startDaemon(t, daemon.WithTranscoder(fakeTranscoder{}))

	req := uploadRequest(t, base, 1, "user@example.com")
	req.Header.Del("Authorization")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestDaemonRejectsMultiFileUpload(t *testing.T) {
	_, base := startDaemon(t, daemon.WithTranscoder(fakeTranscoder{}))

	resp, err := http.DefaultClient.Do(uploadRequest(t, base, 2, "user@example.com"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestDaemonDownloadUnknownBlob(t *testing.T) {
	_, base := startDaemon(t, daemon.WithTranscoder(fakeTranscoder{}))

	req, _ := http.NewRequest(http.MethodGet, base+"/api/download/no-such-id", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestDaemonSecondInstanceBlocked(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, err := daemon.New(cfg, logging.NewNop(), daemon.WithTranscoder(fakeTranscoder{}))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	defer first.Close()
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	second, err := daemon.New(cfg, logging.NewNop(), daemon.WithTranscoder(fakeTranscoder{}))
	if err != nil {
		t.Fatalf("daemon.New (second): %v", err)
	}
	defer second.Close()
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("second instance must not start while the lock is held")
	}
}

func TestDaemonPurgeQueueRequiresAuth(t *testing.T) {
	d, base := startDaemon(t, daemon.WithTranscoder(fakeTranscoder{}))

	req, _ := http.NewRequest(http.MethodDelete, base+"/api/queue", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	if _, err := d.PurgeQueue(context.Background()); err != nil {
		t.Fatalf("direct purge: %v", err)
	}
}
