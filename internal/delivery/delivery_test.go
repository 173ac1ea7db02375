package delivery

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"mixdown/internal/config"
)

func TestSMTPDeliverBuildsMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	s := NewSMTP(SMTPOptions{Host: "smtp.example.com", Port: 587, From: "noreply@example.com", Password: "secret"})
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err := s.Deliver(context.Background(), "user@example.com", "MP3 Download", "MP3 File ID: abc is now ready!")
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if gotAddr != "smtp.example.com:587" {
		t.Fatalf("unexpected addr %q", gotAddr)
	}
	if gotFrom != "noreply@example.com" {
		t.Fatalf("unexpected from %q", gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "user@example.com" {
		t.Fatalf("unexpected to %v", gotTo)
	}
	text := string(gotMsg)
	if !strings.Contains(text, "Subject: MP3 Download") {
		t.Fatalf("missing subject in %q", text)
	}
	if !strings.Contains(text, "MP3 File ID: abc is now ready!") {
		t.Fatalf("missing body in %q", text)
	}
}

func TestSMTPDeliverRejectsEmptyRecipient(t *testing.T) {
	s := NewSMTP(SMTPOptions{Host: "smtp.example.com", From: "noreply@example.com"})
	s.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called")
		return nil
	}
	if err := s.Deliver(context.Background(), "  ", "subj", "body"); !errors.Is(err, ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
}

func TestSMTPDeliverWrapsTransportError(t *testing.T) {
	s := NewSMTP(SMTPOptions{Host: "smtp.example.com", From: "noreply@example.com"})
	s.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}
	if err := s.Deliver(context.Background(), "user@example.com", "s", "b"); !errors.Is(err, ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
}

func TestPushDeliverPostsToTopic(t *testing.T) {
	var gotTitle, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("Title")
		payload, _ := io.ReadAll(r.Body)
		gotBody = string(payload)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := NewPush(server.URL, time.Second)
	if err := p.Deliver(context.Background(), "user@example.com", "MP3 Download", "ready!"); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if gotTitle != "MP3 Download" {
		t.Fatalf("unexpected title %q", gotTitle)
	}
	if gotBody != "ready!" {
		t.Fatalf("unexpected body %q", gotBody)
	}
}

func TestPushDeliverReportsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic gone", http.StatusGone)
	}))
	defer server.Close()

	p := NewPush(server.URL, time.Second)
	if err := p.Deliver(context.Background(), "u", "s", "b"); !errors.Is(err, ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
}

func TestNewFromConfigSelectsTransport(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.Mode = "none"
	if _, ok := NewFromConfig(&cfg).(Noop); !ok {
		t.Fatal("expected noop deliverer for mode none")
	}

	cfg.Notifications.Mode = "smtp"
	cfg.Notifications.SMTPHost = "smtp.example.com"
	cfg.Notifications.SMTPFrom = "noreply@example.com"
	if _, ok := NewFromConfig(&cfg).(*SMTP); !ok {
		t.Fatal("expected smtp deliverer")
	}

	cfg.Notifications.Mode = "push"
	cfg.Notifications.PushTopic = "https://ntfy.sh/mixdown"
	if _, ok := NewFromConfig(&cfg).(*Push); !ok {
		t.Fatal("expected push deliverer")
	}
}
