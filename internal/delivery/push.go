package delivery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const userAgent = "mixdown/0.1.0"

// Push posts messages to an ntfy-style topic endpoint.
type Push struct {
	endpoint string
	client   *http.Client
}

// NewPush constructs a push deliverer for the given topic URL.
func NewPush(endpoint string, timeout time.Duration) *Push {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Push{
		endpoint: strings.TrimSpace(endpoint),
		client:   &http.Client{Timeout: timeout},
	}
}

// Deliver posts the message body with the subject as title. The recipient is
// carried as a header tag; push topics are shared, so it is informational.
func (p *Push) Deliver(ctx context.Context, recipient, subject, body string) error {
	if p == nil || p.client == nil || p.endpoint == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrDelivery, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if subject != "" {
		req.Header.Set("Title", subject)
	}
	if recipient = strings.TrimSpace(recipient); recipient != "" {
		req.Header.Set("Tags", "mixdown,"+recipient)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%w: push endpoint returned %d: %s", ErrDelivery, resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

var _ Deliverer = (*Push)(nil)
