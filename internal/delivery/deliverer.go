// Package delivery sends the user-facing "your audio is ready" message
// through an external channel.
//
// The notification worker only depends on the Deliverer interface; the
// concrete transport is chosen from configuration: SMTP email, an ntfy-style
// push topic, or a noop when delivery is unconfigured.
package delivery

import (
	"context"
	"errors"
	"time"

	"mixdown/internal/config"
)

// ErrDelivery wraps transport failures so the worker can decide retry vs drop.
var ErrDelivery = errors.New("delivery failed")

// Deliverer sends one message to one recipient.
type Deliverer interface {
	Deliver(ctx context.Context, recipient, subject, body string) error
}

// NewFromConfig selects the transport for the configured notification mode.
func NewFromConfig(cfg *config.Config) Deliverer {
	switch cfg.Notifications.Mode {
	case "smtp":
		return NewSMTP(SMTPOptions{
			Host:     cfg.Notifications.SMTPHost,
			Port:     cfg.Notifications.SMTPPort,
			From:     cfg.Notifications.SMTPFrom,
			Password: cfg.Notifications.SMTPPassword,
		})
	case "push":
		return NewPush(cfg.Notifications.PushTopic, time.Duration(cfg.Notifications.RequestTimeout)*time.Second)
	default:
		return Noop{}
	}
}

// Noop discards every message. Used when delivery is not configured.
type Noop struct{}

func (Noop) Deliver(context.Context, string, string, string) error { return nil }
