package delivery

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// sendMailFunc matches smtp.SendMail. Injectable for tests.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPOptions configures the outbound mail transport.
type SMTPOptions struct {
	Host     string
	Port     int
	From     string
	Password string
}

// SMTP delivers messages as plain-text email over authenticated SMTP.
type SMTP struct {
	opts SMTPOptions
	send sendMailFunc
}

// NewSMTP constructs an email deliverer.
func NewSMTP(opts SMTPOptions) *SMTP {
	if opts.Port <= 0 {
		opts.Port = 587
	}
	return &SMTP{opts: opts, send: smtp.SendMail}
}

// Deliver sends one message. The context bounds nothing here: net/smtp has
// no context support, so cancellation is handled by the caller's retry
// policy rather than mid-send.
func (s *SMTP) Deliver(_ context.Context, recipient, subject, body string) error {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return fmt.Errorf("%w: empty recipient", ErrDelivery)
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.opts.From)
	fmt.Fprintf(&msg, "To: %s\r\n", recipient)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	msg.WriteString("\r\n")

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	var auth smtp.Auth
	if s.opts.Password != "" {
		auth = smtp.PlainAuth("", s.opts.From, s.opts.Password, s.opts.Host)
	}
	if err := s.send(addr, auth, s.opts.From, []string{recipient}, []byte(msg.String())); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return nil
}

var _ Deliverer = (*SMTP)(nil)
