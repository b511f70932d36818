// Package mailer delivers rendered emails.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"

	"winedeals/internal/model"
)

// Transport sends one HTML message and returns its message ID. Transports
// make a single attempt; retry policy belongs to the caller.
type Transport interface {
	Send(ctx context.Context, to, subject, html string) (string, error)
}

// SMTPConfig holds the SMTP relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

type dialer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTP sends mail through an SMTP relay.
type SMTP struct {
	client  dialer
	from    string
	timeout time.Duration
}

// NewSMTP creates an SMTP transport. Authentication is enabled when a
// username is configured.
func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp: sender address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(cfg.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTP{client: client, from: cfg.From, timeout: cfg.Timeout}, nil
}

// Send implements Transport.
func (s *SMTP) Send(ctx context.Context, to, subject, html string) (string, error) {
	msg, err := newMessage(s.from, to, subject, html)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", &model.TransportError{Target: "smtp", Err: err}
	}
	return messageID(msg), nil
}

func newMessage(from, to, subject, html string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, &model.ValidationError{Field: "from", Reason: err.Error()}
	}
	if err := msg.To(to); err != nil {
		return nil, &model.ValidationError{Field: "to", Reason: err.Error()}
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, html)
	msg.SetMessageID()
	return msg, nil
}

func messageID(msg *mail.Msg) string {
	ids := msg.GetGenHeader(mail.HeaderMessageID)
	if len(ids) == 0 {
		return ""
	}
	return strings.Trim(ids[0], "<>")
}

// Log is a Transport that only logs messages. It is used when no SMTP relay
// is configured.
type Log struct {
	log *slog.Logger
}

// NewLog creates a logging transport.
func NewLog(log *slog.Logger) *Log {
	return &Log{log: log}
}

// Send implements Transport.
func (l *Log) Send(ctx context.Context, to, subject, html string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(to) == "" {
		return "", &model.ValidationError{Field: "to", Reason: "is required"}
	}
	id := uuid.NewString() + "@winedeals.local"
	l.log.Info("email not sent, no smtp relay configured",
		"to", to,
		"subject", subject,
		"bytes", len(html),
		"message_id", id,
	)
	return id, nil
}
