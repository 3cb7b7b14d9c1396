package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/phrazzld/tasktrail-api/internal/config"
	"github.com/wneessen/go-mail"
)

// Email is a plain-text message to a single recipient.
type Email struct {
	To      string
	Subject string
	Body    string
}

// EmailSender delivers emails.
type EmailSender interface {
	Send(ctx context.Context, email Email) error
}

// Address errors returned by senders.
var (
	ErrNoRecipient      = errors.New("email has no recipient")
	ErrInvalidRecipient = errors.New("invalid email recipient")
)

// NewSender returns an SMTPSender when cfg has a host, and a LogSender otherwise.
func NewSender(cfg config.SMTPConfig, logger *slog.Logger) (EmailSender, error) {
	if cfg.Host == "" {
		return NewLogSender(logger), nil
	}
	return NewSMTPSender(cfg)
}

// SMTPSender sends email through an SMTP relay, upgrading to TLS when the
// relay offers STARTTLS.
type SMTPSender struct {
	host string
	from string
	send func(ctx context.Context, msg *mail.Msg) error
}

// NewSMTPSender creates a sender for cfg. PLAIN auth is used when a
// username is configured.
func NewSMTPSender(cfg config.SMTPConfig) (*SMTPSender, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password))
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}
	return &SMTPSender{
		host: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		from: cfg.From,
		send: func(ctx context.Context, msg *mail.Msg) error {
			return client.DialAndSendWithContext(ctx, msg)
		},
	}, nil
}

// Send implements EmailSender.
func (s *SMTPSender) Send(ctx context.Context, email Email) error {
	if email.To == "" {
		return ErrNoRecipient
	}
	msg, err := s.message(email)
	if err != nil {
		return err
	}
	if err := s.send(ctx, msg); err != nil {
		return fmt.Errorf("send email to %s via %s: %w", email.To, s.host, err)
	}
	return nil
}

// message builds a UTF-8 plain-text message. Headers are encoded by go-mail;
// addresses are parsed, so a malformed recipient is rejected.
func (s *SMTPSender) message(email Email) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", s.from, err)
	}
	if err := msg.To(email.To); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidRecipient, email.To, err)
	}
	msg.Subject(sanitizeHeader(email.Subject))
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, email.Body)
	return msg, nil
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

// LogSender writes emails to the log instead of sending them.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With("component", "log_email_sender")}
}

// Send implements EmailSender.
func (s *LogSender) Send(ctx context.Context, email Email) error {
	if email.To == "" {
		return ErrNoRecipient
	}
	s.logger.InfoContext(ctx, "email",
		"to", email.To,
		"subject", email.Subject,
		"body", email.Body)
	return nil
}
