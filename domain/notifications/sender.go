package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mailgun/mailgun-go/v4"

	"github.com/fabworks-io/fabworks/internal/config"
	"github.com/fabworks-io/fabworks/pkg/logger"
)

const sendTimeout = 30 * time.Second

// Sender is the outbound email transport.
type Sender interface {
	Send(ctx context.Context, opts SendOptions) (*SendResult, error)
}

// SendOptions contains options for sending an email
type SendOptions struct {
	To      string
	ToName  string
	Subject string
	HTML    string
	Text    string
}

// SendResult contains the result of sending an email. A nil error with
// Success=false means the send failed permanently (bad address, disabled
// transport); callers should not retry.
type SendResult struct {
	Success   bool
	MessageID string
	Error     string
}

// MailgunSender sends emails via the Mailgun API.
type MailgunSender struct {
	cfg    config.EmailConfig
	log    *slog.Logger
	client *mailgun.MailgunImpl
}

func NewMailgunSender(cfg *config.Config, log *slog.Logger) *MailgunSender {
	return &MailgunSender{
		cfg:    cfg.Email,
		log:    log.With(logger.Scope("notifications.mailgun")),
		client: mailgun.NewMailgun(cfg.Email.MailgunDomain, cfg.Email.MailgunAPIKey),
	}
}

func (s *MailgunSender) Send(ctx context.Context, opts SendOptions) (*SendResult, error) {
	if !s.cfg.Enabled {
		s.log.Warn("email sending is disabled (EMAIL_ENABLED=false)")
		return &SendResult{Success: false, Error: "Email sending is disabled"}, nil
	}

	to := opts.To
	if opts.ToName != "" {
		to = fmt.Sprintf("%s <%s>", opts.ToName, opts.To)
	}
	from := fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.FromEmail)

	message := s.client.NewMessage(from, opts.Subject, opts.Text, to)
	if opts.HTML != "" {
		message.SetHtml(opts.HTML)
	}

	s.log.Debug("sending email",
		slog.String("to", opts.To),
		slog.String("subject", opts.Subject))

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	_, messageID, err := s.client.Send(sendCtx, message)
	if err != nil {
		return nil, fmt.Errorf("mailgun send: %w", err)
	}

	s.log.Info("email sent",
		slog.String("to", opts.To),
		slog.String("message_id", messageID))

	return &SendResult{Success: true, MessageID: messageID}, nil
}

// LogSender is the transport used when no Mailgun credentials are
// configured. It records the message in the log and reports success so
// local environments can run the full notification pipeline.
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log.With(logger.Scope("notifications.logsender"))}
}

func (s *LogSender) Send(ctx context.Context, opts SendOptions) (*SendResult, error) {
	s.log.Info("email send skipped (no transport configured)",
		slog.String("to", opts.To),
		slog.String("subject", opts.Subject))
	return &SendResult{
		Success:   true,
		MessageID: fmt.Sprintf("log-%d", time.Now().UnixNano()),
	}, nil
}

// NewSender picks the transport from configuration.
func NewSender(cfg *config.Config, log *slog.Logger) Sender {
	if cfg.Email.IsConfigured() {
		return NewMailgunSender(cfg, log)
	}
	return NewLogSender(log)
}
