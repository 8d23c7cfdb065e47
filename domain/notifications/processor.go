// Package notifications processes email-notification jobs: it renders a
// Handlebars template for the notification type and hands the result to
// the configured transport. Unknown templates and invalid recipients are
// permanent failures; transport errors are retried by the queue.
package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fabworks-io/fabworks/internal/jobs"
	"github.com/fabworks-io/fabworks/internal/queue"
	"github.com/fabworks-io/fabworks/pkg/logger"
)

const errCode = "EMAIL_SEND_FAILED"

// Payload is the job payload for an email-notification job.
type Payload struct {
	Template       string
	RecipientEmail string
	RecipientName  string
	TemplateData   map[string]any
	TenantID       string
}

func decodePayload(data map[string]any) Payload {
	p := Payload{TenantID: jobs.TenantIDOf(data)}
	p.Template, _ = data["type"].(string)
	p.RecipientEmail, _ = data["recipientEmail"].(string)
	p.RecipientName, _ = data["recipientName"].(string)
	p.TemplateData, _ = data["templateData"].(map[string]any)
	return p
}

// Receipt is the result payload of a sent notification.
type Receipt struct {
	MessageID string `json:"messageId"`
	Recipient string `json:"recipient"`
	Template  string `json:"template"`
}

// Processor handles email-notification jobs.
type Processor struct {
	templates *TemplateService
	sender    Sender
	log       *slog.Logger
}

func NewProcessor(templates *TemplateService, sender Sender, log *slog.Logger) *Processor {
	return &Processor{
		templates: templates,
		sender:    sender,
		log:       log.With(logger.Scope("notifications")),
	}
}

func (p *Processor) Type() jobs.Type { return jobs.TypeEmailNotification }

func (p *Processor) Process(ctx context.Context, job queue.Job) (jobs.Result, error) {
	started := time.Now()
	payload := decodePayload(job.Data())

	p.log.Info("sending notification",
		slog.String("job_id", job.ID()),
		slog.String("template", payload.Template),
		slog.String("recipient", payload.RecipientEmail),
		slog.String("tenant_id", payload.TenantID))

	if !validRecipient(payload.RecipientEmail) {
		return jobs.Fail(errCode,
			fmt.Sprintf("Invalid recipient address %q", payload.RecipientEmail), nil, started), nil
	}
	if !p.templates.HasTemplate(payload.Template) {
		return jobs.Fail(errCode,
			fmt.Sprintf("Email template %s not found", payload.Template), nil, started), nil
	}

	jobs.Report(ctx, job, 20, "Rendering template", "rendering")

	tmplCtx := TemplateContext{
		"recipientName":  payload.RecipientName,
		"recipientEmail": payload.RecipientEmail,
	}
	for k, v := range payload.TemplateData {
		tmplCtx[k] = v
	}

	rendered, err := p.templates.Render(payload.Template, tmplCtx)
	if err != nil {
		return jobs.Fail(errCode, err.Error(), nil, started), nil
	}

	jobs.Report(ctx, job, 60, "Sending email", "sending")

	result, err := p.sender.Send(ctx, SendOptions{
		To:      payload.RecipientEmail,
		ToName:  payload.RecipientName,
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		Text:    rendered.Text,
	})
	if err != nil {
		return jobs.Result{}, fmt.Errorf("send email: %w", err)
	}
	if !result.Success {
		return jobs.Fail(errCode, result.Error, nil, started), nil
	}

	jobs.Report(ctx, job, 100, "Email sent", "done")

	return jobs.Succeed(Receipt{
		MessageID: result.MessageID,
		Recipient: payload.RecipientEmail,
		Template:  payload.Template,
	}, started), nil
}

// validRecipient is a shape check, not RFC 5322 validation. The transport
// rejects anything it deems undeliverable.
func validRecipient(addr string) bool {
	at := strings.Index(addr, "@")
	return at > 0 && at < len(addr)-1 && !strings.ContainsAny(addr, " \t\n")
}
