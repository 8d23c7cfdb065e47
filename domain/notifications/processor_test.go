package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabworks-io/fabworks/internal/config"
	"github.com/fabworks-io/fabworks/internal/jobs"
	"github.com/fabworks-io/fabworks/internal/queue"
	"github.com/fabworks-io/fabworks/pkg/logger"
)

type stubSender struct {
	sent []SendOptions
	res  *SendResult
	err  error
}

func (s *stubSender) Send(ctx context.Context, opts SendOptions) (*SendResult, error) {
	s.sent = append(s.sent, opts)
	if s.err != nil {
		return nil, s.err
	}
	if s.res != nil {
		return s.res, nil
	}
	return &SendResult{Success: true, MessageID: "msg-1"}, nil
}

func testTemplates(t *testing.T) *TemplateService {
	t.Helper()
	cfg := &config.Config{Email: config.EmailConfig{
		SupportEmail: "support@fabworks.io",
		WebsiteURL:   "https://app.fabworks.io",
	}}
	ts, err := NewTemplateService(cfg, logger.NewLogger())
	require.NoError(t, err)
	return ts
}

func newTestJob(t *testing.T, data map[string]any) queue.Job {
	t.Helper()
	q := queue.NewMemoryQueue("email-notification")
	t.Cleanup(func() { _ = q.Close() })
	job, err := q.Add(context.Background(), "email-notification", data, queue.Options{})
	require.NoError(t, err)
	return job
}

func quoteReadyPayload() map[string]any {
	return map[string]any{
		"type":           TemplateQuoteReady,
		"recipientEmail": "ana@example.com",
		"recipientName":  "Ana",
		"tenantId":       "tenant-a",
		"templateData": map[string]any{
			"quoteNumber": "Q-1001",
			"itemCount":   2,
			"currency":    "MXN",
			"total":       "1,234.56",
			"validUntil":  "2026-09-30",
			"quoteUrl":    "https://app.fabworks.io/quotes/Q-1001",
		},
	}
}

func TestProcess_SendsRenderedEmail(t *testing.T) {
	sender := &stubSender{}
	proc := NewProcessor(testTemplates(t), sender, logger.NewLogger())

	job := newTestJob(t, quoteReadyPayload())
	res, err := proc.Process(context.Background(), job)
	require.NoError(t, err)
	require.True(t, res.Success)

	receipt, ok := res.Data.(Receipt)
	require.True(t, ok)
	assert.Equal(t, "msg-1", receipt.MessageID)
	assert.Equal(t, "ana@example.com", receipt.Recipient)
	assert.Equal(t, TemplateQuoteReady, receipt.Template)

	require.Len(t, sender.sent, 1)
	sent := sender.sent[0]
	assert.Equal(t, "ana@example.com", sent.To)
	assert.Equal(t, "Ana", sent.ToName)
	assert.Equal(t, "Your Quote #Q-1001 is Ready!", sent.Subject)
	assert.Contains(t, sent.HTML, "Hi Ana,")
	assert.Contains(t, sent.HTML, "quote #Q-1001")
	assert.Contains(t, sent.HTML, "support@fabworks.io")
	assert.NotEmpty(t, sent.Text)

	progress, err := job.Progress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100, progress.Percentage)
}

func TestProcess_UnknownTemplateIsBusinessFailure(t *testing.T) {
	proc := NewProcessor(testTemplates(t), &stubSender{}, logger.NewLogger())

	payload := quoteReadyPayload()
	payload["type"] = "password-reset"

	res, err := proc.Process(context.Background(), newTestJob(t, payload))
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, "EMAIL_SEND_FAILED", res.Error.Code)
	assert.Contains(t, res.Error.Message, "not found")
}

func TestProcess_InvalidRecipientIsBusinessFailure(t *testing.T) {
	sender := &stubSender{}
	proc := NewProcessor(testTemplates(t), sender, logger.NewLogger())

	payload := quoteReadyPayload()
	payload["recipientEmail"] = "not-an-address"

	res, err := proc.Process(context.Background(), newTestJob(t, payload))
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, "EMAIL_SEND_FAILED", res.Error.Code)
	assert.Empty(t, sender.sent)
}

func TestProcess_TransportErrorIsRetryable(t *testing.T) {
	sender := &stubSender{err: errors.New("connection refused")}
	proc := NewProcessor(testTemplates(t), sender, logger.NewLogger())

	_, err := proc.Process(context.Background(), newTestJob(t, quoteReadyPayload()))
	require.Error(t, err)
}

func TestProcess_RejectedSendIsBusinessFailure(t *testing.T) {
	sender := &stubSender{res: &SendResult{Success: false, Error: "Email sending is disabled"}}
	proc := NewProcessor(testTemplates(t), sender, logger.NewLogger())

	res, err := proc.Process(context.Background(), newTestJob(t, quoteReadyPayload()))
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, "Email sending is disabled", res.Error.Message)
}

func TestProcessorType(t *testing.T) {
	proc := NewProcessor(testTemplates(t), &stubSender{}, logger.NewLogger())
	assert.Equal(t, jobs.TypeEmailNotification, proc.Type())
}

func TestRender_DefaultsApplied(t *testing.T) {
	ts := testTemplates(t)

	rendered, err := ts.Render(TemplateQuoteExpired, TemplateContext{
		"quoteNumber":    "Q-7",
		"expirationDate": "2026-08-01",
	})
	require.NoError(t, err)
	assert.Equal(t, "Quote #Q-7 Has Expired", rendered.Subject)
	assert.Contains(t, rendered.HTML, "Hi Customer,")
	assert.Contains(t, rendered.HTML, time.Now().Format("2006"))
	assert.Contains(t, rendered.HTML, "support@fabworks.io")
}

func TestRender_UnknownTemplate(t *testing.T) {
	_, err := testTemplates(t).Render("nope", nil)
	require.Error(t, err)
}

func TestTemplateService_ListAndHas(t *testing.T) {
	ts := testTemplates(t)
	assert.True(t, ts.HasTemplate(TemplateQuoteReady))
	assert.True(t, ts.HasTemplate(TemplateOrderShipped))
	assert.False(t, ts.HasTemplate("welcome"))
	assert.Len(t, ts.ListTemplates(), 4)
}

func TestSubjectFor_Fallback(t *testing.T) {
	assert.Equal(t, "Fabworks Notification", subjectFor("unknown", TemplateContext{}))
}

func TestLogSender_ReportsSuccess(t *testing.T) {
	res, err := NewLogSender(logger.NewLogger()).Send(context.Background(), SendOptions{
		To:      "ana@example.com",
		Subject: "hi",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.MessageID)
}

func TestNewSender_PicksTransport(t *testing.T) {
	withCreds := &config.Config{Email: config.EmailConfig{
		MailgunDomain: "mg.fabworks.io",
		MailgunAPIKey: "key-x",
	}}
	_, ok := NewSender(withCreds, logger.NewLogger()).(*MailgunSender)
	assert.True(t, ok)

	without := &config.Config{}
	_, ok = NewSender(without, logger.NewLogger()).(*LogSender)
	assert.True(t, ok)
}
