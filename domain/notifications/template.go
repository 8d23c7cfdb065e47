package notifications

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/aymerick/raymond"

	"github.com/fabworks-io/fabworks/internal/config"
	"github.com/fabworks-io/fabworks/pkg/logger"
)

// TemplateContext holds the data passed to a notification template.
type TemplateContext map[string]interface{}

// RenderResult is a rendered notification ready to send.
type RenderResult struct {
	Subject string
	HTML    string
	Text    string
}

// TemplateService renders notification emails from Handlebars templates.
// Templates are compiled once at construction.
type TemplateService struct {
	cfg       config.EmailConfig
	log       *slog.Logger
	templates map[string]*raymond.Template
}

func NewTemplateService(cfg *config.Config, log *slog.Logger) (*TemplateService, error) {
	ts := &TemplateService{
		cfg:       cfg.Email,
		log:       log.With(logger.Scope("notifications.templates")),
		templates: make(map[string]*raymond.Template),
	}
	for name, source := range templateSources {
		tmpl, err := raymond.Parse(source)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		ts.templates[name] = tmpl
	}
	return ts, nil
}

// HasTemplate reports whether a template is registered under name.
func (ts *TemplateService) HasTemplate(name string) bool {
	_, ok := ts.templates[name]
	return ok
}

// ListTemplates returns the registered template names.
func (ts *TemplateService) ListTemplates() []string {
	names := make([]string, 0, len(ts.templates))
	for name := range ts.templates {
		names = append(names, name)
	}
	return names
}

// Render fills the named template with ctx plus shared defaults and
// resolves the subject line. Missing context keys render as empty.
func (ts *TemplateService) Render(name string, ctx TemplateContext) (*RenderResult, error) {
	tmpl, ok := ts.templates[name]
	if !ok {
		return nil, fmt.Errorf("email template %s not found", name)
	}

	enriched := ts.enrich(ctx)
	html, err := tmpl.Exec(enriched)
	if err != nil {
		return nil, fmt.Errorf("render template %s: %w", name, err)
	}

	return &RenderResult{
		Subject: subjectFor(name, enriched),
		HTML:    html,
		Text:    plainText(name, enriched),
	}, nil
}

// enrich layers shared defaults under the caller's context. Caller keys win.
func (ts *TemplateService) enrich(ctx TemplateContext) TemplateContext {
	enriched := TemplateContext{
		"recipientName": "Customer",
		"year":          time.Now().Year(),
		"supportEmail":  ts.cfg.SupportEmail,
		"websiteUrl":    ts.cfg.WebsiteURL,
	}
	for k, v := range ctx {
		if v != nil && v != "" {
			enriched[k] = v
		}
	}
	return enriched
}

func subjectFor(name string, ctx TemplateContext) string {
	switch name {
	case TemplateQuoteReady:
		return fmt.Sprintf("Your Quote #%v is Ready!", ctx["quoteNumber"])
	case TemplateQuoteAccepted:
		return fmt.Sprintf("Order Confirmed - #%v", ctx["orderNumber"])
	case TemplateQuoteExpired:
		return fmt.Sprintf("Quote #%v Has Expired", ctx["quoteNumber"])
	case TemplateOrderShipped:
		return fmt.Sprintf("Your Order #%v Has Shipped!", ctx["orderNumber"])
	}
	return "Fabworks Notification"
}

// plainText is a minimal text alternative for clients that reject HTML.
func plainText(name string, ctx TemplateContext) string {
	switch name {
	case TemplateQuoteReady:
		return fmt.Sprintf("Hi %v, your quote #%v is ready for review. Total: %v %v.",
			ctx["recipientName"], ctx["quoteNumber"], ctx["currency"], ctx["total"])
	case TemplateQuoteAccepted:
		return fmt.Sprintf("Hi %v, your order #%v is confirmed.",
			ctx["recipientName"], ctx["orderNumber"])
	case TemplateQuoteExpired:
		return fmt.Sprintf("Hi %v, your quote #%v has expired.",
			ctx["recipientName"], ctx["quoteNumber"])
	case TemplateOrderShipped:
		return fmt.Sprintf("Hi %v, your order #%v has shipped. Tracking: %v.",
			ctx["recipientName"], ctx["orderNumber"], ctx["trackingNumber"])
	}
	return ""
}
