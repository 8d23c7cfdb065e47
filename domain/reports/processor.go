// Package reports processes report-generation jobs: load the source data,
// render it in the requested format, upload the file and persist the
// report metadata. Generators and the uploader are narrow interfaces so
// production deployments can swap in real document rendering and object
// storage.
package reports

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fabworks-io/fabworks/internal/jobs"
	"github.com/fabworks-io/fabworks/internal/queue"
	"github.com/fabworks-io/fabworks/pkg/logger"
)

const (
	errCode           = "REPORT_GENERATION_FAILED"
	presignedURLExpiry = time.Hour
)

// Payload is the job payload for a report-generation job.
type Payload struct {
	ReportType string
	EntityID   string
	Format     string
	Options    map[string]any
	TenantID   string
}

func decodePayload(data map[string]any) (Payload, error) {
	p := Payload{TenantID: jobs.TenantIDOf(data)}
	p.ReportType, _ = data["reportType"].(string)
	p.EntityID, _ = data["entityId"].(string)
	p.Format, _ = data["format"].(string)
	p.Options, _ = data["options"].(map[string]any)

	if p.ReportType == "" || p.EntityID == "" {
		return p, fmt.Errorf("payload is missing reportType or entityId")
	}
	if !validReportType(p.ReportType) {
		return p, fmt.Errorf("unknown report type %q", p.ReportType)
	}
	return p, nil
}

// Generated is the result payload of a report-generation job.
type Generated struct {
	ReportID    string    `json:"reportId"`
	ReportType  string    `json:"reportType"`
	Format      string    `json:"format"`
	FileURL     string    `json:"fileUrl"`
	FileName    string    `json:"fileName"`
	FileSize    int64     `json:"fileSize"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Processor handles report-generation jobs.
type Processor struct {
	loader     Loader
	generators *GeneratorSet
	uploader   Uploader
	store      MetadataStore
	log        *slog.Logger
}

func NewProcessor(loader Loader, uploader Uploader, store MetadataStore, log *slog.Logger) *Processor {
	return &Processor{
		loader:     loader,
		generators: NewGeneratorSet(),
		uploader:   uploader,
		store:      store,
		log:        log.With(logger.Scope("reports")),
	}
}

func (p *Processor) Type() jobs.Type { return jobs.TypeReportGeneration }

func (p *Processor) Process(ctx context.Context, job queue.Job) (jobs.Result, error) {
	started := time.Now()

	payload, err := decodePayload(job.Data())
	if err != nil {
		return jobs.Fail(errCode, err.Error(), nil, started), nil
	}

	p.log.Info("starting report generation",
		slog.String("job_id", job.ID()),
		slog.String("report_type", payload.ReportType),
		slog.String("entity_id", payload.EntityID),
		slog.String("format", payload.Format),
		slog.String("tenant_id", payload.TenantID))

	jobs.Report(ctx, job, 10, "Loading report data", "loading-data")
	data, err := p.loader.LoadReportData(ctx, payload.ReportType, payload.EntityID, payload.TenantID)
	if err != nil {
		return jobs.Result{}, fmt.Errorf("load report data: %w", err)
	}

	jobs.Report(ctx, job, 30, "Creating report document", "generating")
	doc, err := p.generators.Generate(payload.Format, payload.ReportType, data, payload.Options)
	if err != nil {
		// unsupported format or unrenderable data, retrying will not help
		return jobs.Fail(errCode, err.Error(), nil, started), nil
	}

	jobs.Report(ctx, job, 70, "Uploading report to storage", "uploading")
	upload, err := p.uploader.UploadReport(ctx, doc, payload.TenantID, payload.ReportType, payload.EntityID)
	if err != nil {
		return jobs.Result{}, fmt.Errorf("upload report: %w", err)
	}

	jobs.Report(ctx, job, 85, "Saving report metadata", "saving-metadata")
	reportID, err := p.store.SaveReport(ctx, ReportRecord{
		TenantID:    payload.TenantID,
		Type:        payload.ReportType,
		EntityID:    payload.EntityID,
		FileName:    upload.FileName,
		FileURL:     upload.FileURL,
		FileSize:    upload.FileSize,
		ContentType: upload.ContentType,
		Options:     payload.Options,
		GeneratedAt: time.Now(),
	})
	if err != nil {
		return jobs.Result{}, fmt.Errorf("save report metadata: %w", err)
	}

	jobs.Report(ctx, job, 95, "Finalizing report", "finalizing")
	downloadURL, err := p.uploader.PresignedURL(ctx, upload.FileURL, presignedURLExpiry)
	if err != nil {
		return jobs.Result{}, fmt.Errorf("presign report url: %w", err)
	}

	jobs.Report(ctx, job, 100, "Report generation completed", "done")

	return jobs.Succeed(Generated{
		ReportID:    reportID,
		ReportType:  payload.ReportType,
		Format:      payload.Format,
		FileURL:     downloadURL,
		FileName:    upload.FileName,
		FileSize:    upload.FileSize,
		GeneratedAt: time.Now(),
	}, started), nil
}
