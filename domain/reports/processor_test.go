package reports

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabworks-io/fabworks/internal/jobs"
	"github.com/fabworks-io/fabworks/internal/queue"
	"github.com/fabworks-io/fabworks/pkg/logger"
)

func newTestJob(t *testing.T, data map[string]any) queue.Job {
	t.Helper()
	q := queue.NewMemoryQueue("report-generation")
	t.Cleanup(func() { _ = q.Close() })
	job, err := q.Add(context.Background(), "report-generation", data, queue.Options{})
	require.NoError(t, err)
	return job
}

func reportPayload(format string) map[string]any {
	return map[string]any{
		"reportType": ReportQuote,
		"entityId":   "q-1",
		"format":     format,
		"tenantId":   "tenant-a",
	}
}

func seededLoader() *MemoryLoader {
	loader := NewMemoryLoader()
	loader.Put(ReportQuote, "q-1", "tenant-a", map[string]any{
		"quoteNumber": "Q-1001",
		"total":       1234.56,
		"currency":    "MXN",
	})
	return loader
}

func TestProcess_GeneratesUploadsAndSaves(t *testing.T) {
	ctx := context.Background()
	uploader := NewMemoryUploader()
	store := NewMemoryMetadataStore()
	proc := NewProcessor(seededLoader(), uploader, store, logger.NewLogger())

	job := newTestJob(t, reportPayload(FormatPDF))
	res, err := proc.Process(ctx, job)
	require.NoError(t, err)
	require.True(t, res.Success)

	got, ok := res.Data.(Generated)
	require.True(t, ok)
	assert.NotEmpty(t, got.ReportID)
	assert.Equal(t, ReportQuote, got.ReportType)
	assert.Equal(t, FormatPDF, got.Format)
	assert.True(t, strings.HasSuffix(got.FileName, ".pdf"))
	assert.Contains(t, got.FileURL, "expires=")
	assert.Greater(t, got.FileSize, int64(0))

	record, ok := store.Get(got.ReportID)
	require.True(t, ok)
	assert.Equal(t, "tenant-a", record.TenantID)
	assert.Equal(t, ReportQuote, record.Type)
	assert.Equal(t, "q-1", record.EntityID)
	assert.Equal(t, "application/pdf", record.ContentType)

	assert.Equal(t, 1, uploader.Len())

	progress, err := job.Progress(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, progress.Percentage)
	assert.Equal(t, "done", progress.Step)
}

func TestProcess_CSVFormat(t *testing.T) {
	uploader := NewMemoryUploader()
	proc := NewProcessor(seededLoader(), uploader, NewMemoryMetadataStore(), logger.NewLogger())

	res, err := proc.Process(context.Background(), newTestJob(t, reportPayload(FormatCSV)))
	require.NoError(t, err)
	require.True(t, res.Success)

	got := res.Data.(Generated)
	assert.True(t, strings.HasSuffix(got.FileName, ".csv"))
}

func TestProcess_UnsupportedFormatIsBusinessFailure(t *testing.T) {
	proc := NewProcessor(seededLoader(), NewMemoryUploader(), NewMemoryMetadataStore(), logger.NewLogger())

	res, err := proc.Process(context.Background(), newTestJob(t, reportPayload("docx")))
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, "REPORT_GENERATION_FAILED", res.Error.Code)
	assert.Contains(t, res.Error.Message, "unsupported report format")
}

func TestProcess_UnknownReportTypeIsBusinessFailure(t *testing.T) {
	proc := NewProcessor(seededLoader(), NewMemoryUploader(), NewMemoryMetadataStore(), logger.NewLogger())

	payload := reportPayload(FormatPDF)
	payload["reportType"] = "payroll"

	res, err := proc.Process(context.Background(), newTestJob(t, payload))
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Contains(t, res.Error.Message, "unknown report type")
}

func TestProcess_MissingDataIsRetryable(t *testing.T) {
	proc := NewProcessor(NewMemoryLoader(), NewMemoryUploader(), NewMemoryMetadataStore(), logger.NewLogger())

	_, err := proc.Process(context.Background(), newTestJob(t, reportPayload(FormatPDF)))
	require.Error(t, err)
}

type failingUploader struct{}

func (u *failingUploader) UploadReport(ctx context.Context, doc *Document, tenantID, reportType, entityID string) (*UploadResult, error) {
	return nil, errors.New("storage unavailable")
}

func (u *failingUploader) PresignedURL(ctx context.Context, fileURL string, expiry time.Duration) (string, error) {
	return "", errors.New("storage unavailable")
}

func TestProcess_UploadFailureIsRetryable(t *testing.T) {
	proc := NewProcessor(seededLoader(), &failingUploader{}, NewMemoryMetadataStore(), logger.NewLogger())

	_, err := proc.Process(context.Background(), newTestJob(t, reportPayload(FormatPDF)))
	require.Error(t, err)
}

func TestProcessorType(t *testing.T) {
	proc := NewProcessor(NewMemoryLoader(), NewMemoryUploader(), NewMemoryMetadataStore(), logger.NewLogger())
	assert.Equal(t, jobs.TypeReportGeneration, proc.Type())
}

func TestGeneratorSet_CSVContent(t *testing.T) {
	set := NewGeneratorSet()
	doc, err := set.Generate(FormatCSV, ReportQuote, map[string]any{
		"b": 2,
		"a": "one",
	}, nil)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(doc.Content)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "a,b", lines[0])
	assert.Equal(t, "one,2", lines[1])
	assert.Equal(t, "text/csv", doc.ContentType)
}

func TestGeneratorSet_PDFHasHeader(t *testing.T) {
	set := NewGeneratorSet()
	doc, err := set.Generate(FormatPDF, ReportOrder, map[string]any{"orderNumber": "O-1"}, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(doc.Content), "%PDF-1.4"))
	assert.True(t, strings.HasSuffix(doc.FileName, ".pdf"))
}

func TestValidReportType(t *testing.T) {
	assert.True(t, validReportType(ReportQuote))
	assert.True(t, validReportType(ReportOrder))
	assert.True(t, validReportType(ReportAnalytics))
	assert.False(t, validReportType("payroll"))
}
