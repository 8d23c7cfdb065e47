// Package jobs implements the background job system: typed queues with
// tenant-scoped submission, scheduling, progress tracking, retries,
// dead-lettering and per-queue metrics.
package jobs

import (
	"time"

	"github.com/fabworks-io/fabworks/internal/queue"
)

// Type identifies a job queue. Every job type has its own queue and
// processor.
type Type string

const (
	TypeFileAnalysis      Type = "file-analysis"
	TypeQuoteCalculation  Type = "quote-calculation"
	TypeEmailNotification Type = "email-notification"
	TypeReportGeneration  Type = "report-generation"
)

// DeadLetterQueue is the holding queue for jobs that exhausted their retry
// budget.
const DeadLetterQueue = "dead-letter-queue"

// Types returns every processable job type, excluding the dead-letter queue.
func Types() []Type {
	return []Type{
		TypeFileAnalysis,
		TypeQuoteCalculation,
		TypeEmailNotification,
		TypeReportGeneration,
	}
}

// Valid reports whether t is a known job type.
func (t Type) Valid() bool {
	switch t {
	case TypeFileAnalysis, TypeQuoteCalculation, TypeEmailNotification, TypeReportGeneration:
		return true
	}
	return false
}

// Status is the caller-facing job status. It is a simplified view of the
// queue's internal state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusDelayed    Status = "delayed"
	StatusStalled    Status = "stalled"
	StatusStuck      Status = "stuck"
)

// Submission is the receipt returned when a job is accepted.
type Submission struct {
	JobID         string    `json:"jobId"`
	Type          Type      `json:"type"`
	TenantID      string    `json:"tenantId"`
	CorrelationID string    `json:"correlationId"`
	QueuedAt      time.Time `json:"queuedAt"`
}

// StatusView is the full status snapshot of one job.
type StatusView struct {
	ID           string         `json:"id"`
	Type         Type           `json:"type"`
	Status       Status         `json:"status"`
	Progress     queue.Progress `json:"progress"`
	Data         map[string]any `json:"data"`
	Result       any            `json:"result,omitempty"`
	FailedReason string         `json:"failedReason,omitempty"`
	AttemptsMade int            `json:"attemptsMade"`
	CreatedAt    time.Time      `json:"createdAt"`
	ProcessedOn  *time.Time     `json:"processedOn,omitempty"`
	FinishedOn   *time.Time     `json:"finishedOn,omitempty"`
}

// SubmitOptions are the per-submission overrides of the system defaults.
// Zero values fall back to the configured defaults.
type SubmitOptions struct {
	Attempts         int           `json:"attempts,omitempty"`
	Backoff          queue.Backoff `json:"backoff,omitempty"`
	RemoveOnComplete int           `json:"removeOnComplete,omitempty"`
	RemoveOnFail     int           `json:"removeOnFail,omitempty"`
	Priority         int           `json:"priority,omitempty"`
	Timeout          time.Duration `json:"timeout,omitempty"`
}

// Result is the uniform value every processor returns, for both business
// success and business failure. Infrastructure failures are returned as
// errors instead so the queue retries them.
type Result struct {
	Success  bool           `json:"success"`
	Data     any            `json:"data,omitempty"`
	Error    *ResultError   `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// ResultError describes a business failure inside a Result.
type ResultError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// QueueMetrics is the point-in-time health snapshot of one queue.
type QueueMetrics struct {
	Queue             Type          `json:"queue"`
	Counts            queue.Counts  `json:"counts"`
	Paused            bool          `json:"paused"`
	CompletedRate     float64       `json:"completedRate"`
	FailedRate        float64       `json:"failedRate"`
	AvgProcessingTime time.Duration `json:"avgProcessingTime"`
}

// DeadLetterRecord is the payload stored on the dead-letter queue when a job
// is moved there.
type DeadLetterRecord struct {
	OriginalJob DeadLetterJob `json:"originalJob"`
	Reason      string        `json:"reason"`
	MovedAt     time.Time     `json:"movedAt"`
}

// DeadLetterJob is the preserved snapshot of the job that was moved.
type DeadLetterJob struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Data         map[string]any `json:"data"`
	Opts         queue.Options  `json:"opts"`
	FailedReason string         `json:"failedReason,omitempty"`
	Stacktrace   []string       `json:"stacktrace,omitempty"`
	AttemptsMade int            `json:"attemptsMade"`
}

// TrackingEntry maps a job id back to its queue and tenant, so status
// lookups do not have to scan every queue.
type TrackingEntry struct {
	Type     Type   `json:"type"`
	TenantID string `json:"tenantId"`
}

// Payload field keys shared by every job type.
const (
	FieldTenantID      = "tenantId"
	FieldCorrelationID = "correlationId"
	FieldSubmittedAt   = "submittedAt"
	FieldCancelled     = "cancelled"
)

// TenantIDOf extracts the tenant id from a job payload.
func TenantIDOf(data map[string]any) string {
	s, _ := data[FieldTenantID].(string)
	return s
}

// IsCancelled reports whether a job payload carries the cooperative
// cancellation flag.
func IsCancelled(data map[string]any) bool {
	b, _ := data[FieldCancelled].(bool)
	return b
}
