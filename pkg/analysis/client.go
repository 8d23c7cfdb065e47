// Package analysis provides an HTTP client for the geometry analysis worker
// service.
//
// The worker service parses CAD files (STL, STEP, IGES, DXF and friends) and
// returns geometry measurements, DFM findings and feature detection. Callers
// fall back to a basic local analysis when the service is disabled or
// unreachable.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-resty/resty/v2"
	"go.uber.org/fx"

	"github.com/fabworks-io/fabworks/internal/config"
	"github.com/fabworks-io/fabworks/pkg/logger"
)

// Module provides the analysis client as an fx module
var Module = fx.Module("analysis",
	fx.Provide(NewClient),
)

// Client is an HTTP client for the analysis worker service
type Client struct {
	rc      *resty.Client
	enabled bool
	log     *slog.Logger
}

// NewClient creates a new analysis client
func NewClient(cfg *config.Config, log *slog.Logger) *Client {
	rc := resty.New().
		SetBaseURL(cfg.Analysis.URL).
		SetTimeout(cfg.Analysis.Timeout)

	return &Client{
		rc:      rc,
		enabled: cfg.Analysis.Enabled,
		log:     log.With(logger.Scope("analysis")),
	}
}

// IsEnabled returns true if the analysis service is enabled
func (c *Client) IsEnabled() bool {
	return c.enabled
}

// BoundingBox is the axis-aligned extent of a part in millimeters
type BoundingBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Geometry holds the measured geometry of an analyzed file
type Geometry struct {
	Volume        *float64     `json:"volume,omitempty"`
	SurfaceArea   *float64     `json:"surfaceArea,omitempty"`
	BoundingBox   *BoundingBox `json:"boundingBox,omitempty"`
	PartCount     int          `json:"partCount,omitempty"`
	TriangleCount int          `json:"triangleCount,omitempty"`
}

// DFMIssue is one design-for-manufacturability finding
type DFMIssue struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Location    any    `json:"location,omitempty"`
}

// DFM holds the manufacturability assessment of an analyzed file
type DFM struct {
	Issues         []DFMIssue `json:"issues"`
	Score          int        `json:"score"`
	Manufacturable bool       `json:"manufacturable"`
}

// Features holds detected part features
type Features struct {
	HasUndercuts     bool   `json:"hasUndercuts"`
	HasThinWalls     bool   `json:"hasThinWalls"`
	HasSmallFeatures bool   `json:"hasSmallFeatures"`
	Complexity       string `json:"complexity"`
}

// Response is the analysis service's reply for one file
type Response struct {
	Geometry       Geometry  `json:"geometry"`
	DFM            *DFM      `json:"dfm_analysis,omitempty"`
	Features       *Features `json:"features,omitempty"`
	ProcessingTime float64   `json:"processing_time,omitempty"`
}

// Analyze submits a file to the worker service and returns its analysis.
func (c *Client) Analyze(ctx context.Context, fileName string, content []byte, options map[string]any) (*Response, error) {
	if !c.enabled {
		return nil, fmt.Errorf("analysis service is disabled")
	}

	result := &Response{}
	resp, err := c.rc.R().
		SetContext(ctx).
		SetFileReader("file", fileName, bytes.NewReader(content)).
		SetMultipartFormData(map[string]string{
			"options": encodeOptions(options),
		}).
		SetResult(result).
		Post("/api/v1/analyze")
	if err != nil {
		return nil, fmt.Errorf("analysis request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("analysis service returned %s", resp.Status())
	}

	c.log.Debug("file analyzed",
		slog.String("file_name", fileName),
		slog.Int("status", resp.StatusCode()),
		slog.Float64("processing_time", result.ProcessingTime))

	return result, nil
}

func encodeOptions(options map[string]any) string {
	if len(options) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(options)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
