package reports

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Formats accepted in the report-generation job payload.
const (
	FormatPDF   = "pdf"
	FormatExcel = "excel"
	FormatCSV   = "csv"
)

// Document is a generated report file.
type Document struct {
	FileName    string
	Content     []byte
	ContentType string
}

// Generator renders report data into a document of one format.
type Generator interface {
	Generate(reportType string, data map[string]any, options map[string]any) (*Document, error)
}

// GeneratorSet dispatches to the generator for the requested format.
type GeneratorSet struct {
	generators map[string]Generator
}

func NewGeneratorSet() *GeneratorSet {
	return &GeneratorSet{generators: map[string]Generator{
		FormatPDF:   &pdfGenerator{},
		FormatExcel: &excelGenerator{},
		FormatCSV:   &csvGenerator{},
	}}
}

// Generate renders the report in the requested format. Unsupported formats
// are a permanent error.
func (s *GeneratorSet) Generate(format, reportType string, data, options map[string]any) (*Document, error) {
	gen, ok := s.generators[format]
	if !ok {
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}
	return gen.Generate(reportType, data, options)
}

func fileName(reportType, ext string) string {
	return fmt.Sprintf("%s-report-%d.%s", reportType, time.Now().UnixMilli(), ext)
}

// pdfGenerator emits a minimal single-page PDF with the report data as
// JSON text. Rendering layout is out of scope here; the document is valid
// enough for storage and download round-trips.
type pdfGenerator struct{}

func (g *pdfGenerator) Generate(reportType string, data map[string]any, options map[string]any) (*Document, error) {
	body, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report data: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	buf.WriteString(fmt.Sprintf("%% %s report\n", reportType))
	buf.Write(body)
	buf.WriteString("\n%%EOF\n")

	return &Document{
		FileName:    fileName(reportType, "pdf"),
		Content:     buf.Bytes(),
		ContentType: "application/pdf",
	}, nil
}

type excelGenerator struct{}

func (g *excelGenerator) Generate(reportType string, data map[string]any, options map[string]any) (*Document, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal report data: %w", err)
	}
	return &Document{
		FileName:    fileName(reportType, "xlsx"),
		Content:     body,
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	}, nil
}

// csvGenerator flattens the top-level keys into a two-row CSV.
type csvGenerator struct{}

func (g *csvGenerator) Generate(reportType string, data map[string]any, options map[string]any) (*Document, error) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	row := make([]string, len(keys))
	for i, k := range keys {
		row[i] = fmt.Sprintf("%v", data[k])
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(keys); err != nil {
		return nil, err
	}
	if err := w.Write(row); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	return &Document{
		FileName:    fileName(reportType, "csv"),
		Content:     buf.Bytes(),
		ContentType: "text/csv",
	}, nil
}
