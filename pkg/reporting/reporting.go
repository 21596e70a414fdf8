// Package reporting renders scan findings. Text, JSON and YAML are available
// to everyone; CSV and HTML require a license with paid features.
package reporting

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ReportFormat represents the output format of a report
type ReportFormat string

const (
	FormatText ReportFormat = "text"
	FormatJSON ReportFormat = "json"
	FormatYAML ReportFormat = "yaml"
	FormatCSV  ReportFormat = "csv"
	FormatHTML ReportFormat = "html"
)

var (
	// ErrUnsupportedFormat is returned for unknown format names.
	ErrUnsupportedFormat = errors.New("unsupported report format")
	// ErrPaidFormat is returned when a paid format is requested without
	// entitlement.
	ErrPaidFormat = errors.New("report format requires a paid license")
)

// ParseFormat resolves a format name such as "HTML" or "yml".
func ParseFormat(raw string) (ReportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "csv":
		return FormatCSV, nil
	case "html", "htm":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
	}
}

// IsPaid reports whether f needs paid features.
func (f ReportFormat) IsPaid() bool {
	return f == FormatCSV || f == FormatHTML
}

// Extension returns the file extension for f, without the dot.
func (f ReportFormat) Extension() string {
	switch f {
	case FormatText:
		return "txt"
	case FormatYAML:
		return "yaml"
	default:
		return string(f)
	}
}

// ContentType returns the MIME type for f.
func (f ReportFormat) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/yaml"
	case FormatCSV:
		return "text/csv"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Formats lists every format in display order.
func Formats() []ReportFormat {
	return []ReportFormat{FormatText, FormatJSON, FormatYAML, FormatCSV, FormatHTML}
}

// Finding is one accessibility issue in a report.
type Finding struct {
	Rule     string `json:"rule" yaml:"rule"`
	WCAG     string `json:"wcag" yaml:"wcag"`
	Severity string `json:"severity" yaml:"severity"`
	Selector string `json:"selector" yaml:"selector"`
	Message  string `json:"message" yaml:"message"`
	Help     string `json:"help" yaml:"help"`
}

// LicenseSummary describes the entitlement a report was produced under.
type LicenseSummary struct {
	Tier      string     `json:"tier" yaml:"tier"`
	Status    string     `json:"status" yaml:"status"`
	Domain    string     `json:"domain,omitempty" yaml:"domain,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

// ReportData is everything a generator needs.
type ReportData struct {
	Title       string         `json:"title" yaml:"title"`
	Target      string         `json:"target" yaml:"target"`
	ScanID      string         `json:"scan_id" yaml:"scan_id"`
	ScannedAt   time.Time      `json:"scanned_at" yaml:"scanned_at"`
	GeneratedAt time.Time      `json:"generated_at" yaml:"generated_at"`
	License     LicenseSummary `json:"license" yaml:"license"`
	Findings    []Finding      `json:"findings" yaml:"findings"`
}

// SeverityCount is one row of the severity summary.
type SeverityCount struct {
	Severity string
	Count    int
}

var severityRank = map[string]int{"critical": 0, "serious": 1, "moderate": 2, "minor": 3}

// SeveritySummary counts findings per severity, most severe first.
func (d *ReportData) SeveritySummary() []SeverityCount {
	counts := make(map[string]int)
	for _, f := range d.Findings {
		counts[f.Severity]++
	}
	out := make([]SeverityCount, 0, len(counts))
	for sev, n := range counts {
		out = append(out, SeverityCount{Severity: sev, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		ri, okI := severityRank[out[i].Severity]
		rj, okJ := severityRank[out[j].Severity]
		if okI != okJ {
			return okI
		}
		if ri != rj {
			return ri < rj
		}
		return out[i].Severity < out[j].Severity
	})
	return out
}

// Generator renders one format.
type Generator interface {
	Generate(data *ReportData) ([]byte, error)
}

// Request asks the Engine for a report.
type Request struct {
	Format ReportFormat
	Data   *ReportData
	// Paid is true when the caller's license has paid features.
	Paid bool
}

// Engine dispatches to the generator for each format and enforces the paid
// format gate.
type Engine struct {
	generators map[ReportFormat]Generator
}

// NewEngine returns an Engine with every built-in generator.
func NewEngine() *Engine {
	return &Engine{
		generators: map[ReportFormat]Generator{
			FormatText: NewTextGenerator(),
			FormatJSON: jsonGenerator{},
			FormatYAML: yamlGenerator{},
			FormatCSV:  NewCSVGenerator(),
			FormatHTML: NewHTMLGenerator(),
		},
	}
}

// Generate renders req. Paid formats fail with ErrPaidFormat unless req.Paid.
func (e *Engine) Generate(req Request) (data []byte, contentType string, err error) {
	if req.Data == nil {
		return nil, "", errors.New("report data is required")
	}
	gen, ok := e.generators[req.Format]
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, req.Format)
	}
	if req.Format.IsPaid() && !req.Paid {
		return nil, "", fmt.Errorf("%w: %s", ErrPaidFormat, req.Format)
	}

	out, err := gen.Generate(req.Data)
	if err != nil {
		return nil, "", fmt.Errorf("generate %s report: %w", req.Format, err)
	}
	return out, req.Format.ContentType(), nil
}

type jsonGenerator struct{}

func (jsonGenerator) Generate(data *ReportData) ([]byte, error) {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

type yamlGenerator struct{}

func (yamlGenerator) Generate(data *ReportData) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
