package reporting

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"
)

// CSVGenerator handles CSV report generation.
type CSVGenerator struct{}

// NewCSVGenerator creates a new CSV generator.
func NewCSVGenerator() *CSVGenerator {
	return &CSVGenerator{}
}

// Generate creates a CSV report from the provided data.
func (g *CSVGenerator) Generate(data *ReportData) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := g.writeHeader(w, data); err != nil {
		return nil, fmt.Errorf("write CSV header section: %w", err)
	}
	if err := g.writeSummary(w, data); err != nil {
		return nil, fmt.Errorf("write CSV summary section: %w", err)
	}
	if err := g.writeFindings(w, data); err != nil {
		return nil, fmt.Errorf("write CSV findings section: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("CSV write error: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *CSVGenerator) writeHeader(w *csv.Writer, data *ReportData) error {
	headers := [][]string{
		{"# a11ykit Accessibility Report"},
		{"# Title:", data.Title},
		{"# Target:", data.Target},
		{"# Scan ID:", data.ScanID},
		{"# Scanned:", data.ScannedAt.Format(time.RFC3339)},
		{"# Generated:", data.GeneratedAt.Format(time.RFC3339)},
		{"# License:", data.License.Status},
		{"# Total Findings:", strconv.Itoa(len(data.Findings))},
		{""},
	}
	for _, row := range headers {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write header row %q: %w", row[0], err)
		}
	}
	return nil
}

func (g *CSVGenerator) writeSummary(w *csv.Writer, data *ReportData) error {
	if err := w.Write([]string{"# SUMMARY"}); err != nil {
		return fmt.Errorf("write summary section heading: %w", err)
	}
	if err := w.Write([]string{"Severity", "Count"}); err != nil {
		return fmt.Errorf("write summary column headers: %w", err)
	}
	for _, row := range data.SeveritySummary() {
		if err := w.Write([]string{row.Severity, strconv.Itoa(row.Count)}); err != nil {
			return fmt.Errorf("write summary row for severity %q: %w", row.Severity, err)
		}
	}
	if err := w.Write([]string{""}); err != nil {
		return fmt.Errorf("write summary separator row: %w", err)
	}
	return nil
}

func (g *CSVGenerator) writeFindings(w *csv.Writer, data *ReportData) error {
	if err := w.Write([]string{"# FINDINGS"}); err != nil {
		return fmt.Errorf("write findings section heading: %w", err)
	}
	if err := w.Write([]string{"Rule", "WCAG", "Severity", "Selector", "Message", "Help"}); err != nil {
		return fmt.Errorf("write findings column headers: %w", err)
	}
	for _, f := range data.Findings {
		row := []string{f.Rule, f.WCAG, f.Severity, f.Selector, f.Message, f.Help}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write finding row for rule %q: %w", f.Rule, err)
		}
	}
	return nil
}
