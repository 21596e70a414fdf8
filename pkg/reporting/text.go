package reporting

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"
)

// TextGenerator renders a plain text report for terminals.
type TextGenerator struct{}

// NewTextGenerator creates a new text generator.
func NewTextGenerator() *TextGenerator {
	return &TextGenerator{}
}

// Generate creates a text report from the provided data.
func (g *TextGenerator) Generate(data *ReportData) ([]byte, error) {
	var buf bytes.Buffer

	title := data.Title
	if title == "" {
		title = "Accessibility Report"
	}
	fmt.Fprintln(&buf, title)
	fmt.Fprintln(&buf, strings.Repeat("=", len(title)))
	fmt.Fprintf(&buf, "Target:    %s\n", data.Target)
	fmt.Fprintf(&buf, "Scanned:   %s\n", data.ScannedAt.Format(time.RFC3339))
	fmt.Fprintf(&buf, "License:   %s\n", data.License.Status)
	fmt.Fprintf(&buf, "Findings:  %d\n\n", len(data.Findings))

	if len(data.Findings) == 0 {
		fmt.Fprintln(&buf, "No accessibility issues found.")
		return buf.Bytes(), nil
	}

	for _, row := range data.SeveritySummary() {
		fmt.Fprintf(&buf, "  %-9s %d\n", row.Severity, row.Count)
	}
	fmt.Fprintln(&buf)

	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEVERITY\tRULE\tWCAG\tELEMENT\tISSUE")
	for _, f := range data.Findings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", f.Severity, f.Rule, f.WCAG, f.Selector, f.Message)
	}
	if err := tw.Flush(); err != nil {
		return nil, fmt.Errorf("flush text table: %w", err)
	}
	return buf.Bytes(), nil
}
