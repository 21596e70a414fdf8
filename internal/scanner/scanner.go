// Package scanner produces the accessibility findings reported by the CLI.
// It does not evaluate pages: every scan yields the same fixed set of sample
// findings, stamped with the target and scan time.
package scanner

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Severity ranks a finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeveritySerious  Severity = "serious"
	SeverityModerate Severity = "moderate"
	SeverityMinor    Severity = "minor"
)

// Issue is one accessibility finding.
type Issue struct {
	Rule     string   `json:"rule" yaml:"rule"`
	WCAG     string   `json:"wcag" yaml:"wcag"`
	Severity Severity `json:"severity" yaml:"severity"`
	Selector string   `json:"selector" yaml:"selector"`
	Message  string   `json:"message" yaml:"message"`
	Help     string   `json:"help" yaml:"help"`
}

// Result is the outcome of one scan.
type Result struct {
	ID        string    `json:"id" yaml:"id"`
	Target    string    `json:"target" yaml:"target"`
	ScannedAt time.Time `json:"scanned_at" yaml:"scanned_at"`
	Issues    []Issue   `json:"issues" yaml:"issues"`
}

// ErrEmptyTarget is returned when Scan is called without a target.
var ErrEmptyTarget = errors.New("scan target cannot be empty")

var sampleIssues = []Issue{
	{
		Rule:     "image-alt",
		WCAG:     "1.1.1",
		Severity: SeverityCritical,
		Selector: "img.hero",
		Message:  "Image has no alternative text",
		Help:     "Add an alt attribute describing the image, or alt=\"\" if it is decorative",
	},
	{
		Rule:     "color-contrast",
		WCAG:     "1.4.3",
		Severity: SeveritySerious,
		Selector: "footer p.legal",
		Message:  "Text contrast ratio is 3.1:1, below the 4.5:1 minimum",
		Help:     "Darken the text or lighten the background",
	},
	{
		Rule:     "label",
		WCAG:     "3.3.2",
		Severity: SeveritySerious,
		Selector: "form#newsletter input[type=email]",
		Message:  "Form field has no associated label",
		Help:     "Associate a <label> element or set aria-label",
	},
	{
		Rule:     "html-has-lang",
		WCAG:     "3.1.1",
		Severity: SeverityModerate,
		Selector: "html",
		Message:  "Document has no lang attribute",
		Help:     "Set lang on the html element, e.g. lang=\"en\"",
	},
	{
		Rule:     "link-name",
		WCAG:     "2.4.4",
		Severity: SeverityMinor,
		Selector: "nav a.icon-only",
		Message:  "Link has no discernible text",
		Help:     "Give the link visible text or an aria-label",
	},
}

// Scanner runs scans.
type Scanner struct {
	now func() time.Time
}

// New creates a Scanner.
func New() *Scanner {
	return &Scanner{now: time.Now}
}

// Scan returns the findings for target.
func (s *Scanner) Scan(ctx context.Context, target string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, ErrEmptyTarget
	}

	issues := make([]Issue, len(sampleIssues))
	copy(issues, sampleIssues)

	return &Result{
		ID:        uuid.NewString(),
		Target:    target,
		ScannedAt: s.now().UTC(),
		Issues:    issues,
	}, nil
}

// CountBySeverity tallies r's issues per severity.
func (r *Result) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int)
	for _, issue := range r.Issues {
		counts[issue.Severity]++
	}
	return counts
}
