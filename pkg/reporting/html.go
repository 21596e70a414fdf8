package reporting

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

const htmlReportTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Data.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem; color: #1a1a1a; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ccc; padding: 0.4rem 0.6rem; text-align: left; vertical-align: top; }
th { background: #f2f2f2; }
.sev-critical { color: #a30000; font-weight: 600; }
.sev-serious { color: #b35900; font-weight: 600; }
.sev-moderate { color: #6b5800; }
.sev-minor { color: #3d3d3d; }
</style>
</head>
<body>
<main>
<h1>{{.Data.Title}}</h1>
<dl>
<dt>Target</dt><dd>{{.Data.Target}}</dd>
<dt>Scan ID</dt><dd>{{.Data.ScanID}}</dd>
<dt>Scanned</dt><dd><time datetime="{{.ScannedAt}}">{{.ScannedAt}}</time></dd>
<dt>License</dt><dd>{{.Data.License.Status}}</dd>
</dl>
<h2>Summary</h2>
<table>
<caption>Findings by severity</caption>
<thead><tr><th scope="col">Severity</th><th scope="col">Count</th></tr></thead>
<tbody>
{{- range .Summary}}
<tr><td class="sev-{{.Severity}}">{{.Severity}}</td><td>{{.Count}}</td></tr>
{{- end}}
</tbody>
</table>
<h2>Findings ({{len .Data.Findings}})</h2>
<table>
<thead><tr><th scope="col">Rule</th><th scope="col">WCAG</th><th scope="col">Severity</th><th scope="col">Element</th><th scope="col">Issue</th><th scope="col">How to fix</th></tr></thead>
<tbody>
{{- range .Data.Findings}}
<tr><td>{{.Rule}}</td><td>{{.WCAG}}</td><td class="sev-{{.Severity}}">{{.Severity}}</td><td><code>{{.Selector}}</code></td><td>{{.Message}}</td><td>{{.Help}}</td></tr>
{{- end}}
</tbody>
</table>
<footer><p>Generated {{.GeneratedAt}} by a11ykit</p></footer>
</main>
</body>
</html>
`

// HTMLGenerator renders a standalone HTML page.
type HTMLGenerator struct {
	tmpl *template.Template
}

// NewHTMLGenerator creates a new HTML generator.
func NewHTMLGenerator() *HTMLGenerator {
	return &HTMLGenerator{tmpl: template.Must(template.New("report").Parse(htmlReportTemplate))}
}

type htmlView struct {
	Data        *ReportData
	Summary     []SeverityCount
	ScannedAt   string
	GeneratedAt string
}

// Generate creates an HTML report from the provided data.
func (g *HTMLGenerator) Generate(data *ReportData) ([]byte, error) {
	view := htmlView{
		Data:        data,
		Summary:     data.SeveritySummary(),
		ScannedAt:   data.ScannedAt.Format(time.RFC3339),
		GeneratedAt: data.GeneratedAt.Format(time.RFC3339),
	}

	var buf bytes.Buffer
	if err := g.tmpl.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("execute HTML template: %w", err)
	}
	return buf.Bytes(), nil
}
