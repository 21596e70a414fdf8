package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rcourtman/a11ykit/internal/logging"
	"github.com/rcourtman/a11ykit/internal/scanner"
	"github.com/rcourtman/a11ykit/pkg/licensing"
	"github.com/rcourtman/a11ykit/pkg/reporting"
	"github.com/spf13/cobra"
)

type scanOptions struct {
	licenseKey      string
	domain          string
	format          string
	outputDir       string
	title           string
	metricsTextfile string
}

func newScanCmd(flags *globalFlags) *cobra.Command {
	opts := &scanOptions{}

	cmd := &cobra.Command{
		Use:   "scan <target>",
		Short: "Scan a site and print an accessibility report",
		Long: `Scan a site and print an accessibility report.

The license is checked once per run. CSV and HTML reports need paid features;
when they are not available the report falls back to text.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, flags, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.licenseKey, "license-key", "", "license key (defaults to A11YKIT_LICENSE_KEY)")
	cmd.Flags().StringVar(&opts.domain, "domain", "", "domain the license is checked against (defaults to the target host)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", string(reporting.FormatText), "report format: text, json, yaml, csv (paid), html (paid)")
	cmd.Flags().StringVarP(&opts.outputDir, "output-dir", "o", "", "write the report into this directory instead of stdout")
	cmd.Flags().StringVar(&opts.title, "title", "Accessibility Report", "report title")
	cmd.Flags().StringVar(&opts.metricsTextfile, "metrics-textfile", "", "write license metrics in Prometheus text format to this file")
	return cmd
}

func runScan(cmd *cobra.Command, flags *globalFlags, opts *scanOptions, target string) error {
	format, err := reporting.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(flags, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a := newApp(cfg)
	defer a.Close()

	ctx, _ := logging.WithRunID(cmd.Context(), "")
	logger := logging.FromContext(ctx)

	domain := opts.domain
	if strings.TrimSpace(domain) == "" {
		domain = target
	}
	result := a.authorize(ctx, opts.licenseKey, domain)
	paid := a.service.HasPaidFeatures(result)
	fmt.Fprintln(cmd.ErrOrStderr(), a.service.StatusMessage(result))

	if format.IsPaid() && !paid {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s reports need a Pro or Enterprise license; writing a text report instead\n", strings.ToUpper(string(format)))
		format = reporting.FormatText
	}

	scan, err := scanner.New().Scan(ctx, target)
	if err != nil {
		return fmt.Errorf("scan %s: %w", target, err)
	}
	logger.Info().
		Str("target", scan.Target).
		Int("issues", len(scan.Issues)).
		Str("tier", string(result.Tier)).
		Msg("Scan completed")

	data := buildReportData(opts.title, scan, result, a.service.StatusMessage(result))
	out, _, err := reporting.NewEngine().Generate(reporting.Request{Format: format, Data: data, Paid: paid})
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	if err := writeReport(cmd.OutOrStdout(), opts.outputDir, scan.ID, format, out); err != nil {
		return err
	}
	return a.writeMetrics(opts.metricsTextfile)
}

func buildReportData(title string, scan *scanner.Result, result licensing.Result, status string) *reporting.ReportData {
	findings := make([]reporting.Finding, 0, len(scan.Issues))
	for _, issue := range scan.Issues {
		findings = append(findings, reporting.Finding{
			Rule:     issue.Rule,
			WCAG:     issue.WCAG,
			Severity: string(issue.Severity),
			Selector: issue.Selector,
			Message:  issue.Message,
			Help:     issue.Help,
		})
	}

	return &reporting.ReportData{
		Title:       title,
		Target:      scan.Target,
		ScanID:      scan.ID,
		ScannedAt:   scan.ScannedAt,
		GeneratedAt: time.Now().UTC(),
		License: reporting.LicenseSummary{
			Tier:      string(result.Tier),
			Status:    status,
			Domain:    result.Domain,
			ExpiresAt: result.ExpiresAt,
		},
		Findings: findings,
	}
}

func writeReport(stdout io.Writer, dir, scanID string, format reporting.ReportFormat, data []byte) error {
	if dir == "" {
		_, err := stdout.Write(data)
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("a11ykit-report-%s.%s", scanID, format.Extension()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintf(stdout, "Report written to %s\n", path)
	return nil
}
