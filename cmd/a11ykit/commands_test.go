package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLicenseKey = "0f8fad5b-d9cb-469f-a165-70867728950e"

type licenseServer struct {
	*httptest.Server
	calls atomic.Int32
}

func newLicenseServer(t *testing.T, body string) *licenseServer {
	t.Helper()
	ls := &licenseServer{}
	ls.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ls.calls.Add(1)
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(ls.Close)
	return ls
}

// setupEnv points the CLI at endpoint with a private file store and no
// ambient configuration.
func setupEnv(t *testing.T, endpoint string) string {
	t.Helper()
	cacheDir := t.TempDir()
	prevDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(prevDir) })
	for _, key := range []string{
		"A11YKIT_LICENSE_KEY", "A11YKIT_PAID_TIERS", "A11YKIT_PRODUCT_ID",
		"A11YKIT_LICENSE_TIMEOUT", "A11YKIT_LICENSE_CACHE_TTL", "A11YKIT_MAX_USAGE_ENTRIES",
		"A11YKIT_LICENSE_RATE_LIMIT", "A11YKIT_REDIS_ADDR", "A11YKIT_ENVIRONMENT",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("A11YKIT_LICENSE_STORE", "file")
	t.Setenv("A11YKIT_LICENSE_CACHE_DIR", cacheDir)
	t.Setenv("A11YKIT_LICENSE_ENDPOINT", endpoint)
	t.Setenv("A11YKIT_LOG_LEVEL", "error")
	t.Setenv("A11YKIT_LOG_FORMAT", "json")
	return cacheDir
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "a11ykit dev")

	origBuild, origCommit := BuildTime, GitCommit
	BuildTime, GitCommit = "2026-01-01", "abc123"
	t.Cleanup(func() { BuildTime, GitCommit = origBuild, origCommit })

	out, _, err = execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Built: 2026-01-01")
	assert.Contains(t, out, "Commit: abc123")
}

func TestScanFreeModeWithoutKey(t *testing.T) {
	srv := newLicenseServer(t, `{"valid":true,"domain_match":true,"tier":"pro"}`)
	setupEnv(t, srv.URL)

	out, errOut, err := execute(t, "scan", "https://example.com", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, errOut, "No license key provided - running in free mode")
	assert.Zero(t, srv.calls.Load())

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "https://example.com", report["target"])
}

func TestScanPaidFormatFallsBackWithoutEntitlement(t *testing.T) {
	srv := newLicenseServer(t, `{"valid":true,"domain_match":true,"tier":"pro"}`)
	setupEnv(t, srv.URL)

	out, errOut, err := execute(t, "scan", "example.com", "--format", "html", "--license-key", "too-short")
	require.NoError(t, err)
	assert.Contains(t, errOut, "Invalid license key format")
	assert.Contains(t, errOut, "writing a text report instead")
	assert.Contains(t, out, "Accessibility Report\n")
	assert.NotContains(t, out, "<html")
	assert.Zero(t, srv.calls.Load())
}

func TestScanPaidFormatWithProLicense(t *testing.T) {
	srv := newLicenseServer(t, `{"valid":true,"domain_match":true,"expired":false,"tier":"pro"}`)
	setupEnv(t, srv.URL)
	t.Setenv("A11YKIT_LICENSE_KEY", testLicenseKey)

	out, errOut, err := execute(t, "scan", "https://Example.com/pricing", "--format", "csv")
	require.NoError(t, err)
	assert.Contains(t, errOut, "Pro license active for example.com")
	assert.True(t, strings.HasPrefix(out, "# a11ykit Accessibility Report"))

	// second run is served from the persisted cache
	out, errOut, err = execute(t, "scan", "https://example.com", "--format", "html")
	require.NoError(t, err)
	assert.Contains(t, errOut, "(cached)")
	assert.Contains(t, out, "<!DOCTYPE html>")
	assert.Equal(t, int32(1), srv.calls.Load())
}

func TestScanSurvivesUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()
	setupEnv(t, endpoint)

	out, errOut, err := execute(t, "scan", "example.com", "--license-key", testLicenseKey, "--format", "csv")
	require.NoError(t, err)
	assert.Contains(t, errOut, "License server unreachable")
	assert.Contains(t, out, "Findings:")
}

func TestScanSurvivesUnreachableRedisStore(t *testing.T) {
	srv := newLicenseServer(t, `{"valid":true,"domain_match":true,"tier":"pro"}`)
	setupEnv(t, srv.URL)
	t.Setenv("A11YKIT_LICENSE_STORE", "redis")
	t.Setenv("A11YKIT_REDIS_ADDR", "127.0.0.1:1")
	t.Setenv("A11YKIT_LOG_LEVEL", "warn")

	out, errOut, err := execute(t, "scan", "https://example.com", "--license-key", testLicenseKey, "--format", "csv")
	require.NoError(t, err)
	assert.Contains(t, errOut, "License store unavailable")
	assert.Contains(t, errOut, "Pro license active for example.com")
	assert.True(t, strings.HasPrefix(out, "# a11ykit Accessibility Report"))
	assert.Equal(t, int32(1), srv.calls.Load())

	out, _, err = execute(t, "license", "status", "--license-key", testLicenseKey, "--domain", "example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Pro license active")

	out, _, err = execute(t, "license", "clear-cache")
	require.NoError(t, err)
	assert.Contains(t, out, "License cache cleared")
}

func TestScanWritesReportAndMetrics(t *testing.T) {
	srv := newLicenseServer(t, `{"valid":true,"domain_match":true,"tier":"enterprise"}`)
	setupEnv(t, srv.URL)
	outDir := filepath.Join(t.TempDir(), "reports")
	metricsPath := filepath.Join(t.TempDir(), "license.prom")

	out, _, err := execute(t, "scan", "example.com",
		"--license-key", testLicenseKey,
		"--format", "yaml",
		"--output-dir", outDir,
		"--metrics-textfile", metricsPath,
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Report written to")

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".yaml"))

	metrics, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `a11ykit_license_checks_total{outcome="authorized"} 1`)
}

func TestScanRejectsUnknownFormat(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")
	_, _, err := execute(t, "scan", "example.com", "--format", "pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported report format")
}

func TestLicenseStatusJSONAndUsage(t *testing.T) {
	srv := newLicenseServer(t, `{"valid":true,"domain_match":true,"tier":"pro","expires_at":"2099-01-01"}`)
	setupEnv(t, srv.URL)

	out, _, err := execute(t, "license", "status", "--license-key", testLicenseKey, "--domain", "example.com", "--json", "--usage")
	require.NoError(t, err)

	var status struct {
		Result struct {
			Tier       string `json:"tier"`
			Authorized bool   `json:"authorized"`
		} `json:"result"`
		Paid    bool `json:"paid_features"`
		License *struct {
			Perpetual bool `json:"perpetual"`
		} `json:"license"`
		Usage *struct {
			Uses []any `json:"uses"`
		} `json:"usage"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, "pro", status.Result.Tier)
	assert.True(t, status.Result.Authorized)
	assert.True(t, status.Paid)
	require.NotNil(t, status.License)
	assert.False(t, status.License.Perpetual)
	require.NotNil(t, status.Usage)
	assert.Len(t, status.Usage.Uses, 1)
}

func TestLicenseStatusHonoursPaidTiers(t *testing.T) {
	srv := newLicenseServer(t, `{"valid":true,"domain_match":true,"tier":"pro"}`)
	setupEnv(t, srv.URL)
	t.Setenv("A11YKIT_PAID_TIERS", "enterprise")

	out, _, err := execute(t, "license", "status", "--license-key", testLicenseKey, "--domain", "example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Pro license active - paid features not included")
	assert.Contains(t, out, "Paid features: false")
}

func TestLicenseClearCache(t *testing.T) {
	srv := newLicenseServer(t, `{"valid":true,"domain_match":true,"tier":"pro"}`)
	cacheDir := setupEnv(t, srv.URL)

	_, _, err := execute(t, "license", "status", "--license-key", testLicenseKey, "--domain", "example.com")
	require.NoError(t, err)

	out, _, err := execute(t, "license", "clear-cache")
	require.NoError(t, err)
	assert.Contains(t, out, "License cache cleared")

	raw, err := os.ReadFile(filepath.Join(cacheDir, "license_cache.json"))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(raw))

	out, _, err = execute(t, "license", "status", "--license-key", testLicenseKey, "--domain", "example.com")
	require.NoError(t, err)
	assert.NotContains(t, out, "(cached)")
	assert.Equal(t, int32(2), srv.calls.Load())
}

func TestInvalidLogLevelFlag(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")
	_, _, err := execute(t, "license", "status", "--log-level", "loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}
