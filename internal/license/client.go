package license

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rcourtman/a11ykit/pkg/licensing"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	// DefaultEndpoint receives authorization requests.
	DefaultEndpoint = "https://license.a11ykit.dev/v1/authorize"

	// DefaultTimeout bounds a single authorization request.
	DefaultTimeout = 10 * time.Second

	defaultUserAgent = "a11ykit-license-client"
	maxResponseBytes = 64 << 10
)

// ClientConfig configures a Client.
type ClientConfig struct {
	Endpoint string
	Timeout  time.Duration
	// ProductID switches to the lighter request body when no package info is
	// supplied.
	ProductID  string
	UserAgent  string
	HTTPClient *http.Client
	// Limiter throttles outgoing requests. Nil disables throttling.
	Limiter *rate.Limiter
	Metrics *Metrics
	Now     func() time.Time
}

// Client performs the remote entitlement check.
type Client struct {
	endpoint   string
	timeout    time.Duration
	productID  string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *Metrics
	now        func() time.Time
}

// NewClient creates a Client, filling unset fields with defaults.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		endpoint:   strings.TrimSpace(cfg.Endpoint),
		timeout:    cfg.Timeout,
		productID:  strings.TrimSpace(cfg.ProductID),
		userAgent:  cfg.UserAgent,
		httpClient: cfg.HTTPClient,
		limiter:    cfg.Limiter,
		metrics:    cfg.Metrics,
		now:        cfg.Now,
	}
	if c.endpoint == "" {
		c.endpoint = DefaultEndpoint
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Endpoint returns the URL requests are posted to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type authorizeRequest struct {
	LicenseKey     string `json:"license_key"`
	Domain         string `json:"domain"`
	PackageName    string `json:"package_name,omitempty"`
	PackageVersion string `json:"package_version,omitempty"`
	Environment    string `json:"environment,omitempty"`
	Platform       string `json:"platform,omitempty"`
	ProductID      string `json:"product_id,omitempty"`
}

func (c *Client) newRequestBody(key, domain string, info licensing.PackageInfo) authorizeRequest {
	body := authorizeRequest{LicenseKey: key, Domain: domain}
	if info.Name == "" && c.productID != "" {
		body.ProductID = c.productID
		return body
	}
	body.PackageName = info.Name
	body.PackageVersion = info.Version
	body.Environment = info.Environment
	body.Platform = info.Platform
	return body
}

// Check asks the endpoint whether key is entitled on domain. It never fails:
// every transport, status or decoding problem yields a free result.
func (c *Client) Check(ctx context.Context, key, domain string, info licensing.PackageInfo) licensing.Result {
	start := time.Now()
	result, err := c.check(ctx, key, domain, info)
	if err != nil {
		c.metrics.ObserveRemote(string(err.Kind), time.Since(start))
		log.Warn().
			Err(err).
			Str("license", licensing.MaskKey(key)).
			Str("domain", domain).
			Msg("License check failed, continuing in free mode")
		return failOpen(domain, err)
	}

	outcome := "denied"
	if result.Authorized {
		outcome = "authorized"
	}
	c.metrics.ObserveRemote(outcome, time.Since(start))
	log.Debug().
		Str("license", licensing.MaskKey(key)).
		Str("domain", domain).
		Str("tier", string(result.Tier)).
		Bool("authorized", result.Authorized).
		Msg("License check completed")
	return result
}

func (c *Client) check(ctx context.Context, key, domain string, info licensing.PackageInfo) (licensing.Result, *Error) {
	const op = "check_remote"

	payload, err := json.Marshal(c.newRequestBody(key, domain, info))
	if err != nil {
		return licensing.Result{}, NewNetworkError(op, fmt.Errorf("encode request: %w", err))
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(reqCtx); err != nil {
			return licensing.Result{}, NewNetworkError(op, fmt.Errorf("rate limit: %w", err))
		}
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return licensing.Result{}, NewNetworkError(op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return licensing.Result{}, NewNetworkError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return licensing.Result{}, NewAPIError(op, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return licensing.Result{}, NewNetworkError(op, fmt.Errorf("read response: %w", err))
	}
	if len(body) > maxResponseBytes {
		return licensing.Result{}, NewNetworkError(op, fmt.Errorf("%w: response exceeds %d bytes", errMalformedResponse, maxResponseBytes))
	}

	parsed, err := parseAuthorizeResponse(body)
	if err != nil {
		return licensing.Result{}, NewNetworkError(op, err)
	}
	return mapResponse(parsed, domain, c.now()), nil
}
