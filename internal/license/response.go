package license

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rcourtman/a11ykit/pkg/licensing"
)

// authorizeResponse is the body returned by the authorization endpoint.
// Pointer fields distinguish "absent" from "false".
type authorizeResponse struct {
	Valid       *bool   `json:"valid"`
	DomainMatch *bool   `json:"domain_match"`
	Expired     *bool   `json:"expired"`
	Tier        string  `json:"tier"`
	ExpiresAt   *string `json:"expires_at"`
	Error       string  `json:"error"`
	Message     string  `json:"message"`

	expiresAt *time.Time
}

// parseAuthorizeResponse accepts only a JSON object with a boolean "valid"
// field and a parseable (or null) "expires_at".
func parseAuthorizeResponse(body []byte) (authorizeResponse, error) {
	var resp authorizeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return authorizeResponse{}, fmt.Errorf("%w: %v", errMalformedResponse, err)
	}
	if resp.Valid == nil {
		return authorizeResponse{}, fmt.Errorf("%w: missing \"valid\"", errMalformedResponse)
	}
	if resp.ExpiresAt != nil && strings.TrimSpace(*resp.ExpiresAt) != "" {
		ts, err := parseExpiry(*resp.ExpiresAt)
		if err != nil {
			return authorizeResponse{}, fmt.Errorf("%w: %v", errMalformedResponse, err)
		}
		resp.expiresAt = &ts
	}
	return resp, nil
}

func parseExpiry(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid expires_at %q", raw)
	}
	// A date-only expiry covers the whole day.
	return ts.Add(24*time.Hour - time.Second).UTC(), nil
}

func boolValue(b *bool) bool {
	return b != nil && *b
}

// mapResponse turns a parsed response into a decision for domain.
// Authorization requires valid, a domain match and no expiry; anything else
// is a free result carrying the reason.
func mapResponse(resp authorizeResponse, domain string, now time.Time) licensing.Result {
	expired := boolValue(resp.Expired)
	if resp.expiresAt != nil && !resp.expiresAt.After(now) {
		expired = true
	}
	domainMatch := boolValue(resp.DomainMatch)
	valid := boolValue(resp.Valid) && domainMatch && !expired

	if !valid {
		tag := strings.TrimSpace(resp.Error)
		if tag == "" {
			switch {
			case expired:
				tag = licensing.TagExpired
			case !domainMatch && boolValue(resp.Valid):
				tag = licensing.TagDomainMismatch
			default:
				tag = licensing.TagInvalid
			}
		}
		message := resp.Message
		if message == "" {
			message = licensing.StatusMessage(licensing.Result{Error: tag})
		}
		return licensing.FreeResult(domain, tag, message)
	}

	result := licensing.Result{
		Valid:      true,
		Authorized: true,
		Tier:       licensing.ParseTier(resp.Tier),
		ExpiresAt:  resp.expiresAt,
		Domain:     domain,
		Message:    resp.Message,
	}
	if result.Message == "" {
		result.Message = licensing.StatusMessage(result)
	}
	return result
}
