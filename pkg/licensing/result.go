package licensing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Error tags carried in Result.Error. They are machine oriented and stable;
// remote failures append a detail after the colon.
const (
	TagNoKey          = "No license key provided"
	TagInvalidFormat  = "INVALID_FORMAT"
	TagDomainRequired = "DOMAIN_REQUIRED"
	TagNetworkError   = "NETWORK_ERROR"
	TagAPIError       = "API_ERROR"
	TagExpired        = "LICENSE_EXPIRED"
	TagDomainMismatch = "DOMAIN_MISMATCH"
	TagInvalid        = "LICENSE_INVALID"
)

// PackageInfo identifies the software asking for authorization.
type PackageInfo struct {
	Name        string `json:"package_name"`
	Version     string `json:"package_version"`
	Environment string `json:"environment,omitempty"`
	Platform    string `json:"platform,omitempty"`
}

// Result is the entitlement decision threaded through the whole system.
//
// A result with a non-empty Error is always a free result: Tier is TierFree
// and Authorized is false.
type Result struct {
	Valid      bool       `json:"valid"`
	Authorized bool       `json:"authorized"`
	Tier       Tier       `json:"tier"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Domain     string     `json:"domain,omitempty"`
	Error      string     `json:"error,omitempty"`
	Message    string     `json:"message"`

	// FromCache is set when the result is served from a cache. It is never
	// persisted.
	FromCache bool `json:"-"`
}

// UnmarshalJSON infers Authorized from Valid for records written without an
// "authorized" field.
func (r *Result) UnmarshalJSON(data []byte) error {
	type plain Result
	var decoded struct {
		plain
		Authorized *bool `json:"authorized"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*r = Result(decoded.plain)
	if decoded.Authorized != nil {
		r.Authorized = *decoded.Authorized
	} else {
		r.Authorized = r.Valid
	}
	if r.Tier == "" {
		r.Tier = TierFree
	}
	return nil
}

// FreeResult builds a fail-open result. It never contacts the network.
func FreeResult(domain, errTag, message string) Result {
	return Result{
		Valid:      false,
		Authorized: false,
		Tier:       TierFree,
		Domain:     domain,
		Error:      errTag,
		Message:    message,
	}
}

// WellFormed reports whether r satisfies the free-on-error invariant.
func (r Result) WellFormed() bool {
	if r.Error == "" {
		return true
	}
	return r.Tier == TierFree && !r.Authorized
}

// HasPaidFeatures reports whether r unlocks paid features under the default
// paid tier set.
func HasPaidFeatures(r Result) bool {
	return DefaultPaidTiers().HasPaidFeatures(r)
}

// IsProOrHigher is an alias of HasPaidFeatures.
func IsProOrHigher(r Result) bool {
	return HasPaidFeatures(r)
}

// IsFullyAuthorized reports whether the license was verified and access was
// granted.
func IsFullyAuthorized(r Result) bool {
	return r.Authorized && r.Valid
}

// StatusMessage describes r for humans under the default paid tier set.
func StatusMessage(r Result) string {
	return DefaultPaidTiers().StatusMessage(r)
}

// Metadata returns license details for paid results, nil otherwise.
func Metadata(r Result) *LicenseMetadata {
	return DefaultPaidTiers().Metadata(r)
}

// HasPaidFeatures reports whether r is an error-free, fully authorized result
// on a tier in p.
func (p PaidTiers) HasPaidFeatures(r Result) bool {
	if r.Error != "" {
		return false
	}
	return IsFullyAuthorized(r) && p.Contains(r.Tier)
}

// IsProOrHigher is an alias of HasPaidFeatures.
func (p PaidTiers) IsProOrHigher(r Result) bool {
	return p.HasPaidFeatures(r)
}

// StatusMessage returns a human readable status that reflects which branch
// produced r.
func (p PaidTiers) StatusMessage(r Result) string {
	switch {
	case r.Error == TagNoKey:
		return "No license key provided - running in free mode"
	case strings.HasPrefix(r.Error, TagInvalidFormat):
		return "Invalid license key format - running in free mode"
	case strings.HasPrefix(r.Error, TagDomainRequired):
		return "A domain is required to validate the license - running in free mode"
	case strings.HasPrefix(r.Error, TagNetworkError):
		return "License server unreachable - running in free mode"
	case strings.HasPrefix(r.Error, TagAPIError):
		return "License server returned an error - running in free mode"
	case strings.HasPrefix(r.Error, TagExpired):
		return "License has expired - running in free mode"
	case strings.HasPrefix(r.Error, TagDomainMismatch):
		return "License is not registered for this domain - running in free mode"
	case r.Error != "":
		return fmt.Sprintf("License not valid (%s) - running in free mode", r.Error)
	}

	if !p.HasPaidFeatures(r) {
		if IsFullyAuthorized(r) {
			return fmt.Sprintf("%s license active - paid features not included", r.Tier.DisplayName())
		}
		return "License not authorized - running in free mode"
	}

	var b strings.Builder
	b.WriteString(r.Tier.DisplayName())
	b.WriteString(" license active")
	if r.Domain != "" {
		b.WriteString(" for ")
		b.WriteString(r.Domain)
	}
	if r.ExpiresAt != nil {
		b.WriteString(" until ")
		b.WriteString(r.ExpiresAt.UTC().Format("2006-01-02"))
	}
	if r.FromCache {
		b.WriteString(" (cached)")
	}
	return b.String()
}

// LicenseMetadata is the license summary shown to consumers of a paid result.
type LicenseMetadata struct {
	Tier      Tier       `json:"tier"`
	Domain    string     `json:"domain,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Perpetual bool       `json:"perpetual"`
	FromCache bool       `json:"from_cache"`
}

// Metadata returns license details when r has paid features, nil otherwise.
func (p PaidTiers) Metadata(r Result) *LicenseMetadata {
	if !p.HasPaidFeatures(r) {
		return nil
	}
	meta := &LicenseMetadata{
		Tier:      r.Tier,
		Domain:    r.Domain,
		Perpetual: r.ExpiresAt == nil,
		FromCache: r.FromCache,
	}
	if r.ExpiresAt != nil {
		exp := *r.ExpiresAt
		meta.ExpiresAt = &exp
	}
	return meta
}
