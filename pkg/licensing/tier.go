// Package licensing defines the entitlement contracts shared by the a11ykit
// CLI, the report renderers and the authorization core.
//
// Everything in this package is pure: no I/O, no clocks, no globals that
// change at runtime. Consumers receive a Result from the authorization core
// and decide which output formats to unlock with the predicates defined here.
package licensing

import (
	"fmt"
	"sort"
	"strings"
)

// Tier represents an entitlement level.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// ParseTier maps a server supplied tier name onto a known Tier.
// Unknown or empty names degrade to TierFree.
func ParseTier(raw string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(raw))) {
	case TierPro:
		return TierPro
	case TierEnterprise:
		return TierEnterprise
	default:
		return TierFree
	}
}

// DisplayName returns the human readable tier name.
func (t Tier) DisplayName() string {
	switch t {
	case TierPro:
		return "Pro"
	case TierEnterprise:
		return "Enterprise"
	default:
		return "Free"
	}
}

// PaidTiers is the set of tiers that unlock paid features.
// A nil set behaves like DefaultPaidTiers.
type PaidTiers map[Tier]struct{}

// NewPaidTiers builds a paid tier set.
func NewPaidTiers(tiers ...Tier) PaidTiers {
	set := make(PaidTiers, len(tiers))
	for _, t := range tiers {
		set[t] = struct{}{}
	}
	return set
}

// DefaultPaidTiers returns {pro, enterprise}.
func DefaultPaidTiers() PaidTiers {
	return NewPaidTiers(TierPro, TierEnterprise)
}

// ParsePaidTiers parses a comma separated tier list such as "pro,enterprise".
// An empty list yields the default set. The free tier can never be paid.
func ParsePaidTiers(raw string) (PaidTiers, error) {
	if strings.TrimSpace(raw) == "" {
		return DefaultPaidTiers(), nil
	}

	set := make(PaidTiers)
	for _, part := range strings.Split(raw, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		switch Tier(name) {
		case TierPro, TierEnterprise:
			set[Tier(name)] = struct{}{}
		case TierFree:
			return nil, fmt.Errorf("tier %q cannot be configured as paid", name)
		default:
			return nil, fmt.Errorf("unknown tier %q", name)
		}
	}
	if len(set) == 0 {
		return DefaultPaidTiers(), nil
	}
	return set, nil
}

// Contains reports whether t unlocks paid features.
func (p PaidTiers) Contains(t Tier) bool {
	if p == nil {
		p = DefaultPaidTiers()
	}
	_, ok := p[t]
	return ok
}

// String renders the set as a sorted comma separated list.
func (p PaidTiers) String() string {
	if p == nil {
		p = DefaultPaidTiers()
	}
	names := make([]string, 0, len(p))
	for t := range p {
		names = append(names, string(t))
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
