package licensing

import "strings"

// NormalizeDomain canonicalizes a hostname or URL into a comparable domain:
// lower-cased, without scheme, leading slashes, path or query. It returns ""
// for empty input. Ports and IDNs are left untouched.
func NormalizeDomain(raw string) string {
	domain := strings.ToLower(strings.TrimSpace(raw))
	if domain == "" {
		return ""
	}

	switch {
	case strings.HasPrefix(domain, "https://"):
		domain = strings.TrimPrefix(domain, "https://")
	case strings.HasPrefix(domain, "http://"):
		domain = strings.TrimPrefix(domain, "http://")
	}

	domain = strings.TrimLeft(domain, "/")
	if idx := strings.IndexByte(domain, '/'); idx >= 0 {
		domain = domain[:idx]
	}
	return strings.TrimSpace(domain)
}
