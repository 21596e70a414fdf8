package licensing

import (
	"regexp"

	"github.com/google/uuid"
)

const (
	// MinTokenKeyLength is the shortest accepted non-UUID license key.
	MinTokenKeyLength = 16

	canonicalUUIDLength = 36
	maskedKeyPrefixLen  = 8
)

var tokenKeyPattern = regexp.MustCompile(`^[A-Za-z0-9]{16,}$`)

// IsValidKeyFormat reports whether key has the shape of a license key: a
// canonical UUID (any case) or a token of at least MinTokenKeyLength ASCII
// alphanumerics. It says nothing about authenticity.
func IsValidKeyFormat(key string) bool {
	if key == "" {
		return false
	}
	if isCanonicalUUIDShape(key) {
		_, err := uuid.Parse(key)
		return err == nil
	}
	return tokenKeyPattern.MatchString(key)
}

// isCanonicalUUIDShape gates uuid.Parse to the 8-4-4-4-12 form. uuid.Parse
// on its own also accepts braced, urn and undashed variants.
func isCanonicalUUIDShape(key string) bool {
	if len(key) != canonicalUUIDLength {
		return false
	}
	for i := 0; i < len(key); i++ {
		dash := i == 8 || i == 13 || i == 18 || i == 23
		if dash != (key[i] == '-') {
			return false
		}
	}
	return true
}

// MaskKey hides all but the first characters of a license key for logging.
func MaskKey(key string) string {
	if len(key) <= maskedKeyPrefixLen {
		return "****"
	}
	return key[:maskedKeyPrefixLen] + "****"
}
