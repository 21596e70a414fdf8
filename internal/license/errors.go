package license

import (
	"errors"
	"fmt"

	"github.com/rcourtman/a11ykit/pkg/licensing"
)

// Base errors. None of them escape Authorize; they shape the error tag
// carried by the fail-open result and the log lines around it.
var (
	ErrNoLicenseKey     = errors.New("no license key provided")
	ErrInvalidKeyFormat = errors.New("license key has an invalid format")
	ErrDomainRequired   = errors.New("a domain is required to validate the license")

	errMalformedResponse = errors.New("malformed authorization response")
)

// ErrorKind categorizes a failure of the authorization core.
type ErrorKind string

const (
	KindFormat       ErrorKind = "format"
	KindCache        ErrorKind = "cache"
	KindNetwork      ErrorKind = "network"
	KindAPI          ErrorKind = "api"
	KindMissingInput ErrorKind = "missing_input"
)

// Error is a structured failure of one authorization step.
type Error struct {
	Kind       ErrorKind
	Op         string // step that failed, e.g. "check_remote", "read_cache"
	Err        error
	StatusCode int // HTTP status for KindAPI
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the base errors by kind as well as by wrapped cause.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	switch target {
	case ErrInvalidKeyFormat:
		return e.Kind == KindFormat
	}
	return errors.Is(e.Err, target)
}

// Tag renders the error string stored in a fail-open result.
func (e *Error) Tag() string {
	switch e.Kind {
	case KindFormat:
		return licensing.TagInvalidFormat + ": " + ErrInvalidKeyFormat.Error()
	case KindNetwork:
		return licensing.TagNetworkError + ":" + causeMessage(e.Err)
	case KindAPI:
		return fmt.Sprintf("%s:%d", licensing.TagAPIError, e.StatusCode)
	case KindMissingInput:
		if errors.Is(e.Err, ErrNoLicenseKey) {
			return licensing.TagNoKey
		}
		if errors.Is(e.Err, ErrDomainRequired) {
			return licensing.TagDomainRequired + ": " + ErrDomainRequired.Error()
		}
	}
	return causeMessage(e.Err)
}

func causeMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// NewNetworkError wraps a transport level failure.
func NewNetworkError(op string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}

// NewAPIError records a non-success HTTP status.
func NewAPIError(op string, status int) *Error {
	return &Error{
		Kind:       KindAPI,
		Op:         op,
		StatusCode: status,
		Err:        fmt.Errorf("unexpected status %d", status),
	}
}

// failOpen converts a structured failure into the free result returned to
// callers.
func failOpen(domain string, err *Error) licensing.Result {
	tag := err.Tag()
	return licensing.FreeResult(domain, tag, licensing.StatusMessage(licensing.Result{Error: tag}))
}
