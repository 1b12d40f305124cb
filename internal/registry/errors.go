package registry

import (
	"errors"
	"fmt"

	"github.com/tingly-box/relayadmin/internal/store"
)

// Sentinel errors surfaced by registry operations.
var (
	// ErrNotFound indicates the referenced provider does not exist.
	ErrNotFound = store.ErrNotFound
	// ErrDuplicateName indicates a case-insensitive provider name collision.
	ErrDuplicateName = store.ErrDuplicateName
	// ErrConflictDuringProbe indicates state changed while the probe ran
	// without the store lock held. The whole add should be retried.
	ErrConflictDuringProbe = errors.New("registry: conflict during probe")
)

// ValidationError reports a malformed or incomplete provider spec. The caller
// must fix the input; retrying unchanged cannot succeed.
type ValidationError struct {
	Field  string // Offending field name.
	Reason string // Why the value was rejected.
}

// Error returns a string representation of the validation failure.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("registry: invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether the error is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ProbeError reports a failed connectivity probe. The add can be retried with
// force=true or after connectivity is fixed.
type ProbeError struct {
	Cause error // Underlying probe failure.
}

// Error returns a string representation of the probe failure.
func (e *ProbeError) Error() string {
	return fmt.Sprintf("registry: probe failed: %v", e.Cause)
}

// Unwrap returns the underlying probe failure.
func (e *ProbeError) Unwrap() error {
	return e.Cause
}

// IsProbeFailed reports whether the error is a ProbeError.
func IsProbeFailed(err error) bool {
	var pe *ProbeError
	return errors.As(err, &pe)
}
