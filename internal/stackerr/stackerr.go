// Package stackerr defines the typed error taxonomy shared by every stage
// of the toolchain installer.
//
// Every failure surfaced by the installer carries exactly one Kind so the
// CLI boundary can decide how to present it (and tests can assert on it)
// without string matching. All kinds are terminal to the current run: the
// installer never retries a failed stage.
package stackerr

import (
	"errors"
	"fmt"
)

// Kind classifies an installer failure.
type Kind int

const (
	// KindConfiguration is an unknown version, unresolved platform, or a
	// missing pinned checksum or URL in the version manifest.
	KindConfiguration Kind = iota
	// KindNetwork is a download or remote-metadata failure, including
	// rate limiting.
	KindNetwork
	// KindIntegrity is a checksum or commit-pin mismatch.
	KindIntegrity
	// KindPrerequisite is one or more missing external dependencies.
	KindPrerequisite
	// KindStructure means installation markers were not found after
	// exhausting every discovery strategy.
	KindStructure
	// KindBuild is a non-zero exit from an external build process.
	KindBuild
	// KindVerification means an artifact failed a smoke invocation or
	// architecture check.
	KindVerification
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindNetwork:
		return "network"
	case KindIntegrity:
		return "integrity"
	case KindPrerequisite:
		return "prerequisite"
	case KindStructure:
		return "structure"
	case KindBuild:
		return "build"
	case KindVerification:
		return "verification"
	default:
		return "unknown"
	}
}

// Error is a classified installer error. It wraps an optional cause and
// supports errors.Is/errors.As chains.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Msg)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates a classified error around a cause.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// IsKind reports whether any error in err's chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}
