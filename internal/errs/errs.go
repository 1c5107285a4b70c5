// Package errs defines the failure taxonomy shared by every install and remove stage
// and maps it to process exit codes.
package errs

import (
	"errors"
	"fmt"
)

// Top-level failure kinds. Every error returned by a transaction wraps exactly one of them.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrResolution   = errors.New("version resolution failed")
	ErrFetch        = errors.New("fetch failed")
	ErrExtraction   = errors.New("extraction failed")
	ErrPersistence  = errors.New("manifest persistence failed")
	ErrNotFound     = errors.New("package not installed")
	ErrDeletion     = errors.New("file deletion failed")
	ErrAborted      = errors.New("aborted by user")
)

// Sub-kinds refine a top-level kind and are wrapped alongside it.
var (
	ErrNoVersions          = errors.New("no versions published")
	ErrRegistryUnreachable = errors.New("registry unreachable")
	ErrCorruptManifest     = errors.New("manifest is corrupt")
	ErrPathEscape          = errors.New("path escapes install root")
	ErrUnsupportedEntry    = errors.New("unsupported archive entry")
)

// Exit codes, one per failure kind.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitInvalidInput = 2
	ExitResolution   = 3
	ExitFetch        = 4
	ExitExtraction   = 5
	ExitPersistence  = 6
	ExitNotFound     = 7
	ExitDeletion     = 8
	ExitAborted      = 9
)

// Wrap tags err with kind and a short context string.
func Wrap(kind error, context string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", kind, context, err)
}

// New returns an error of kind carrying only a context string.
func New(kind error, context string) error {
	return fmt.Errorf("%w: %s", kind, context)
}

// ExitCode maps err to the process exit code for its failure kind.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrNotFound):
		return ExitNotFound
	case errors.Is(err, ErrAborted):
		return ExitAborted
	case errors.Is(err, ErrInvalidInput):
		return ExitInvalidInput
	case errors.Is(err, ErrResolution):
		return ExitResolution
	case errors.Is(err, ErrFetch):
		return ExitFetch
	case errors.Is(err, ErrExtraction):
		return ExitExtraction
	case errors.Is(err, ErrPersistence):
		return ExitPersistence
	case errors.Is(err, ErrDeletion):
		return ExitDeletion
	default:
		return ExitFailure
	}
}
