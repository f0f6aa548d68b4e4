package docufort

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Sentinel/structured error kinds, per spec section 7. Callers compare
// with errors.Is/errors.As; pkg/errors is used internally to attach
// context (offsets, component names) as errors cross I/O call
// boundaries.
var (
	// ErrUnexpectedEOF means a read found fewer bytes than the component
	// requires. Recovery converts this into IncompleteStartHeader, OpenA,
	// or OpenB depending on context.
	ErrUnexpectedEOF = errors.New("docufort: unexpected end of file")

	// ErrTooManyErrors means the ECC parity could not correct the region;
	// interpreted by context (false magic frame vs. fatal header
	// corruption vs. reported-but-non-fatal content corruption).
	ErrTooManyErrors = errors.New("docufort: too many errors for ECC to correct")

	// ErrConfigMismatch means the file header disagrees with the
	// Config's ECC length or the compiled format version.
	ErrConfigMismatch = errors.New("docufort: file header does not match configuration")

	// ErrInvalidBlockStructure signals an implementation-level or
	// cross-version structural surprise: a header tag that doesn't fit
	// where it was found.
	ErrInvalidBlockStructure = errors.New("docufort: invalid block structure")
)

func errUnsupportedECCLen(n int) error {
	return fmt.Errorf("docufort: unsupported ECC length %d (must be one of 2,4,6,8,16,32)", n)
}

// classifyEOF converts the io package's sentinel EOF errors into
// ErrUnexpectedEOF, per the original's ReadWriteError::from<io::Error>
// mapping of UnexpectedEof. Other errors pass through wrapped with
// context.
func classifyEOF(err error, context string) error {
	if err == nil {
		return nil
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrUnexpectedEOF
	}
	return errors.Wrap(err, context)
}

// TransientIOError wraps an I/O error to mark it as one the retrying
// writer should retry. IsTransient does not require this wrapper: it
// treats every error other than io.EOF/io.ErrUnexpectedEOF as transient.
type TransientIOError struct {
	Err error
}

func (e *TransientIOError) Error() string { return "docufort: transient I/O error: " + e.Err.Error() }
func (e *TransientIOError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried by the retrying
// writer's inner-op loop. The classification policy is intentionally
// coarse: any error that isn't plain io.EOF/io.ErrUnexpectedEOF (which
// indicate a logic bug, not a flaky device) is treated as transient up to
// the configured attempt/duration budget. A full per-OS-error-code
// classification table is the cooperative I/O retry wrapper's job (spec
// section 1, out of scope) — this is the interface boundary described
// there.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return false
	}
	return true
}
