package store

import "errors"

// Index-level errors. They signal a contract violation by the caller and
// are never retried.
var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrZeroNormVector    = errors.New("zero-norm vector")
	ErrNonFiniteVector   = errors.New("vector has NaN or infinite components")
)

// Storage-level errors. ErrVersionMismatch, ErrModelMismatch and
// ErrDimensionMismatch on load mean the file was written by a different
// setup and the caller may start over with an empty index. The rest mean
// the file cannot be trusted.
var (
	ErrIO               = errors.New("vector storage i/o")
	ErrInvalidFormat    = errors.New("invalid vector file format")
	ErrVersionMismatch  = errors.New("unsupported vector file version")
	ErrModelMismatch    = errors.New("vector file built with a different model")
	ErrChecksumMismatch = errors.New("vector file header checksum mismatch")
)

// IsRecoverable reports whether a load error means the stored vectors are
// merely stale rather than corrupt.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrVersionMismatch) ||
		errors.Is(err, ErrModelMismatch) ||
		errors.Is(err, ErrDimensionMismatch)
}
