package models

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the synchronizer, the query engine and the stores.
var (
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrMissingEmbedding  = errors.New("missing embedding")
	ErrInvalidLimit      = errors.New("invalid limit")
	ErrInvalidMode       = errors.New("invalid search mode")
	ErrInvalidDocument   = errors.New("invalid document")
	ErrNotFound          = errors.New("not found")
	ErrStoreUnavailable  = errors.New("metadata store unavailable")
	ErrPersistenceIO     = errors.New("persistence i/o error")
)

// DimensionError reports a vector whose length differs from the configured dimension.
type DimensionError struct {
	Expected int
	Actual   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s: expected %d, got %d", ErrDimensionMismatch, e.Expected, e.Actual)
}

func (e *DimensionError) Unwrap() error { return ErrDimensionMismatch }

// NewDimensionError creates a DimensionError.
func NewDimensionError(expected, actual int) *DimensionError {
	return &DimensionError{Expected: expected, Actual: actual}
}

// IsValidation reports whether err is caused by bad caller input rather than a backend failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrMissingEmbedding) ||
		errors.Is(err, ErrInvalidLimit) ||
		errors.Is(err, ErrInvalidMode) ||
		errors.Is(err, ErrInvalidDocument)
}
