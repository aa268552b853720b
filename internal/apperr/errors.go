// Package apperr defines sentinel errors shared across packages.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// ErrExtraction marks unreadable or unsupported input. Always fatal to that input.
	ErrExtraction = errors.New("extraction failed")
	// ErrGenerationUnavailable means no generation provider could be reached.
	ErrGenerationUnavailable = errors.New("generation unavailable")
	// ErrGeneration is a provider-side generation failure.
	ErrGeneration = errors.New("generation error")
	// ErrValidation is a failed stage gate.
	ErrValidation = errors.New("validation failed")
	// ErrPersistence is an I/O failure writing a record.
	ErrPersistence = errors.New("persistence failed")
)

// StageError attributes an error to a pipeline stage.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Kind returns a short label for err, used in metrics and job records.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrExtraction):
		return "extraction"
	case errors.Is(err, ErrGenerationUnavailable):
		return "generation_unavailable"
	case errors.Is(err, ErrGeneration):
		return "generation"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "unknown"
	}
}
