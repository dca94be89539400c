package models

import "fmt"

// ErrorKind classifies pipeline failures. Each kind is itself an error so it
// can be used as an errors.Is target.
type ErrorKind string

func (k ErrorKind) Error() string { return string(k) }

const (
	ErrValidation      ErrorKind = "validation"
	ErrExtraction      ErrorKind = "extraction"
	ErrConfiguration   ErrorKind = "configuration"
	ErrAnalysisService ErrorKind = "analysis_service"
	ErrStorage         ErrorKind = "storage"
	ErrPersistence     ErrorKind = "persistence"
	ErrNotFound        ErrorKind = "not_found"
)

// IngestError is returned by every pipeline stage.
type IngestError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewError builds an IngestError of the given kind.
func NewError(kind ErrorKind, message string, err error) *IngestError {
	return &IngestError{Kind: kind, Message: message, Err: err}
}

func (e *IngestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *IngestError) Unwrap() error { return e.Err }

// Is matches the error's kind, so errors.Is(err, ErrStorage) works through
// any amount of wrapping.
func (e *IngestError) Is(target error) bool {
	k, ok := target.(ErrorKind)
	return ok && k == e.Kind
}
