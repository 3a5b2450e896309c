package service

import (
	"context"
	"errors"
	"fmt"

	"img2pdf/internal/assembler"
	"img2pdf/internal/imaging"
	"img2pdf/internal/model"
	"img2pdf/internal/repository"
)

var (
	// ErrSessionNotFound is returned for unknown, expired or torn down sessions.
	ErrSessionNotFound = repository.ErrSessionNotFound
	// ErrSessionIDRequired is returned when an operation needs an existing session.
	ErrSessionIDRequired = errors.New("session id is required")
	ErrNoFiles           = errors.New("no files uploaded")
	ErrTooManyFiles      = errors.New("too many files in one upload")
	ErrFileTooLarge      = errors.New("file exceeds upload size limit")
	ErrNoImages          = errors.New("session has no images")
	ErrDocumentNotReady  = errors.New("document has not been generated")
	// ErrSessionChanged is returned by Generate when images were uploaded while
	// the document was being assembled. Generating again picks them up.
	ErrSessionChanged = repository.ErrStaleDocument
)

// BatchError reports the image that caused an upload to be rejected.
type BatchError struct {
	Index int
	Name  string
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("image %d (%s): %v", e.Index+1, e.Name, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// failureReason is a low cardinality label for metrics.
func failureReason(err error) string {
	switch {
	case errors.Is(err, imaging.ErrImageTooLarge), errors.Is(err, ErrFileTooLarge),
		errors.Is(err, assembler.ErrDocumentTooLarge):
		return "too_large"
	case errors.Is(err, imaging.ErrDecode):
		return "decode"
	case errors.Is(err, imaging.ErrConversion):
		return "conversion"
	case errors.Is(err, assembler.ErrSourceMissing):
		return "source_missing"
	case errors.Is(err, ErrSessionChanged):
		return "stale"
	case errors.Is(err, model.ErrStorage):
		return "storage"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "other"
	}
}
