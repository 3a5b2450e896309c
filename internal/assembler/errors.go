package assembler

import (
	"errors"
	"strings"
)

var (
	// ErrSourceMissing is wrapped by SourceMissingError.
	ErrSourceMissing = errors.New("source image missing")
	// ErrDocumentTooLarge means a page or the whole document exceeds the encoder limits.
	ErrDocumentTooLarge = errors.New("document too large")
	// ErrNoPages is returned when asked to assemble an empty list.
	ErrNoPages = errors.New("no pages to assemble")
	// ErrAssembly covers encoder failures not caused by the inputs' size or presence.
	ErrAssembly = errors.New("document assembly failed")
)

// SourceMissingError names every input that could not be read.
type SourceMissingError struct {
	Paths []string
}

func (e *SourceMissingError) Error() string {
	return ErrSourceMissing.Error() + ": " + strings.Join(e.Paths, ", ")
}

func (e *SourceMissingError) Unwrap() error {
	return ErrSourceMissing
}
