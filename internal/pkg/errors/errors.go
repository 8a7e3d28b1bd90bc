package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrInvalid    = errors.New("invalid")
	ErrConflict   = errors.New("conflict")
	ErrTooMany    = errors.New("too many requests")
	ErrInternal   = errors.New("internal")
	ErrNotReady   = errors.New("paper not ready")
	ErrExtraction = errors.New("extraction failed")

	ErrEmptyDocument      = fmt.Errorf("%w: document has no extractable text", ErrExtraction)
	ErrEmbeddingBackend   = errors.New("embedding backend error")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrGeneration         = errors.New("generation failed")
	ErrIngestInProgress   = fmt.Errorf("%w: ingestion already in progress", ErrConflict)
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsCollectionNotFound(err error) bool {
	return errors.Is(err, ErrCollectionNotFound)
}
