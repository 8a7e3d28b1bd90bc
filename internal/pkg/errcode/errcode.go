package errcode

import (
	"errors"

	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
)

const (
	ErrUnknown = 10000000 + iota
	ErrNotFound
	ErrInvalid
	ErrConflict
	ErrTooMany
	ErrInternal
	ErrExtractionFailed
	ErrEmbeddingUnavailable
	ErrGenerationFailed
	ErrNotReady
)

// FromError maps a service error onto its response code and a client-facing message.
func FromError(err error) (int, string) {
	switch {
	case err == nil:
		return 0, ""
	case errors.Is(err, appErr.ErrCollectionNotFound):
		return ErrNotFound, "paper collection not found"
	case errors.Is(err, appErr.ErrNotFound):
		return ErrNotFound, "not found"
	case errors.Is(err, appErr.ErrNotReady):
		return ErrNotReady, "paper is still being processed"
	case errors.Is(err, appErr.ErrIngestInProgress):
		return ErrConflict, "paper ingestion already in progress"
	case errors.Is(err, appErr.ErrConflict):
		return ErrConflict, "conflict"
	case errors.Is(err, appErr.ErrInvalid):
		return ErrInvalid, err.Error()
	case errors.Is(err, appErr.ErrTooMany):
		return ErrTooMany, "too many requests"
	case errors.Is(err, appErr.ErrExtraction):
		return ErrExtractionFailed, err.Error()
	case errors.Is(err, appErr.ErrEmbeddingBackend):
		return ErrEmbeddingUnavailable, err.Error()
	case errors.Is(err, appErr.ErrGeneration):
		return ErrGenerationFailed, err.Error()
	default:
		return ErrInternal, "internal error"
	}
}
