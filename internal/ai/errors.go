package ai

import "errors"

var (
	ErrUnavailable   = errors.New("ai provider unavailable")
	ErrModelNotFound = errors.New("ai model not found")
)
