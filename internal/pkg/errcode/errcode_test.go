package errcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{name: "nil", err: nil, code: 0, msg: ""},
		{name: "invalid keeps reason", err: fmt.Errorf("%w: unknown aspect %q", appErr.ErrInvalid, "novelty"), code: ErrInvalid, msg: `invalid: unknown aspect "novelty"`},
		{name: "collection", err: fmt.Errorf("%w: paper x", appErr.ErrCollectionNotFound), code: ErrNotFound, msg: "paper collection not found"},
		{name: "in progress", err: appErr.ErrIngestInProgress, code: ErrConflict, msg: "paper ingestion already in progress"},
		{name: "not ready", err: appErr.ErrNotReady, code: ErrNotReady, msg: "paper is still being processed"},
		{name: "unknown", err: errors.New("boom"), code: ErrInternal, msg: "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg := FromError(tt.err)
			require.Equal(t, tt.code, code)
			require.Equal(t, tt.msg, msg)
		})
	}
}
