package dbutil

import (
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestFinalize(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		args      []interface{}
		wantQuery string
		wantArgs  []interface{}
	}{
		{
			name:      "plain placeholders",
			query:     "SELECT * FROM papers WHERE id=? AND status=?",
			args:      []interface{}{"p1", "ready"},
			wantQuery: "SELECT * FROM papers WHERE id=$1 AND status=$2",
			wantArgs:  []interface{}{"p1", "ready"},
		},
		{
			name:      "mysql style limit",
			query:     "SELECT * FROM papers WHERE status=? ORDER BY ctime DESC LIMIT ?,?",
			args:      []interface{}{"ready", 20, 10},
			wantQuery: "SELECT * FROM papers WHERE status=$1 ORDER BY ctime DESC LIMIT $2 OFFSET $3",
			wantArgs:  []interface{}{"ready", 10, 20},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, args := Finalize(tt.query, tt.args)
			require.Equal(t, tt.wantQuery, q)
			require.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestIsConflict(t *testing.T) {
	require.True(t, IsConflict(&pq.Error{Code: "23505"}))
	require.True(t, IsConflict(fmt.Errorf("insert paper: %w", &pq.Error{Code: "23505"})))
	require.False(t, IsConflict(&pq.Error{Code: "23503"}))
	require.False(t, IsConflict(fmt.Errorf("boom")))
	require.False(t, IsConflict(nil))
}
