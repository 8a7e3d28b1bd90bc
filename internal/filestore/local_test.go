package filestore

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/paperqa/internal/config"
	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": t.TempDir()}})
	require.NoError(t, err)

	data := []byte("%PDF-1.4 fake")
	key := PaperKey("abc")
	require.Equal(t, "abc.pdf", key)
	require.NoError(t, store.Save(ctx, key, NopCloser(bytes.NewReader(data)), int64(len(data))))

	rc, err := store.Open(ctx, key)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	require.Equal(t, data, got)

	require.NoError(t, store.Delete(ctx, key))
	require.ErrorIs(t, store.Delete(ctx, key), appErr.ErrNotFound)
	_, err = store.Open(ctx, key)
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestLocalStoreRejectsPathKeys(t *testing.T) {
	store, err := New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": t.TempDir()}})
	require.NoError(t, err)
	for _, key := range []string{"", "../x.pdf", "a/b.pdf", `a\b.pdf`, ".."} {
		err := store.Save(context.Background(), key, NopCloser(bytes.NewReader(nil)), 0)
		require.ErrorIs(t, err, appErr.ErrInvalid, key)
	}
}

func TestNewRejectsUnknownType(t *testing.T) {
	_, err := New(config.FileStoreConfig{Type: "ftp"})
	require.Error(t, err)
	_, err = New(config.FileStoreConfig{})
	require.Error(t, err)
	_, err = New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{}})
	require.Error(t, err)
}
