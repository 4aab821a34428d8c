package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreLoadRoundTrip(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	key, err := fs.Store(ctx, "jobs/job-1/000.png", []byte("payload"))
	require.NoError(t, err)
	require.Equal(t, "jobs/job-1/000.png", key)

	data, err := fs.Load(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), data)
}

func TestStoreNormalizesKeys(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	key, err := fs.Store(context.Background(), "./jobs\\job-1\\a.png", []byte("x"))
	require.NoError(t, err)
	require.Equal(t, "jobs/job-1/a.png", key)
}

func TestStoreRejectsTraversal(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = fs.Store(ctx, "../outside.png", []byte("x"))
	require.Error(t, err)

	_, err = fs.Load(ctx, "")
	require.Error(t, err)

	_, err = fs.Load(ctx, "jobs/missing.png")
	require.Error(t, err)
}
