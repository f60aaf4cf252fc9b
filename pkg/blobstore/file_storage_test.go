package blobstore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *FileStorage {
	t.Helper()
	s, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFileStorage_SaveOpen(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	n, err := s.Save(ctx, "clip.m4a", strings.NewReader("hello"), 1024)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	rc, info, err := s.Open(ctx, "clip.m4a")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "clip.m4a", info.Name)
	assert.Equal(t, int64(5), info.Size)
}

func TestFileStorage_SaveTooLarge(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	_, err := s.Save(ctx, "big.m4a", bytes.NewReader(make([]byte, 11)), 10)
	assert.ErrorIs(t, err, ErrTooLarge)

	// nothing committed, nothing left behind
	_, err = s.Stat(ctx, "big.m4a")
	assert.ErrorIs(t, err, ErrNotExist)
	entries, err := os.ReadDir(s.Path())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), tempPrefix), "leftover temp file %s", e.Name())
	}
}

func TestFileStorage_SaveExactlyAtLimit(t *testing.T) {
	s := newTestStorage(t)

	n, err := s.Save(context.Background(), "edge.wav", bytes.NewReader(make([]byte, 10)), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
}

func TestFileStorage_InvalidNames(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for _, name := range []string{"", "../escape", "a/b", ".hidden", `a\b`} {
		_, err := s.Save(ctx, name, strings.NewReader("x"), 0)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}

func TestFileStorage_ListSkipsHiddenAndTemp(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	_, err := s.Save(ctx, "a.m4a", strings.NewReader("a"), 0)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(s.Path(), tempPrefix+"b.m4a-123"), []byte("partial"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(s.Path(), "sub"), 0o755))

	objects, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "a.m4a", objects[0].Name)
}

func TestFileStorage_DeleteMissingIsNotAnError(t *testing.T) {
	s := newTestStorage(t)
	assert.NoError(t, s.Delete(context.Background(), "gone.m4a"))
}

func TestFileStorage_OpenMissing(t *testing.T) {
	s := newTestStorage(t)
	_, _, err := s.Open(context.Background(), "gone.m4a")
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestFileStorage_PurgeTemp(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	old := filepath.Join(s.Path(), tempPrefix+"old.m4a-1")
	fresh := filepath.Join(s.Path(), tempPrefix+"fresh.m4a-2")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o644))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	purged, err := s.PurgeTemp(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}

func TestFileStorage_Lock(t *testing.T) {
	dir := t.TempDir()

	first, err := NewFileStorage(dir)
	require.NoError(t, err)
	require.NoError(t, first.Lock())
	defer first.Close()

	second, err := NewFileStorage(dir)
	require.NoError(t, err)
	assert.ErrorIs(t, second.Lock(), ErrLocked)

	require.NoError(t, first.Close())
	assert.NoError(t, second.Lock())
	second.Close()
}

func TestFileStorage_Healthy(t *testing.T) {
	s := newTestStorage(t)
	assert.NoError(t, s.Healthy(context.Background()))

	objects, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, objects)
}
