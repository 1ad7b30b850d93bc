package credentials

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, "amazonq-credentials")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, "amazonq-credentials", []byte(`{"refresh_token":"r1"}`)))
	got, err := store.Get(ctx, "amazonq-credentials")
	require.NoError(t, err)
	assert.JSONEq(t, `{"refresh_token":"r1"}`, string(got))

	// Last writer wins.
	require.NoError(t, store.Put(ctx, "amazonq-credentials", []byte(`{"refresh_token":"r2"}`)))
	got, err = store.Get(ctx, "amazonq-credentials")
	require.NoError(t, err)
	assert.JSONEq(t, `{"refresh_token":"r2"}`, string(got))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	store := NewMemoryStore()
	value := []byte(`{"a":1}`)
	require.NoError(t, store.Put(context.Background(), "k", value))
	value[2] = 'b'

	got, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))
}

func TestFSStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "store")
	store := NewFSStore(dir)
	exerciseStore(t, store)

	info, err := os.Stat(filepath.Join(dir, "amazonq-credentials.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFSStoreRejectsPathKeys(t *testing.T) {
	store := NewFSStore(t.TempDir())
	assert.Error(t, store.Put(context.Background(), "../escape", []byte("{}")))
	_, err := store.Get(context.Background(), "a/b")
	assert.Error(t, err)
}
