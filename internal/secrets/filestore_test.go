package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTrip(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "secrets.json"))

	require.NoError(t, store.Set(KeyAccessToken, "tok-1"))

	got, err := store.Get(KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", got)
}

func TestFileStore_NotFound(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "secrets.json"))

	_, err := store.Get(KeyRefreshToken)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_EmptyValueIsNotFound(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "secrets.json"))

	require.NoError(t, store.Set(KeyAccessToken, ""))

	_, err := store.Get(KeyAccessToken)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")

	require.NoError(t, NewFileStore(path).Set(KeyAppID, "client-1"))

	got, err := NewFileStore(path).Get(KeyAppID)
	require.NoError(t, err)
	assert.Equal(t, "client-1", got)
}

func TestFileStore_UpdateKeepsOtherKeys(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "secrets.json"))

	require.NoError(t, store.Set(KeyAccessToken, "tok-1"))
	require.NoError(t, store.Set(KeyRefreshToken, "ref-1"))
	require.NoError(t, store.Set(KeyAccessToken, "tok-2"))

	access, err := store.Get(KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", access)

	refresh, err := store.Get(KeyRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "ref-1", refresh)
}

func TestFileStore_Permissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	store := NewFileStore(path)

	require.NoError(t, store.Set(KeyAppSecret, "hush"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())
}

func TestFileStore_NoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "secrets.json"))

	require.NoError(t, store.Set(KeyAppID, "x"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "secrets.json", entries[0].Name())
}

func TestGetDefault(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "secrets.json"))

	got, err := GetDefault(store, KeyRedirectURL, "http://localhost:13631/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:13631/", got)

	require.NoError(t, store.Set(KeyRedirectURL, "http://localhost:9999/"))

	got, err = GetDefault(store, KeyRedirectURL, "http://localhost:13631/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999/", got)
}
