package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)

	_, err = s.Get(KeyAccessToken)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(KeyAccessToken, "A1"))
	require.NoError(t, s.Set(KeyRefreshToken, "R1"))

	value, err := s.Get(KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "A1", value)

	// a second instance sees the persisted values
	s2, err := NewFileStore(path)
	require.NoError(t, err)
	value, err = s2.Get(KeyRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "R1", value)

	require.NoError(t, s.Remove(KeyAccessToken))
	_, err = s.Get(KeyAccessToken)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStorePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(KeyAccessToken, "A1"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestEncryptedFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	s, err := NewEncryptedFileStore(path, "hunter2")
	require.NoError(t, err)

	require.NoError(t, s.Set(KeyAccessToken, "A1"))
	value, err := s.Get(KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "A1", value)

	// tokens never hit the disk in the clear
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "A1")

	// reopen with the same passphrase
	s2, err := NewEncryptedFileStore(path, "hunter2")
	require.NoError(t, err)
	value, err = s2.Get(KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "A1", value)
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	s, err := NewEncryptedFileStore(path, "hunter2")
	require.NoError(t, err)
	require.NoError(t, s.Set(KeyAccessToken, "A1"))

	s2, err := NewEncryptedFileStore(path, "wrong")
	require.NoError(t, err)
	_, err = s2.Get(KeyAccessToken)
	require.Error(t, err)
}

func TestEncryptedFileStoreRequiresPassphrase(t *testing.T) {
	_, err := NewEncryptedFileStore(filepath.Join(t.TempDir(), "t.json"), "")
	require.Error(t, err)
}

func TestMemStore(t *testing.T) {
	s := NewMemStore()

	_, err := s.Get(KeyClientID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(KeyClientID, "abc"))
	value, err := s.Get(KeyClientID)
	require.NoError(t, err)
	assert.Equal(t, "abc", value)

	require.NoError(t, s.Remove(KeyClientID))
	_, err = s.Get(KeyClientID)
	assert.ErrorIs(t, err, ErrNotFound)
}
