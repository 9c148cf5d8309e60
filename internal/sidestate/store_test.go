package sidestate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return NewStore(filepath.Join(dir, "cert", "keys.json"), filepath.Join(dir, "node_names.json"))
}

func TestMissingFilesAreEmptyState(t *testing.T) {
	s := newTestStore(t)

	keys, ok, err := s.LoadKeys()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, keys.Empty())

	names, err := s.LoadNodeNames()
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.Equal(t, "alice", names.Label("alice"))
}

func TestKeysRoundTrip(t *testing.T) {
	s := newTestStore(t)
	want := Keys{PrivateKey: "priv", PublicKey: "pub", ShortID: "a1b2c3d4"}
	require.NoError(t, s.SaveKeys(want))

	got, ok, err := s.LoadKeys()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)

	raw, err := os.ReadFile(s.KeysPath)
	require.NoError(t, err)
	assert.Equal(t, `{
    "reality": {
        "private_key": "priv",
        "public_key": "pub",
        "short_id": "a1b2c3d4"
    }
}`, string(raw))
}

func TestNodeNamesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveNodeNames(NodeNames{"alice": "Home & Office"}))

	names, err := s.LoadNodeNames()
	require.NoError(t, err)
	assert.Equal(t, "Home & Office", names.Label("alice"))
	assert.Equal(t, "bob", names.Label("bob"))
	assert.Equal(t, []string{"alice"}, names.Usernames())

	clone := names.Clone()
	clone["bob"] = "Laptop"
	assert.NotContains(t, names, "bob")
}

func TestCorruptFilesAreReportedNotReset(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.KeysPath), 0o755))
	require.NoError(t, os.WriteFile(s.KeysPath, []byte(`{"reality": {`), 0o600))
	require.NoError(t, os.WriteFile(s.NodeNamesPath, []byte(`{"alice": 42}`), 0o644))

	_, _, err := s.LoadKeys()
	require.ErrorIs(t, err, ErrCorrupt)
	var ce *CorruptError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, s.KeysPath, ce.Path)

	_, err = s.LoadNodeNames()
	require.ErrorIs(t, err, ErrCorrupt)

	raw, err := os.ReadFile(s.NodeNamesPath)
	require.NoError(t, err)
	assert.Equal(t, `{"alice": 42}`, string(raw))

	require.NoError(t, os.WriteFile(s.NodeNamesPath, []byte("   "), 0o644))
	_, err = s.LoadNodeNames()
	assert.ErrorIs(t, err, ErrCorrupt)
}
