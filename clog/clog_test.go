package clog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrapAlwaysCommitted(t *testing.T) {
	l := New()
	assert.True(t, l.IsCommitted(BootstrapTxID))
	assert.Equal(t, StatusCommitted, l.Status(BootstrapTxID))
}

func TestMarkAndQuery(t *testing.T) {
	l := New()
	l.MarkInProgress(1)
	assert.False(t, l.IsCommitted(1))
	l.MarkCommitted(1)
	assert.True(t, l.IsCommitted(1))

	l.MarkInProgress(2)
	l.MarkAborted(2)
	assert.False(t, l.IsCommitted(2))
	assert.Equal(t, StatusAborted, l.Status(2))
}

func TestMergeWalWins(t *testing.T) {
	l := New()
	l.MarkCommitted(5)
	l.Merge(map[uint64]Status{5: StatusAborted, 6: StatusCommitted})
	assert.Equal(t, StatusAborted, l.Status(5))
	assert.True(t, l.IsCommitted(6))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clog")

	l := New()
	l.MarkCommitted(1)
	l.MarkAborted(2)
	l.MarkInProgress(3)
	require.NoError(t, l.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, loaded.IsCommitted(1))
	assert.Equal(t, StatusAborted, loaded.Status(2))
	assert.Equal(t, StatusInProgress, loaded.Status(3))
}

func TestLoadMissingFileIsEmptyLog(t *testing.T) {
	l, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.True(t, l.IsCommitted(BootstrapTxID))
	assert.Equal(t, 0, len(l.Snapshot()))
}

func TestLoadBadMagicErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad")
	require.NoError(t, os.WriteFile(path, []byte("XXXXgarbage"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
