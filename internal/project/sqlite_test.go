//go:build cgo

package project

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azyu/novelcraft/internal/storage"
	"github.com/azyu/novelcraft/pkg/types"
)

func TestSQLiteBackend(t *testing.T) {
	tmpDir := t.TempDir()
	manager, err := NewManager(tmpDir)
	require.NoError(t, err)

	proj, err := manager.Create("lighthouse", types.DefaultProjectConfig("Lighthouse"))
	require.NoError(t, err)
	defer proj.Close()

	assert.FileExists(t, filepath.Join(tmpDir, "lighthouse", MetaDir, "store.db"))
	_, ok := proj.KV.(*storage.SQLiteKV)
	assert.True(t, ok)

	require.NoError(t, proj.KV.Set("k", "v"))
	value, found, err := proj.KV.Get("k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", value)
}
