//go:build cgo

package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestKV creates a temporary SQLite store for testing.
func setupTestKV(t *testing.T) *SQLiteKV {
	t.Helper()

	kv, err := NewSQLiteKV(filepath.Join(t.TempDir(), ".novelcraft", "store.db"))
	require.NoError(t, err, "failed to create test database")
	t.Cleanup(func() { kv.Close() })

	return kv
}

func TestSQLiteKV(t *testing.T) {
	kvContract(t, setupTestKV(t))

	t.Run("records schema version", func(t *testing.T) {
		kv := setupTestKV(t)

		version, err := kv.SchemaVersion()
		require.NoError(t, err)
		assert.Equal(t, 1, version)
	})

	t.Run("tracks update time", func(t *testing.T) {
		kv := setupTestKV(t)
		require.NoError(t, kv.Set("k", "v"))

		at, ok, err := kv.UpdatedAt("k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.False(t, at.IsZero())
	})

	t.Run("reopening keeps values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "store.db")
		first, err := NewSQLiteKV(path)
		require.NoError(t, err)
		require.NoError(t, first.Set("novelcraft_api_key_v1", "sk-test"))
		require.NoError(t, first.Close())

		second, err := NewSQLiteKV(path)
		require.NoError(t, err)
		defer second.Close()

		v, ok, err := second.Get("novelcraft_api_key_v1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "sk-test", v)
	})

	t.Run("DB returns underlying connection", func(t *testing.T) {
		kv := setupTestKV(t)
		require.NotNil(t, kv.DB())
		assert.NoError(t, kv.DB().Ping())
	})
}
