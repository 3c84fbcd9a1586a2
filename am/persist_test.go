package am

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetValueInCreatesNestedTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "managed", UIConfigFileName)

	require.NoError(t, SetValueIn(path, "completion.strategy", "reasoned"))
	require.NoError(t, SetValueIn(path, "completion.cache.size", 42))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, toml.Unmarshal(data, &out))
	completion := out["completion"].(map[string]interface{})
	assert.Equal(t, "reasoned", completion["strategy"])
	assert.EqualValues(t, 42, completion["cache"].(map[string]interface{})["size"])

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "reasoned", cfg.Completion.Strategy)
	assert.Equal(t, 42, cfg.Completion.Cache.Size)
}

func TestSetValueInRejectsBadKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), UIConfigFileName)
	assert.Error(t, SetValueIn(path, "completion..strategy", "fast"))
	assert.Error(t, SetValueIn(path, "", "fast"))
}

func TestBackupRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), UIConfigFileName)

	for _, s := range []string{"fast", "reasoned", "block_rewrite", "fast", "reasoned"} {
		require.NoError(t, SetValueIn(path, "completion.strategy", s))
	}

	for _, suffix := range []string{".back1", ".back2", ".back3"} {
		_, err := os.Stat(path + suffix)
		assert.NoError(t, err, suffix)
	}
	_, err := os.Stat(path + ".back4")
	assert.True(t, os.IsNotExist(err))

	back1, err := os.ReadFile(path + ".back1")
	require.NoError(t, err)
	assert.Contains(t, string(back1), "fast")
}

func TestUpdateCompletionStrategyValidates(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	assert.Error(t, UpdateCompletionStrategy("clever"))
	require.NoError(t, UpdateCompletionStrategy("block_rewrite"))

	cfg, err := LoadFromFile(GetUIConfigPath())
	require.NoError(t, err)
	assert.Equal(t, "block_rewrite", cfg.Completion.Strategy)
}

func TestIsBackupFile(t *testing.T) {
	assert.True(t, isBackupFile("/x/am.toml.back1"))
	assert.True(t, isBackupFile("/x/am_managed.toml.back3"))
	assert.False(t, isBackupFile("/x/am.toml.back4"))
	assert.False(t, isBackupFile("/x/am.toml"))
	assert.False(t, isBackupFile("/x/notes.backup"))
}
