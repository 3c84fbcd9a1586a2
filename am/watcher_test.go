package am

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigWatcherReloadsOnChange(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(home)
	Reset()
	t.Cleanup(Reset)

	dir := filepath.Join(home, ".ghostwrite")
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, "am.toml")
	require.NoError(t, os.WriteFile(path, []byte("[completion]\nstrategy = \"fast\"\n"), 0644))

	cw, err := NewConfigWatcher(path)
	require.NoError(t, err)
	cw.debouncePeriod = 100 * time.Millisecond

	reloaded := make(chan string, 1)
	cw.OnReload(func(c *Config) error {
		reloaded <- c.Completion.Strategy
		return nil
	})
	cw.Start()
	defer cw.Stop()

	require.NoError(t, os.WriteFile(path, []byte("[completion]\nstrategy = \"reasoned\"\n"), 0644))

	select {
	case got := <-reloaded:
		assert.Equal(t, "reasoned", got)
	case <-time.After(3 * time.Second):
		t.Fatal("config was not reloaded")
	}
}

func TestConfigWatcherSkipsOwnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0644))

	cw, err := NewConfigWatcher(path)
	require.NoError(t, err)
	defer cw.Stop()

	cw.MarkOwnWrite()
	assert.True(t, cw.checkOwnWrite())
	assert.False(t, cw.checkOwnWrite())
}

func TestConfigWatcherStopIsIdempotentOnDone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0644))

	cw, err := NewConfigWatcher(path)
	require.NoError(t, err)
	cw.Start()
	require.NoError(t, cw.Stop())
}
