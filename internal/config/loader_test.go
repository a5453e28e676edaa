package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderLoad(t *testing.T) {
	path := writeFile(t, "config.toml", sampleTOML)
	l := NewLoader(path)
	defer l.Close()

	assert.Equal(t, path, l.Path())
	assert.Nil(t, l.Config())

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Same(t, cfg, l.Config())
}

func TestLoaderLoadInvalid(t *testing.T) {
	path := writeFile(t, "config.toml", "version = 2\n[playback]\npoll_interval_ms = 0\n")
	l := NewLoader(path)
	defer l.Close()

	_, err := l.Load()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoaderWatchReloads(t *testing.T) {
	path := writeFile(t, "config.toml", sampleTOML)
	l := NewLoader(path)
	l.debounce = 10 * time.Millisecond
	defer l.Close()

	_, err := l.Load()
	require.NoError(t, err)

	changed := make(chan *Config, 4)
	l.OnChange(func(c *Config) { changed <- c })
	require.NoError(t, l.Watch())

	updated := sampleTOML + "\n[[macros]]\nname = \"Third\"\nhotkey = \"ctrl+3\"\ntext = \"three\"\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0600))

	select {
	case cfg := <-changed:
		assert.Len(t, cfg.Macros, 3)
		assert.Len(t, l.Config().Macros, 3)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestLoaderKeepsConfigOnBadReload(t *testing.T) {
	path := writeFile(t, "config.toml", sampleTOML)
	l := NewLoader(path)
	l.debounce = 10 * time.Millisecond
	defer l.Close()

	original, err := l.Load()
	require.NoError(t, err)
	require.NoError(t, l.Watch())

	require.NoError(t, os.WriteFile(path, []byte("version = [broken"), 0600))

	select {
	case err := <-l.Errors():
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload error")
	}
	assert.Same(t, original, l.Config())
}

func TestLoaderIgnoresSiblingFiles(t *testing.T) {
	path := writeFile(t, "config.toml", sampleTOML)
	l := NewLoader(path)
	l.debounce = 10 * time.Millisecond
	defer l.Close()

	_, err := l.Load()
	require.NoError(t, err)

	called := make(chan struct{}, 1)
	l.OnChange(func(*Config) { called <- struct{}{} })
	require.NoError(t, l.Watch())

	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.toml"), []byte("x"), 0600))

	select {
	case <-called:
		t.Fatal("reload triggered by unrelated file")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestLoaderSkipsUnchangedSave(t *testing.T) {
	path := writeFile(t, "config.toml", sampleTOML)
	l := NewLoader(path)
	l.debounce = 10 * time.Millisecond
	defer l.Close()

	_, err := l.Load()
	require.NoError(t, err)

	called := make(chan struct{}, 1)
	l.OnChange(func(*Config) { called <- struct{}{} })
	require.NoError(t, l.Watch())

	// Same settings, different formatting.
	require.NoError(t, os.WriteFile(path, []byte(sampleTOML+"\n# saved again\n"), 0600))

	select {
	case <-called:
		t.Fatal("callback ran for an unchanged config")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestLoaderWatchTwice(t *testing.T) {
	l := NewLoader(writeFile(t, "config.toml", sampleTOML))
	defer l.Close()

	require.NoError(t, l.Watch())
	assert.Error(t, l.Watch())
}

func TestLoaderCloseWithoutWatch(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "config.toml"))
	assert.NoError(t, l.Close())
	assert.NoError(t, l.Close(), "second close is a no-op")
}
