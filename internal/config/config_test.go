package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
version = 2

[playback]
fast_path_max_segments = 5
modifier_settle_ms = 20
poll_interval_ms = 25
drain_interval_ms = 5

[logging]
level = "debug"

[[macros]]
name = "Greeting"
hotkey = "ctrl+shift+g"
text = "Hello{Enter}"
delay_ms = 0

[[macros]]
name = "Signature"
hotkey = "ctrl+shift+s"
text = "Best regards,{Enter}Me"
delay_ms = 20
group = "Email"
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, Version, cfg.Version)
	assert.Equal(t, 10, cfg.Playback.FastPathMaxSegments)
	assert.Equal(t, 50*time.Millisecond, cfg.Playback.ModifierSettle())
	assert.Equal(t, 50*time.Millisecond, cfg.Playback.PollInterval())
	assert.Equal(t, 3*time.Second, cfg.Notifications.Debounce())
	assert.Empty(t, cfg.Macros)
	assert.Contains(t, cfg.History.Path, "keyblast")
	assert.NoError(t, cfg.Validate())
}

func TestConfigPath(t *testing.T) {
	t.Setenv("KEYBLAST_CONFIG_DIR", "")
	path := ConfigPath()
	assert.True(t, strings.HasSuffix(path, "config.toml"), path)
	assert.Contains(t, path, "keyblast")

	dir := t.TempDir()
	t.Setenv("KEYBLAST_CONFIG_DIR", dir)
	assert.Equal(t, filepath.Join(dir, "config.toml"), ConfigPath())
}

func TestFindConfigFile(t *testing.T) {
	configDir := t.TempDir()
	t.Setenv("KEYBLAST_CONFIG_DIR", configDir)
	t.Chdir(t.TempDir())

	assert.Empty(t, FindConfigFile())

	yamlPath := filepath.Join(configDir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("version: 2\n"), 0600))
	assert.Equal(t, yamlPath, FindConfigFile())

	require.NoError(t, os.WriteFile("config.json", []byte(`{"version": 2}`), 0600))
	assert.Equal(t, filepath.Join(".", "config.json"), FindConfigFile(), "working directory wins")
}

func TestLoadNonexistent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Playback, cfg.Playback)
}

func TestLoadTOML(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.toml", sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Playback.FastPathMaxSegments)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Unset keys keep their defaults.
	assert.Equal(t, "text", cfg.Logging.Format)
	require.Len(t, cfg.Macros, 2)

	sig, ok := cfg.Macro("Signature")
	require.True(t, ok)
	assert.Equal(t, 20*time.Millisecond, sig.Delay())
	assert.Equal(t, time.Duration(math.MaxInt64), MacroDefinition{DelayMs: math.MaxUint64}.Delay())
	assert.Equal(t, "Email", sig.GroupName())

	greet, _ := cfg.Macro("Greeting")
	assert.Equal(t, "Ungrouped", greet.GroupName())

	_, ok = cfg.Macro("missing")
	assert.False(t, ok)

	groups := cfg.Groups()
	assert.Len(t, groups["Email"], 1)
	assert.Len(t, groups["Ungrouped"], 1)
}

func TestLoadJSONAndYAML(t *testing.T) {
	jsonPath := writeFile(t, "config.json", `{"version": 2, "macros": [{"name": "j", "hotkey": "ctrl+j", "text": "json"}]}`)
	cfg, err := Load(jsonPath)
	require.NoError(t, err)
	require.Len(t, cfg.Macros, 1)
	assert.Equal(t, "json", cfg.Macros[0].Text)

	yamlPath := writeFile(t, "config.yaml", "version: 2\nmacros:\n  - name: y\n    hotkey: ctrl+y\n    text: yaml\n    delay_ms: 5\n")
	cfg, err = Load(yamlPath)
	require.NoError(t, err)
	require.Len(t, cfg.Macros, 1)
	assert.Equal(t, uint64(5), cfg.Macros[0].DelayMs)
}

func TestLoadAutoDetect(t *testing.T) {
	cfg, err := Load(writeFile(t, "keyblastrc", sampleTOML))
	require.NoError(t, err)
	assert.Len(t, cfg.Macros, 2)
}

func TestLoadInvalidTOML(t *testing.T) {
	_, err := Load(writeFile(t, "config.toml", "version = [unclosed"))
	assert.Error(t, err)
}

func TestLoadMigratesVersionOne(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.toml", "version = 1\n\n[[macros]]\nname = \"a\"\nhotkey = \"ctrl+a\"\ntext = \"x\"\n"))
	require.NoError(t, err)
	assert.Equal(t, Version, cfg.Version)
	assert.Equal(t, 50, cfg.Playback.PollIntervalMs)
}

func TestLoadRejectsNewerVersion(t *testing.T) {
	_, err := Load(writeFile(t, "config.toml", "version = 99\n"))
	var verr *UnsupportedVersionError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 99, verr.Version)
}

func TestMigrateConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Version = 0
	assert.True(t, NeedsMigration(cfg))

	changes := MigrateConfig(cfg)
	assert.Len(t, changes, 2)
	assert.Equal(t, Version, cfg.Version)
	assert.Empty(t, MigrateConfig(cfg))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KEYBLAST_LOG_LEVEL", "error")
	t.Setenv("KEYBLAST_HISTORY_PATH", "/tmp/h.db")
	t.Setenv("KEYBLAST_NOTIFICATIONS", "false")
	t.Setenv("KEYBLAST_POLL_INTERVAL_MS", "7")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.toml"))
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, "/tmp/h.db", cfg.History.Path)
	assert.False(t, cfg.Notifications.Enabled)
	assert.Equal(t, 7, cfg.Playback.PollIntervalMs)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	for _, ext := range []string{"toml", "json", "yaml"} {
		t.Run(ext, func(t *testing.T) {
			cfg, err := Load(writeFile(t, "config.toml", sampleTOML))
			require.NoError(t, err)

			path := filepath.Join(t.TempDir(), "nested", "config."+ext)
			require.NoError(t, SaveConfig(cfg, path))

			info, err := os.Stat(path)
			require.NoError(t, err)
			if runtime.GOOS != "windows" {
				assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
			}

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, cfg.Macros, loaded.Macros)
			assert.Equal(t, cfg.Playback, loaded.Playback)

			leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
			assert.Empty(t, leftovers)
		})
	}
}

func TestLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, created, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotNil(t, cfg)

	_, created, err = LoadOrCreate(path)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestClone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Macros = append(cfg.Macros, MacroDefinition{Name: "a"})

	clone := cfg.Clone()
	clone.Macros[0].Name = "b"
	assert.Equal(t, "a", cfg.Macros[0].Name)
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Logging.FilePath = filepath.Join(dir, "logs", "k.log")
	cfg.History.Path = filepath.Join(dir, "data", "h.db")

	require.NoError(t, cfg.EnsureDirectories())
	assert.DirExists(t, filepath.Join(dir, "logs"))
	assert.DirExists(t, filepath.Join(dir, "data"))
}

func TestValidateErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Version = 0
	cfg.Playback.PollIntervalMs = 0
	cfg.Playback.FastPathMaxSegments = -2
	cfg.Logging.Level = "loud"
	cfg.Logging.Output = "syslog"
	cfg.History.MaxRuns = -1
	cfg.Macros = []MacroDefinition{{Name: " ", Hotkey: "ctrl+a", Text: "x"}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	fields := make([]string, 0, len(verrs))
	for _, v := range verrs {
		fields = append(fields, v.Field)
	}
	assert.ElementsMatch(t, []string{
		"version",
		"playback.poll_interval_ms",
		"playback.fast_path_max_segments",
		"logging.level",
		"logging.output",
		"history.max_runs",
		"macros[0].name",
	}, fields)
}

func TestValidateWarnings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Macros = []MacroDefinition{
		{Name: "a", Hotkey: "ctrl+shift+k", Text: "1"},
		{Name: "a", Hotkey: "Ctrl+Shift+K", Text: "2"},
		{Name: "b", Hotkey: "ctrl+nope", Text: "3"},
	}

	require.NoError(t, cfg.Validate(), "warnings must not fail validation")

	warnings := cfg.Warnings()
	require.Len(t, warnings, 3)
	msgs := warnings.Error()
	assert.Contains(t, msgs, "duplicate macro name: 'a'")
	assert.Contains(t, msgs, "hotkey 'ctrl+shift+k' used by multiple macros: a, a")
	assert.Contains(t, msgs, "unknown key")
	for _, w := range warnings {
		assert.True(t, w.IsWarning())
		assert.False(t, errors.Is(&w, ErrInvalidConfig))
	}
	assert.False(t, warnings.HasErrors())
}

func TestParseHotkey(t *testing.T) {
	tests := []struct {
		in   string
		want string
		mods HotkeyModifiers
	}{
		{"ctrl+shift+k", "ctrl+shift+k", HotkeyCtrl | HotkeyShift},
		{"CTRL+SHIFT+K", "ctrl+shift+k", HotkeyCtrl | HotkeyShift},
		{"option+a", "alt+a", HotkeyAlt},
		{"cmd+1", "meta+1", HotkeyMeta},
		{"super+win+f12", "meta+f12", HotkeyMeta},
		{"control + alt + F1", "ctrl+alt+f1", HotkeyCtrl | HotkeyAlt},
		{"z", "z", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			hk, err := ParseHotkey(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, hk.String())
			assert.Equal(t, tt.mods, hk.Modifiers)
		})
	}

	for _, bad := range []string{"", "ctrl+shift", "ctrl+f13", "ctrl+f0", "ctrl+enter", "ctrl+a+b", "ctrl+ab"} {
		_, err := ParseHotkey(bad)
		assert.ErrorIs(t, err, ErrInvalidHotkey, bad)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	macros := []MacroDefinition{
		{Name: "one", Hotkey: "ctrl+1", Text: "First{Enter}"},
		{Name: "two", Hotkey: "ctrl+2", Text: "Second", DelayMs: 15, Group: "G"},
	}

	for _, ext := range []string{"toml", "json", "yml"} {
		path := filepath.Join(t.TempDir(), "export."+ext)
		require.NoError(t, ExportMacros(macros, path))

		imported, err := ImportMacros(path)
		require.NoError(t, err)
		assert.Equal(t, macros, imported, ext)
	}
}

func TestImportDedupesWithinFile(t *testing.T) {
	path := writeFile(t, "import.toml", `
version = 1

[[macros]]
name = "dup"
hotkey = "ctrl+d"
text = "first"

[[macros]]
name = "dup"
hotkey = "ctrl+e"
text = "second"
`)
	imported, err := ImportMacros(path)
	require.NoError(t, err)
	require.Len(t, imported, 1)
	assert.Equal(t, "first", imported[0].Text)
}

func TestImportMissingFile(t *testing.T) {
	_, err := ImportMacros(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestMergeImported(t *testing.T) {
	existing := []MacroDefinition{{Name: "a"}, {Name: "b"}}
	imported := []MacroDefinition{{Name: "b", Text: "new"}, {Name: "c"}, {Name: "c"}}

	merged, skipped := MergeImported(existing, imported)
	assert.Equal(t, []MacroDefinition{{Name: "a"}, {Name: "b"}, {Name: "c"}}, merged)
	assert.Equal(t, []string{"b", "c"}, skipped)
	assert.Len(t, existing, 2)
}

func TestValidateDocument(t *testing.T) {
	require.NoError(t, ValidateDocument([]byte(sampleTOML), "toml"))
	require.NoError(t, ValidateFile(writeFile(t, "c.yaml", "version: 2\nmacros: []\n")))

	err := ValidateDocument([]byte("version = 2\nunknown_key = true\n"), "toml")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	err = ValidateDocument([]byte(`{"version": 2, "macros": [{"name": "x", "hotkey": "ctrl+x", "text": "t", "delay_ms": -1}]}`), "json")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	err = ValidateDocument([]byte(`{"macros": [{"name": "x"}]}`), "json")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	assert.NotEmpty(t, Schema())
}

func TestValidateDocumentAcceptsSavedDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, SaveConfig(DefaultConfig(), path))
	assert.NoError(t, ValidateFile(path))
}
