package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "goldtest", cfg.Name)
	assert.Equal(t, []string{"tests"}, cfg.Suite.Roots)
	assert.Equal(t, ".stderr", cfg.Suite.GoldenSuffix)
	assert.True(t, cfg.Normalize.CRLF)
}

func TestLoadMergesWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	content := `
name: rustc-ui
tool:
  binary: rustc
  args: ["--error-format=human"]
suite:
  roots: [ui, lints]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "rustc-ui", cfg.Name)
	assert.Equal(t, "rustc", cfg.Tool.Binary)
	assert.Equal(t, []string{"ui", "lints"}, cfg.Suite.Roots)
	// Untouched fields keep their defaults.
	assert.Equal(t, ".stderr", cfg.Suite.GoldenSuffix)
	assert.Equal(t, "30s", cfg.Execution.DefaultTimeout)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("GOLDTEST_TOOL sets binary", func(t *testing.T) {
		t.Setenv("GOLDTEST_TOOL", "/opt/bin/mylint")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "/opt/bin/mylint", cfg.Tool.Binary)
	})

	t.Run("GOLDTEST_WORKERS rejects garbage", func(t *testing.T) {
		t.Setenv("GOLDTEST_WORKERS", "many")

		cfg := DefaultConfig()
		before := cfg.Execution.Workers
		cfg.applyEnvOverrides()

		assert.Equal(t, before, cfg.Execution.Workers)
	})

	t.Run("GOLDTEST_DEBUG enables debug logging", func(t *testing.T) {
		t.Setenv("GOLDTEST_DEBUG", "1")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.True(t, cfg.Logging.Debug)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tool.Binary = "rustc"
	require.NoError(t, cfg.Validate())

	t.Run("missing binary", func(t *testing.T) {
		c := DefaultConfig()
		assert.Error(t, c.Validate())
	})

	t.Run("bad timeout", func(t *testing.T) {
		c := DefaultConfig()
		c.Tool.Binary = "rustc"
		c.Execution.DefaultTimeout = "soon"
		assert.Error(t, c.Validate())
	})

	t.Run("empty normalize pattern", func(t *testing.T) {
		c := DefaultConfig()
		c.Tool.Binary = "rustc"
		c.Normalize.Rules = []ReplaceRule{{Pattern: "", Replacement: "X"}}
		assert.Error(t, c.Validate())
	})
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", DefaultFileName)

	cfg := DefaultConfig()
	cfg.Tool.Binary = "clang"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "clang", loaded.Tool.Binary)
}
