// Package config loads and validates goldtest suite configuration.
// Configuration lives in a goldtest.yaml file at the suite root; every
// field has a sensible default so a minimal file only names the tool
// under test.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file goldtest looks for at the suite root.
const DefaultFileName = "goldtest.yaml"

// Config holds all goldtest configuration.
type Config struct {
	// Name identifies the suite in reports and history.
	Name string `yaml:"name"`

	// Tool under test.
	Tool ToolConfig `yaml:"tool"`

	// Suite discovery settings.
	Suite SuiteConfig `yaml:"suite"`

	// Execution settings.
	Execution ExecutionConfig `yaml:"execution"`

	// Output normalization rules.
	Normalize NormalizeConfig `yaml:"normalize"`

	// Run history storage.
	History HistoryConfig `yaml:"history"`

	// Debug logging.
	Logging LoggingConfig `yaml:"logging"`
}

// ToolConfig describes the binary whose diagnostics are under test.
type ToolConfig struct {
	// Binary is the executable to run for each case (e.g. "rustc", "mylint").
	Binary string `yaml:"binary"`

	// Args are prepended to every case's arguments. The source file path
	// is appended after these unless a case overrides args entirely.
	Args []string `yaml:"args"`

	// Env lists KEY=VALUE pairs set for every invocation.
	Env []string `yaml:"env"`
}

// SuiteConfig controls test case discovery.
type SuiteConfig struct {
	// Roots are directories scanned for test cases, relative to the
	// suite root.
	Roots []string `yaml:"roots"`

	// SourceExtensions are file extensions treated as test programs.
	SourceExtensions []string `yaml:"source_extensions"`

	// GoldenSuffix is the expected-stderr file suffix.
	GoldenSuffix string `yaml:"golden_suffix"`

	// StdoutSuffix is the optional expected-stdout file suffix.
	StdoutSuffix string `yaml:"stdout_suffix"`

	// DirectivePrefix introduces header directives in test sources.
	DirectivePrefix string `yaml:"directive_prefix"`
}

// ExecutionConfig configures the tool executor.
type ExecutionConfig struct {
	// Workers is the number of cases run in parallel. Zero means GOMAXPROCS.
	Workers int `yaml:"workers"`

	// DefaultTimeout bounds a single tool invocation.
	DefaultTimeout string `yaml:"default_timeout"`

	// MaxOutputBytes caps captured stdout/stderr per stream.
	MaxOutputBytes int64 `yaml:"max_output_bytes"`

	// AllowedEnvVars are host environment variables passed through to
	// the tool. Everything else is stripped for reproducibility.
	AllowedEnvVars []string `yaml:"allowed_env_vars"`
}

// NormalizeConfig configures output normalization before comparison.
type NormalizeConfig struct {
	// CRLF converts \r\n to \n in captured output and goldens.
	CRLF bool `yaml:"crlf"`

	// TrimTrailingSpace strips trailing whitespace on each line.
	TrimTrailingSpace bool `yaml:"trim_trailing_space"`

	// Rules are regex replacements applied in order after the built-in
	// path placeholders.
	Rules []ReplaceRule `yaml:"rules"`
}

// ReplaceRule is a single regex -> replacement normalization rule.
type ReplaceRule struct {
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// HistoryConfig configures the sqlite run-history store.
type HistoryConfig struct {
	// Enabled controls whether run results are recorded.
	Enabled bool `yaml:"enabled"`

	// DatabasePath is relative to the suite root unless absolute.
	DatabasePath string `yaml:"database_path"`

	// Keep is how many runs to retain; older runs are pruned. Zero keeps all.
	Keep int `yaml:"keep"`
}

// LoggingConfig configures debug logging.
type LoggingConfig struct {
	Debug bool   `yaml:"debug"`
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "goldtest",

		Suite: SuiteConfig{
			Roots:            []string{"tests"},
			SourceExtensions: []string{".rs", ".c", ".go", ".src"},
			GoldenSuffix:     ".stderr",
			StdoutSuffix:     ".stdout",
			DirectivePrefix:  "//@",
		},

		Execution: ExecutionConfig{
			Workers:        runtime.GOMAXPROCS(0),
			DefaultTimeout: "30s",
			MaxOutputBytes: 10 * 1024 * 1024, // 10MB
			AllowedEnvVars: []string{"PATH", "HOME", "USER", "LANG", "LC_ALL", "TMPDIR"},
		},

		Normalize: NormalizeConfig{
			CRLF:              true,
			TrimTrailingSpace: false,
		},

		History: HistoryConfig{
			Enabled:      true,
			DatabasePath: filepath.Join(".goldtest", "history.db"),
			Keep:         200,
		},

		Logging: LoggingConfig{
			Debug: false,
			Level: "info",
		},
	}
}

// Load reads configuration from a YAML file, falling back to defaults
// for any missing fields. A missing file returns pure defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies GOLDTEST_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if bin := os.Getenv("GOLDTEST_TOOL"); bin != "" {
		c.Tool.Binary = bin
	}
	if timeout := os.Getenv("GOLDTEST_TIMEOUT"); timeout != "" {
		c.Execution.DefaultTimeout = timeout
	}
	if workers := os.Getenv("GOLDTEST_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil && n > 0 {
			c.Execution.Workers = n
		}
	}
	if db := os.Getenv("GOLDTEST_DB"); db != "" {
		c.History.DatabasePath = db
	}
	if os.Getenv("GOLDTEST_DEBUG") == "1" {
		c.Logging.Debug = true
		c.Logging.Level = "debug"
	}
}

// GetDefaultTimeout returns the execution timeout as a duration.
func (c *Config) GetDefaultTimeout() time.Duration {
	d, err := time.ParseDuration(c.Execution.DefaultTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Tool.Binary == "" {
		return fmt.Errorf("tool.binary is required (set it in %s or GOLDTEST_TOOL)", DefaultFileName)
	}
	if len(c.Suite.Roots) == 0 {
		return fmt.Errorf("suite.roots must name at least one directory")
	}
	if c.Suite.GoldenSuffix == "" {
		return fmt.Errorf("suite.golden_suffix must not be empty")
	}
	if _, err := time.ParseDuration(c.Execution.DefaultTimeout); err != nil {
		return fmt.Errorf("invalid execution.default_timeout %q: %w", c.Execution.DefaultTimeout, err)
	}
	for i, rule := range c.Normalize.Rules {
		if rule.Pattern == "" {
			return fmt.Errorf("normalize.rules[%d]: empty pattern", i)
		}
	}
	return nil
}
