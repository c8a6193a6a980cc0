package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for a configuration file.
const DefaultPath = ".kwforward.yaml"

// Config holds all kwforward configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Call-site rewriting
	Rewrite RewriteConfig `yaml:"rewrite"`

	// Script interpretation
	Script ScriptConfig `yaml:"script"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// RewriteConfig configures the call-site rewriter.
type RewriteConfig struct {
	Directive  string   `yaml:"directive"`   // comment marking decorated functions, without "//"
	ImportPath string   `yaml:"import_path"` // import path of package kw as seen by scripts
	Decorate   []string `yaml:"decorate"`    // functions decorated without a directive
}

// ScriptConfig configures the interpreter that runs rewritten scripts.
type ScriptConfig struct {
	// Standard library packages scripts may import. package kw is always allowed.
	AllowedPackages []string `yaml:"allowed_packages"`

	// Deadline for a single call into a script
	CallTimeout string `yaml:"call_timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "kwforward",
		Version: "0.2.0",

		Rewrite: RewriteConfig{
			Directive:  "kw:forward",
			ImportPath: "kwforward/pkg/kw",
		},

		Script: ScriptConfig{
			AllowedPackages: []string{
				"errors", "fmt", "strings", "strconv", "math", "sort",
				"time", "bytes", "regexp", "encoding/json",
			},
			CallTimeout: "5s",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if level := os.Getenv("KWFORWARD_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
		c.Logging.DebugMode = true
	}
	if d := os.Getenv("KWFORWARD_DIRECTIVE"); d != "" {
		c.Rewrite.Directive = d
	}
	if t := os.Getenv("KWFORWARD_CALL_TIMEOUT"); t != "" {
		c.Script.CallTimeout = t
	}
}

// GetCallTimeout returns the script call timeout as a duration.
func (c *Config) GetCallTimeout() time.Duration {
	d, err := time.ParseDuration(c.Script.CallTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// ValidLogLevels lists the accepted logging levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	d := strings.TrimPrefix(c.Rewrite.Directive, "//")
	if d == "" || strings.ContainsAny(d, " \t\n") {
		return fmt.Errorf("invalid rewrite directive %q", c.Rewrite.Directive)
	}
	if c.Rewrite.ImportPath == "" {
		return fmt.Errorf("rewrite import_path not configured")
	}
	if _, err := time.ParseDuration(c.Script.CallTimeout); err != nil {
		return fmt.Errorf("invalid script call_timeout %q: %w", c.Script.CallTimeout, err)
	}

	if c.Logging.Level != "" {
		valid := false
		for _, l := range ValidLogLevels {
			if c.Logging.Level == l {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
		}
	}

	return nil
}
