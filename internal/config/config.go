// Package config loads cubed's runtime configuration from YAML, with
// environment variable overrides, following the struct-tag + yaml.v3
// convention used across the example pack's services.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/cubedgo/cubed/internal/logging"
)

// Config is the top-level cubed runtime configuration.
type Config struct {
	// AllowedMem is the per-task memory budget in bytes, enforced at
	// primitive-operation construction time.
	AllowedMem int64 `yaml:"allowed_mem"`
	// ReservedMem is subtracted from AllowedMem's headroom before any
	// input/output bytes are counted, covering fixed runtime overhead.
	ReservedMem int64 `yaml:"reserved_mem"`
	// Workers bounds how many tasks LocalRuntime runs concurrently.
	Workers int `yaml:"workers"`
	// RetryAttempts bounds how many times a task is attempted in total when
	// it keeps failing with a retriable store failure (3 means at most 2
	// retries) before the task is abandoned.
	RetryAttempts int `yaml:"retry_attempts"`
	// LogLevel is one of "error", "warn", "info", "debug".
	LogLevel string `yaml:"log_level"`
	// NamePrefix is a prefix for generated names. It is loaded and
	// overridable, but nothing in this module reads it: the fusion engine
	// names fused kernels with the fixed prefix "fused".
	NamePrefix string `yaml:"name_prefix"`
	// MaxTotalInputBlocks is a cap on a multi-predecessor fuse's total
	// input blocks, matching fusion.Options.MaxTotalInputBlocks. Nothing in
	// this module copies it into fusion.Options.
	MaxTotalInputBlocks int `yaml:"max_total_input_blocks"`
}

// Default returns the configuration used when no file or overrides are
// supplied.
func Default() Config {
	return Config{
		AllowedMem:    2 << 30, // 2 GiB
		ReservedMem:   100 << 20,
		Workers:       4,
		RetryAttempts: 3,
		LogLevel:      "info",
		NamePrefix:    "cubed",
	}
}

// Load reads YAML configuration from path, starting from Default and then
// applying environment variable overrides. A path of "" skips the file and
// returns Default with overrides applied.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("CUBED_ALLOWED_MEM"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.AllowedMem = n
		} else {
			logging.Default.Warnf("config: ignoring invalid CUBED_ALLOWED_MEM=%q: %v", v, err)
		}
	}
	if v, ok := os.LookupEnv("CUBED_RESERVED_MEM"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.ReservedMem = n
		} else {
			logging.Default.Warnf("config: ignoring invalid CUBED_RESERVED_MEM=%q: %v", v, err)
		}
	}
	if v, ok := os.LookupEnv("CUBED_WORKERS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		} else {
			logging.Default.Warnf("config: ignoring invalid CUBED_WORKERS=%q: %v", v, err)
		}
	}
	if v, ok := os.LookupEnv("CUBED_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("CUBED_NAME_PREFIX"); ok {
		cfg.NamePrefix = v
	}
}
