// Package config holds the runtime settings an application embedding the
// scheduler typically wants to tune: logging, pool sizing, and the optional
// run journal.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/me/genrun/pkg/executor"
)

// Config is the YAML-loadable runtime configuration.
type Config struct {
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text or json

	Workers    int     `yaml:"workers"`     // pool worker goroutines
	QueueSize  int     `yaml:"queue_size"`  // pool task queue capacity
	SubmitRate float64 `yaml:"submit_rate"` // tasks/sec, 0 = unlimited

	JournalPath string `yaml:"journal_path"` // empty disables the journal
}

// Default returns sensible defaults.
func Default() Config {
	pool := executor.DefaultPoolConfig()
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		Workers:   pool.Workers,
		QueueSize: pool.QueueSize,
	}
}

// Load reads a YAML config file, applying defaults for absent fields.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings the pool or logger cannot honor.
func (c Config) Validate() error {
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: unknown log_format %q", c.LogFormat)
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must not be negative, got %d", c.Workers)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("config: queue_size must not be negative, got %d", c.QueueSize)
	}
	if c.SubmitRate < 0 {
		return fmt.Errorf("config: submit_rate must not be negative, got %g", c.SubmitRate)
	}
	return nil
}

// Pool maps the config onto the executor pool settings.
func (c Config) Pool() executor.PoolConfig {
	return executor.PoolConfig{
		Workers:    c.Workers,
		QueueSize:  c.QueueSize,
		SubmitRate: c.SubmitRate,
	}
}
