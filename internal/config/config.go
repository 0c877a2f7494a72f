// Package config loads engine configuration: compiled defaults, then an
// optional YAML file, then environment overrides, in that order.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/wavemem/waverag/internal/wave"
	"github.com/wavemem/waverag/internal/waverr"
)

// Config is the full application configuration.
type Config struct {
	// Pipeline holds the three-stage search tuning.
	Pipeline wave.Config `yaml:"pipeline"`

	// DataDir is where matrices and indexes persist.
	DataDir string `yaml:"data_dir"`

	// VectorDim is the dense vector dimension for the ANN index.
	VectorDim int `yaml:"vector_dim"`

	// Logging settings.
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig mirrors the logging package options in YAML form.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		Pipeline:  wave.DefaultConfig(),
		DataDir:   defaultDataDir(),
		VectorDim: 768,
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".waverag")
	}
	return filepath.Join(home, ".waverag")
}

// Load builds the effective configuration. A missing file is not an
// error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, waverr.IOError("config: read file", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, waverr.New(waverr.ErrCodeConfigInvalid, "config: malformed YAML", err)
		}
	}

	applyEnv(&cfg)
	cfg.Pipeline = cfg.Pipeline.Normalized()
	return cfg, nil
}

// applyEnv overlays WAVERAG_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("WAVERAG_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("WAVERAG_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WAVERAG_VECTOR_DIM"); v != "" {
		if dim, err := strconv.Atoi(v); err == nil && dim > 0 {
			cfg.VectorDim = dim
		}
	}
}

// DefaultPath returns the conventional config file location.
func DefaultPath() string {
	return filepath.Join(defaultDataDir(), "config.yaml")
}
