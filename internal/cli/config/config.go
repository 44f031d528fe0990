package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL     = "http://127.0.0.1:8000"
	DefaultTimeout     = 30 * time.Second
	DefaultStatePath   = "configs/cli_state.json"
	DefaultHistoryFile = ".arete_history"
)

// Config holds CLI configuration.
type Config struct {
	BaseURL     string        `yaml:"baseURL"`
	Timeout     time.Duration `yaml:"timeout"`
	StatePath   string        `yaml:"statePath"`
	HistoryFile string        `yaml:"historyFile"`
	PrettyJSON  *bool         `yaml:"prettyJSON"`
}

// Load reads path. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return cfg, fmt.Errorf("read config file failed: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file failed: %w", err)
		}
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.StatePath == "" {
		cfg.StatePath = DefaultStatePath
	}
	if cfg.HistoryFile == "" {
		cfg.HistoryFile = DefaultHistoryFile
	}
	if cfg.PrettyJSON == nil {
		value := true
		cfg.PrettyJSON = &value
	}
}
