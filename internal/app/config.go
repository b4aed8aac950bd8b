package app

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	BaseURL           string `yaml:"base_url"`
	HistoryPath       string `yaml:"history_path"`
	RequestTimeoutSec int    `yaml:"request_timeout_sec"`
	Theme             string `yaml:"theme"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:           "http://localhost:8000",
		HistoryPath:       DefaultHistoryPath(),
		RequestTimeoutSec: 120,
		Theme:             "porcelain",
	}
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = DefaultConfigPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return cfg, err
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	// Environment overrides the file.
	if v := strings.TrimSpace(os.Getenv("DOCCHAT_BASE_URL")); v != "" {
		cfg.BaseURL = v
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8000"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HistoryPath == "" {
		cfg.HistoryPath = DefaultHistoryPath()
	}
	if cfg.RequestTimeoutSec <= 0 {
		cfg.RequestTimeoutSec = 120
	}
	if cfg.Theme == "" {
		cfg.Theme = "porcelain"
	}
	return cfg, nil
}

func SaveConfig(cfg Config, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	if path == "" {
		return errors.New("no path provided for config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func DefaultConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "docchat", "config.yml")
}

// DefaultHistoryPath prefers the XDG data dir and falls back to
// ~/.local/share, mirroring where other local state lives.
func DefaultHistoryPath() string {
	if base := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); base != "" {
		return filepath.Join(base, "docchat", "history.json")
	}
	if base, err := os.UserHomeDir(); err == nil && base != "" {
		return filepath.Join(base, ".local", "share", "docchat", "history.json")
	}
	return filepath.Join(os.TempDir(), "docchat", "history.json")
}
