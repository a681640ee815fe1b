package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config collects service settings. Precedence is defaults, then the yaml
// file, then environment variables.
type Config struct {
	HTTPAddr          string `yaml:"http_addr"`
	LogLevel          string `yaml:"log_level"`
	DatabaseURL       string `yaml:"database_url"`
	APIBaseURL        string `yaml:"api_base_url"`
	APITimeoutSeconds int    `yaml:"api_timeout_seconds"`
	GenerateCount     int    `yaml:"generate_count"`
}

func Default() Config {
	return Config{
		HTTPAddr:          ":8081",
		LogLevel:          "info",
		APITimeoutSeconds: 10,
		GenerateCount:     100,
	}
}

// Load reads the optional yaml file at path (empty path skips the file) and
// applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if cfg.GenerateCount <= 0 {
		cfg.GenerateCount = Default().GenerateCount
	}
	if cfg.APITimeoutSeconds <= 0 {
		cfg.APITimeoutSeconds = Default().APITimeoutSeconds
	}
	return cfg, nil
}

// APITimeout returns the remote-fetch timeout as a duration.
func (c Config) APITimeout() time.Duration {
	return time.Duration(c.APITimeoutSeconds) * time.Second
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("API_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("GENERATE_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.GenerateCount = n
		}
	}
}
