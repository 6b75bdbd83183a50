package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// AppConfig is loaded from an optional YAML file and then overridden by
// environment variables. Env wins so deployments can keep one file and
// tweak per instance.
type AppConfig struct {
	ListenAddr string `yaml:"listen_addr"`

	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`

	AdvisorURL string `yaml:"advisor_url"`

	GraceWindow    time.Duration `yaml:"grace_window"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
	MaxQueueLength int           `yaml:"max_queue_length"`

	RecordRetries int `yaml:"record_retries"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func defaults() *AppConfig {
	return &AppConfig{
		ListenAddr:     ":8080",
		GraceWindow:    60 * time.Second,
		SessionTTL:     24 * time.Hour,
		MaxQueueLength: 500,
		RecordRetries:  3,
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// Load reads path (if non-empty and present) and applies env overrides.
func Load(path string) (*AppConfig, error) {
	cfg := defaults()

	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("ADVISOR_URL")); v != "" {
		cfg.AdvisorURL = v
	}
	if v := strings.TrimSpace(os.Getenv("GRACE_WINDOW")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid GRACE_WINDOW %q", v)
		}
		cfg.GraceWindow = d
	}
	if v := strings.TrimSpace(os.Getenv("SESSION_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid SESSION_TTL %q", v)
		}
		cfg.SessionTTL = d
	}
	if v := strings.TrimSpace(os.Getenv("MAX_QUEUE_LENGTH")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxQueueLength = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("RECORD_RETRIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.RecordRetries = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_FORMAT")); v != "" {
		cfg.LogFormat = v
	}

	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return nil, errors.New("listen_addr is required")
	}
	if cfg.GraceWindow <= 0 {
		return nil, errors.New("grace_window must be positive")
	}

	return cfg, nil
}
