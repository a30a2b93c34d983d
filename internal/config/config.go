// Package config reads service settings from the environment. Callers load
// a .env file first (godotenv) so local runs and containers share one path.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	MaxUploadMB int64

	Transcription Transcription
	ModelPath     string
	Review        Review

	DatabaseURL string
}

type Transcription struct {
	URL          string
	Model        string
	Language     string
	Timeout      time.Duration
	MaxRetryTime time.Duration
}

type Review struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:      envOr("PORT", "8000"),
		ModelPath: envOr("MODEL_PATH", "models_data/deviation_classifier.json"),
		Transcription: Transcription{
			URL:      strings.TrimRight(os.Getenv("TRANSCRIBE_URL"), "/"),
			Model:    envOr("WHISPER_MODEL", "medium"),
			Language: envOr("TRANSCRIBE_LANGUAGE", "pt"),
		},
		Review: Review{
			APIKey:  strings.TrimSpace(os.Getenv("LLM_API_KEY")),
			BaseURL: strings.TrimRight(envOr("LLM_GATEWAY_URL", "https://routellm.abacus.ai/v1"), "/"),
			Model:   envOr("LLM_MODEL", "auto"),
		},
		DatabaseURL: os.Getenv("DATABASE_URL"),
	}

	var err error
	if cfg.MaxUploadMB, err = envInt("MAX_UPLOAD_MB", 50); err != nil {
		return nil, err
	}
	if cfg.Transcription.Timeout, err = envDuration("TRANSCRIBE_TIMEOUT", 120*time.Second); err != nil {
		return nil, err
	}
	if cfg.Transcription.MaxRetryTime, err = envDuration("TRANSCRIBE_MAX_RETRY", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Review.Timeout, err = envDuration("LLM_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", c.Port)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.MaxUploadMB)
	}
	if strings.TrimSpace(c.ModelPath) == "" {
		return fmt.Errorf("MODEL_PATH must not be empty")
	}
	if c.Review.Timeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) Addr() string { return ":" + c.Port }

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int64) (int64, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

func envDuration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return d, nil
}
