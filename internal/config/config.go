// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AIConfig struct {
	GeminiKey    string        `yaml:"gemini_key"`
	GeminiURL    string        `yaml:"gemini_url"`
	GeminiModel  string        `yaml:"gemini_model"`
	OpenAIKey    string        `yaml:"openai_key"`
	OpenAIModel  string        `yaml:"openai_model"`
	CallTimeout  time.Duration `yaml:"call_timeout"`  // per external-service call
	FetchTimeout time.Duration `yaml:"fetch_timeout"` // per reference download
}

type StorageConfig struct {
	Path    string `yaml:"path"`     // filesystem root for generated images
	BaseURL string `yaml:"base_url"` // public URL prefix for stored files
}

type WorkerConfig struct {
	Workers        int           `yaml:"workers"`         // pool size for trigger-driven runs
	PollInterval   time.Duration `yaml:"poll_interval"`   // standalone worker claim cadence
	StuckThreshold time.Duration `yaml:"stuck_threshold"` // processing jobs older than this are reclaimed
}

type WebConfig struct {
	Port          int    `yaml:"port"`
	WorkerSecret  string `yaml:"worker_secret"`   // shared secret for the worker trigger
	JWTHMACSecret string `yaml:"jwt_hmac_secret"` // alternative authenticated-caller path
}

type TrackerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	InitialDelay time.Duration `yaml:"initial_delay"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Storage  StorageConfig  `yaml:"storage"`
	Worker   WorkerConfig   `yaml:"worker"`
	Web      WebConfig      `yaml:"web"`
	Tracker  TrackerConfig  `yaml:"tracker"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.AI.GeminiModel == "" {
		cfg.AI.GeminiModel = "gemini-2.5-flash-image"
	}
	if cfg.AI.OpenAIModel == "" {
		cfg.AI.OpenAIModel = "gpt-image-1"
	}
	if cfg.AI.CallTimeout <= 0 {
		cfg.AI.CallTimeout = 60 * time.Second
	}
	if cfg.AI.FetchTimeout <= 0 {
		cfg.AI.FetchTimeout = 15 * time.Second
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "./storage"
	}
	if cfg.Worker.Workers <= 0 {
		cfg.Worker.Workers = 4
	}
	if cfg.Worker.PollInterval <= 0 {
		cfg.Worker.PollInterval = 2 * time.Second
	}
	if cfg.Worker.StuckThreshold <= 0 {
		cfg.Worker.StuckThreshold = 3 * time.Minute
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Tracker.PollInterval <= 0 {
		cfg.Tracker.PollInterval = 5 * time.Second
	}
	if cfg.Tracker.InitialDelay <= 0 {
		cfg.Tracker.InitialDelay = 2 * time.Second
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
