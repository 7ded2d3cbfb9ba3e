// Package config loads process configuration from a YAML file, .env files
// and environment variables. Environment variables win over the file so
// deployments can override without editing config.yaml.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "git.home.luguber.info/inful/appforge/internal/errors"
)

// Config is the root configuration for the appforge daemon.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	GitHub  GitHubConfig  `yaml:"github"`
	Gemini  GeminiConfig  `yaml:"gemini"`
	Retry   RetryConfig   `yaml:"retry"`
	Pages   PagesConfig   `yaml:"pages"`
	History HistoryConfig `yaml:"history"`
	Events  EventsConfig  `yaml:"events"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	Workers     int      `yaml:"workers"`      // pipeline worker pool size
	QueueSize   int      `yaml:"queue_size"`   // pending job buffer
	StopTimeout Duration `yaml:"stop_timeout"` // graceful shutdown bound
}

// AuthConfig holds the shared secret for inbound requests.
type AuthConfig struct {
	Secret string `yaml:"secret"`
}

// GitHubConfig identifies the hosting account.
type GitHubConfig struct {
	Token    string `yaml:"token"`
	Username string `yaml:"username"`
	APIURL   string `yaml:"api_url"`  // default https://api.github.com
	BaseURL  string `yaml:"base_url"` // default https://github.com
}

// GeminiConfig identifies the generative model service.
type GeminiConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"` // default https://generativelanguage.googleapis.com
}

// RetryConfig groups the per-component retry policies.
type RetryConfig struct {
	Notify PolicyConfig `yaml:"notify"`
	Forge  PolicyConfig `yaml:"forge"`
	LLM    PolicyConfig `yaml:"llm"`
}

// PolicyConfig is the wire form of a retry policy.
type PolicyConfig struct {
	MaxAttempts  int      `yaml:"max_attempts"`
	InitialDelay Duration `yaml:"initial_delay"`
	MaxDelay     Duration `yaml:"max_delay"`
}

// PagesConfig controls static-site activation and readiness polling.
type PagesConfig struct {
	PollAttempts int      `yaml:"poll_attempts"`
	PollInterval Duration `yaml:"poll_interval"`
	SettleDelay  Duration `yaml:"settle_delay"` // wait after repo creation
}

// HistoryConfig controls the SQLite build-history store.
type HistoryConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Path       string   `yaml:"path"` // ":memory:" or a file path
	Retention  Duration `yaml:"retention"`
	PruneEvery Duration `yaml:"prune_every"`
}

// EventsConfig controls optional NATS lifecycle event publishing.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// LoggingConfig controls the slog setup.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // text|json
}

// Load reads the config file (if present), layers .env files and
// environment overrides on top, applies defaults and validates.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, apperrors.Wrap(err, apperrors.CategoryConfig, "parse %s", path)
			}
		case os.IsNotExist(err):
			// Config file is optional; env can carry everything.
		default:
			return nil, apperrors.Wrap(err, apperrors.CategoryConfig, "read %s", path)
		}
	}

	loadEnvFiles()
	applyEnvOverrides(cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.Workers <= 0 {
		c.Server.Workers = 4
	}
	if c.Server.QueueSize <= 0 {
		c.Server.QueueSize = 64
	}
	if c.Server.StopTimeout <= 0 {
		c.Server.StopTimeout = Duration(30 * time.Second)
	}
	if c.GitHub.APIURL == "" {
		c.GitHub.APIURL = "https://api.github.com"
	}
	if c.GitHub.BaseURL == "" {
		c.GitHub.BaseURL = "https://github.com"
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = "gemini-2.5-pro"
	}
	if c.Gemini.BaseURL == "" {
		c.Gemini.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if c.Retry.Notify.MaxAttempts <= 0 {
		c.Retry.Notify.MaxAttempts = 5
	}
	if c.Retry.Notify.InitialDelay <= 0 {
		c.Retry.Notify.InitialDelay = Duration(time.Second)
	}
	if c.Retry.Notify.MaxDelay <= 0 {
		c.Retry.Notify.MaxDelay = Duration(60 * time.Second)
	}
	if c.Retry.Forge.MaxAttempts <= 0 {
		c.Retry.Forge.MaxAttempts = 3
	}
	if c.Retry.Forge.InitialDelay <= 0 {
		c.Retry.Forge.InitialDelay = Duration(time.Second)
	}
	if c.Retry.Forge.MaxDelay <= 0 {
		c.Retry.Forge.MaxDelay = Duration(30 * time.Second)
	}
	if c.Retry.LLM.MaxAttempts <= 0 {
		c.Retry.LLM.MaxAttempts = 3
	}
	if c.Retry.LLM.InitialDelay <= 0 {
		c.Retry.LLM.InitialDelay = Duration(2 * time.Second)
	}
	if c.Retry.LLM.MaxDelay <= 0 {
		c.Retry.LLM.MaxDelay = Duration(32 * time.Second)
	}
	if c.Pages.PollAttempts <= 0 {
		c.Pages.PollAttempts = 10
	}
	if c.Pages.PollInterval <= 0 {
		c.Pages.PollInterval = Duration(10 * time.Second)
	}
	if c.Pages.SettleDelay <= 0 {
		c.Pages.SettleDelay = Duration(2 * time.Second)
	}
	if c.History.Path == "" {
		c.History.Path = "appforge-history.db"
	}
	if c.History.Retention <= 0 {
		c.History.Retention = Duration(30 * 24 * time.Hour)
	}
	if c.History.PruneEvery <= 0 {
		c.History.PruneEvery = Duration(6 * time.Hour)
	}
	if c.Events.Subject == "" {
		c.Events.Subject = "appforge.builds"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that everything required for serving is present.
func (c *Config) Validate() error {
	if c.Auth.Secret == "" {
		return apperrors.New(apperrors.CategoryConfig, "auth secret is required (APP_SECRET)")
	}
	if c.GitHub.Token == "" {
		return apperrors.New(apperrors.CategoryConfig, "github token is required (GITHUB_TOKEN)")
	}
	if c.GitHub.Username == "" {
		return apperrors.New(apperrors.CategoryConfig, "github username is required (GITHUB_USERNAME)")
	}
	if c.Gemini.APIKey == "" {
		return apperrors.New(apperrors.CategoryConfig, "gemini api key is required (GEMINI_API_KEY)")
	}
	if c.Events.Enabled && c.Events.NATSURL == "" {
		return apperrors.New(apperrors.CategoryConfig, "events enabled but nats_url is empty")
	}
	for _, p := range []struct {
		name string
		pc   PolicyConfig
	}{{"notify", c.Retry.Notify}, {"forge", c.Retry.Forge}, {"llm", c.Retry.LLM}} {
		if p.pc.MaxAttempts < 1 {
			return apperrors.New(apperrors.CategoryConfig, "retry.%s: max attempts must be >=1", p.name)
		}
		if p.pc.MaxDelay < p.pc.InitialDelay {
			return apperrors.New(apperrors.CategoryConfig, "retry.%s: max delay below initial delay", p.name)
		}
	}
	return nil
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
