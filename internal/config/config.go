// Package config loads and validates the service configuration: YAML or
// JSON5 files with $include composition and environment expansion.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/atlasdesk/switchboard/internal/artifacts"
	"github.com/atlasdesk/switchboard/internal/observability"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Storage   StorageConfig             `yaml:"storage"`
	Auth      AuthConfig                `yaml:"auth"`
	LLM       LLMConfig                 `yaml:"llm"`
	Prompts   PromptsConfig             `yaml:"prompts"`
	Tickets   TicketsConfig             `yaml:"tickets"`
	Artifacts ArtifactsConfig           `yaml:"artifacts"`
	Notify    NotifyConfig              `yaml:"notify"`
	Retention RetentionConfig           `yaml:"retention"`
	Logging   observability.LogConfig   `yaml:"logging"`
	Tracing   observability.TraceConfig `yaml:"tracing"`
}

// ServerConfig configures the HTTP gateway.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects the session/ticket persistence backend.
type StorageConfig struct {
	// Driver is "memory", "sqlite", or "postgres".
	Driver string `yaml:"driver"`

	// Path is the SQLite database file (sqlite driver).
	Path string `yaml:"path"`

	// DSN is the Postgres connection string (postgres driver).
	DSN string `yaml:"dsn"`
}

// AuthConfig configures gateway tokens.
type AuthConfig struct {
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenExpiry time.Duration `yaml:"token_expiry"`
}

// LLMConfig configures the model vendor and per-pass models.
type LLMConfig struct {
	// Provider is "openai" or "anthropic".
	Provider string `yaml:"provider"`

	OpenAIAPIKey    string `yaml:"openai_api_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`

	// PickerModel runs the routing pass; ActorModel runs both actor passes.
	PickerModel string `yaml:"picker_model"`
	ActorModel  string `yaml:"actor_model"`

	RequestTimeout time.Duration `yaml:"request_timeout"`

	KB KBConfig `yaml:"kb"`
}

// KBConfig configures the knowledge-base searcher.
type KBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	VectorStoreID string `yaml:"vector_store_id"`
	Model         string `yaml:"model"`
}

// PromptsConfig locates the prompt fragment directory.
type PromptsConfig struct {
	Dir string `yaml:"dir"`
}

// TicketsConfig configures the ticket type source.
type TicketsConfig struct {
	// SeedFile is a YAML file of ticket types loaded at startup.
	SeedFile string `yaml:"seed_file"`
}

// ArtifactsConfig configures upload storage.
type ArtifactsConfig struct {
	// Backend is "local" or "s3".
	Backend     string             `yaml:"backend"`
	Dir         string             `yaml:"dir"`
	S3          artifacts.S3Config `yaml:"s3"`
	MaxUploadMB int64              `yaml:"max_upload_mb"`
}

// NotifyConfig configures outbound notifications.
type NotifyConfig struct {
	Slack SlackConfig `yaml:"slack"`
}

// SlackConfig configures the Slack notifier.
type SlackConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// RetentionConfig configures the idle-session sweeper.
type RetentionConfig struct {
	Enabled bool `yaml:"enabled"`

	// Schedule is a cron expression; empty falls back to hourly.
	Schedule string `yaml:"schedule"`

	// MaxIdle is how long a session may sit inactive before deletion.
	MaxIdle time.Duration `yaml:"max_idle"`
}

// Load reads, merges, and validates the configuration at path.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with working defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 90 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.Driver == "sqlite" && c.Storage.Path == "" {
		c.Storage.Path = "switchboard.db"
	}
	if c.Auth.TokenExpiry == 0 {
		c.Auth.TokenExpiry = 30 * 24 * time.Hour
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.PickerModel == "" {
		c.LLM.PickerModel = c.LLM.ActorModel
	}
	if c.LLM.RequestTimeout == 0 {
		c.LLM.RequestTimeout = 60 * time.Second
	}
	if c.LLM.KB.Model == "" {
		c.LLM.KB.Model = c.LLM.ActorModel
	}
	if c.Prompts.Dir == "" {
		c.Prompts.Dir = "prompts"
	}
	if c.Artifacts.Backend == "" {
		c.Artifacts.Backend = "local"
	}
	if c.Artifacts.Dir == "" {
		c.Artifacts.Dir = "artifacts"
	}
	if c.Retention.Schedule == "" {
		c.Retention.Schedule = "0 * * * *"
	}
	if c.Retention.MaxIdle == 0 {
		c.Retention.MaxIdle = 30 * 24 * time.Hour
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.driver must be memory, sqlite, or postgres, got %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && strings.TrimSpace(c.Storage.DSN) == "" {
		return fmt.Errorf("storage.dsn is required for the postgres driver")
	}

	switch c.LLM.Provider {
	case "openai":
		if strings.TrimSpace(c.LLM.OpenAIAPIKey) == "" {
			return fmt.Errorf("llm.openai_api_key is required for the openai provider")
		}
	case "anthropic":
		if strings.TrimSpace(c.LLM.AnthropicAPIKey) == "" {
			return fmt.Errorf("llm.anthropic_api_key is required for the anthropic provider")
		}
	default:
		return fmt.Errorf("llm.provider must be openai or anthropic, got %q", c.LLM.Provider)
	}
	if strings.TrimSpace(c.LLM.ActorModel) == "" {
		return fmt.Errorf("llm.actor_model is required")
	}
	if c.LLM.KB.Enabled && strings.TrimSpace(c.LLM.OpenAIAPIKey) == "" {
		return fmt.Errorf("llm.kb requires llm.openai_api_key (file search runs on OpenAI)")
	}

	switch c.Artifacts.Backend {
	case "local", "s3":
	default:
		return fmt.Errorf("artifacts.backend must be local or s3, got %q", c.Artifacts.Backend)
	}
	if c.Artifacts.Backend == "s3" && strings.TrimSpace(c.Artifacts.S3.Bucket) == "" {
		return fmt.Errorf("artifacts.s3.bucket is required for the s3 backend")
	}

	if c.Notify.Slack.Enabled {
		if c.Notify.Slack.BotToken == "" || c.Notify.Slack.Channel == "" {
			return fmt.Errorf("notify.slack requires bot_token and channel")
		}
	}
	return nil
}
