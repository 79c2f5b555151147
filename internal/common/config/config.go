// Package config provides configuration management for the orchestration core.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the orchestration core.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Events    EventsConfig    `mapstructure:"events"`
	Model     ModelConfig     `mapstructure:"model"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Runtime   RuntimeConfig   `mapstructure:"runtime"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Email     EmailConfig     `mapstructure:"email"`
	Tools     ToolsConfig     `mapstructure:"tools"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"` // DATABASE_URL; takes precedence over the fields below
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
	MaxConns int    `mapstructure:"maxConns"`
	MinConns int    `mapstructure:"minConns"`
}

// NATSConfig holds NATS messaging configuration. An empty URL selects the
// in-process memory event bus instead.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClusterID     string `mapstructure:"clusterId"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// EventsConfig holds event bus namespace configuration.
type EventsConfig struct {
	// Namespace isolates queue-group subscribers across deployments/instances.
	Namespace string `mapstructure:"namespace"`
}

// ModelConfig holds configuration for the LLM provider boundary.
type ModelConfig struct {
	// ProviderKey authenticates calls made through the ModelClient interface.
	// Never logged.
	ProviderKey string `mapstructure:"providerKey"`
	// DefaultModel names the model used when an agent does not override it.
	DefaultModel string `mapstructure:"defaultModel"`
	CallTimeout  int    `mapstructure:"callTimeoutSeconds"`
	MaxRetries   int    `mapstructure:"maxRetries"`
}

// AuthConfig holds authentication configuration for the Jarvis device-auth
// flow and general JWT issuance.
type AuthConfig struct {
	JWTSecret     string `mapstructure:"jwtSecret"`
	DeviceSecret  string `mapstructure:"deviceSecret"`
	TokenDuration int    `mapstructure:"tokenDuration"` // in seconds; bearer JWT lifetime
}

// SchedulerConfig holds cron scheduler configuration.
type SchedulerConfig struct {
	Timezone string `mapstructure:"timezone"` // IANA name, e.g. "UTC", "America/New_York"
}

// RuntimeConfig holds runtime toggles shared across components.
type RuntimeConfig struct {
	// TokenStream is the default value for run_thread's stream_tokens option
	// when a request does not specify one explicitly.
	TokenStream bool `mapstructure:"tokenStream"`
	// ToolTimeoutSeconds bounds a single tool invocation (C4).
	ToolTimeoutSeconds int `mapstructure:"toolTimeoutSeconds"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// EmailConfig holds the Gmail Pub/Sub push-endpoint validation settings for
// the email trigger (spec §4.8). An empty PublicKeyPEM means no key is
// configured to verify push-request JWTs against, so the endpoint rejects
// every request until one is supplied.
type EmailConfig struct {
	Audience     string `mapstructure:"audience"`
	Issuer       string `mapstructure:"issuer"`
	PublicKeyPEM string `mapstructure:"publicKeyPem"`
}

// ToolsConfig holds tool-registry configuration.
type ToolsConfig struct {
	// MCPServerURLs is a comma-separated list of SSE endpoints for external
	// MCP tool servers whose tools are discovered into the Registry at
	// startup (spec §4.4).
	MCPServerURLs string `mapstructure:"mcpServerUrls"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// TokenDurationTime returns the bearer token lifetime as a time.Duration.
func (a *AuthConfig) TokenDurationTime() time.Duration {
	return time.Duration(a.TokenDuration) * time.Second
}

// CallTimeoutDuration returns the model call timeout as a time.Duration.
func (m *ModelConfig) CallTimeoutDuration() time.Duration {
	return time.Duration(m.CallTimeout) * time.Second
}

// ToolTimeoutDuration returns the tool invocation timeout as a time.Duration.
func (r *RuntimeConfig) ToolTimeoutDuration() time.Duration {
	return time.Duration(r.ToolTimeoutSeconds) * time.Second
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("ORCHCORE_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "orchcore")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbName", "orchcore")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clusterId", "orchcore-cluster")
	v.SetDefault("nats.clientId", "orchcore-client")
	v.SetDefault("nats.maxReconnects", 10)

	v.SetDefault("events.namespace", "")

	v.SetDefault("model.providerKey", "")
	v.SetDefault("model.defaultModel", "gpt-4o-mini")
	v.SetDefault("model.callTimeoutSeconds", 90)
	v.SetDefault("model.maxRetries", 2)

	v.SetDefault("auth.jwtSecret", "")
	v.SetDefault("auth.deviceSecret", "")
	v.SetDefault("auth.tokenDuration", 7*24*3600) // 7 days, per spec §6

	v.SetDefault("scheduler.timezone", "UTC")

	v.SetDefault("runtime.tokenStream", false)
	v.SetDefault("runtime.toolTimeoutSeconds", 30)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("email.audience", "")
	v.SetDefault("email.issuer", "https://accounts.google.com")
	v.SetDefault("email.publicKeyPem", "")

	v.SetDefault("tools.mcpServerUrls", "")
}

// Load reads configuration from environment variables, config file, and defaults.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
// Environment variables use the prefix ORCHCORE_ with snake_case naming, plus
// a handful of bare names mandated by spec §6 (DATABASE_URL, JWT_SECRET, ...).
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("ORCHCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bare env names required verbatim by spec §6, overriding the ORCHCORE_ prefix.
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("model.providerKey", "MODEL_PROVIDER_KEY")
	_ = v.BindEnv("auth.jwtSecret", "JWT_SECRET")
	_ = v.BindEnv("auth.deviceSecret", "DEVICE_SECRET")
	_ = v.BindEnv("scheduler.timezone", "SCHEDULER_TIMEZONE")
	_ = v.BindEnv("runtime.tokenStream", "TOKEN_STREAM")
	_ = v.BindEnv("nats.url", "NATS_URL")
	_ = v.BindEnv("logging.level", "ORCHCORE_LOG_LEVEL")
	_ = v.BindEnv("events.namespace", "ORCHCORE_EVENTS_NAMESPACE")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/orchcore/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set and
// internally consistent.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if cfg.Database.URL == "" {
		if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
			errs = append(errs, "database.port must be between 1 and 65535")
		}
		if cfg.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if cfg.Database.DBName == "" {
			errs = append(errs, "database.dbName is required")
		}
	}

	if cfg.Auth.JWTSecret == "" {
		secret, err := generateDevSecret()
		if err != nil {
			errs = append(errs, fmt.Sprintf("auth.jwtSecret not set and dev secret generation failed: %v", err))
		} else {
			cfg.Auth.JWTSecret = secret
		}
	} else if len(cfg.Auth.JWTSecret) < 32 {
		errs = append(errs, "auth.jwtSecret must be at least 32 bytes")
	}
	if cfg.Auth.TokenDuration <= 0 {
		errs = append(errs, "auth.tokenDuration must be positive")
	}

	if _, err := time.LoadLocation(cfg.Scheduler.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("scheduler.timezone is invalid: %v", err))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN returns the PostgreSQL connection string, preferring a full
// DATABASE_URL when one is configured.
func (d *DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// generateDevSecret generates a CSPRNG-backed secret for development mode
// when ORCHCORE_AUTH_JWTSECRET / JWT_SECRET is unset. Production deployments
// must set JWT_SECRET explicitly; this exists only so a bare `go run` works.
func generateDevSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "dev-" + hex.EncodeToString(buf), nil
}
