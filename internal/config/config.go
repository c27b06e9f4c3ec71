// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.garcom/config.yaml or ./config.yaml)
//  3. Default values
//
// Validation happens once at load time, never per turn. Sentinel errors are
// checked with errors.Is(). Sensitive data (passwords, API keys) is masked
// in MarshalJSON and String.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTurns indicates the max turns value is out of range.
	ErrInvalidMaxTurns = errors.New("invalid max turns")

	// ErrInvalidQuietWindow indicates the debounce quiet window is out of range.
	ErrInvalidQuietWindow = errors.New("invalid quiet window")

	// ErrInvalidExpiration indicates pending-item expiration is out of range.
	ErrInvalidExpiration = errors.New("invalid pending item expiration")

	// ErrInvalidSessionTTL indicates an out-of-range session idle TTL.
	ErrInvalidSessionTTL = errors.New("invalid session idle TTL")

	// ErrUnknownTool indicates orchestration config references a tool that
	// does not exist in the registry.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidIntent indicates an orchestration intent name is empty.
	ErrInvalidIntent = errors.New("invalid intent name")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOllama   = "ollama"
	ProviderGoogleAI = "googleai"
)

const (
	// DefaultQuietWindowSeconds is the debounce quiet window applied when
	// the config does not override it.
	DefaultQuietWindowSeconds = 5

	// DefaultPendingExpirationMinutes is how long staged pending items live
	// before they are dropped.
	DefaultPendingExpirationMinutes = 15

	// DefaultSessionTTLMinutes is how long a non-idle conversation may sit
	// untouched before the next inbound burst restarts it from idle.
	DefaultSessionTTLMinutes = 120
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields, update MarshalJSON.
type Config struct {
	// LLM provider and model configuration
	Provider    string  `mapstructure:"provider" json:"provider"` // "gemini" (default), "ollama"
	ModelName   string  `mapstructure:"model_name" json:"model_name"`
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTurns    int     `mapstructure:"max_turns" json:"max_turns"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Conversation behavior
	Language           string `mapstructure:"language" json:"language"`
	Currency           string `mapstructure:"currency" json:"currency"`
	QuietWindowSeconds int    `mapstructure:"quiet_window_seconds" json:"quiet_window_seconds"`

	// HTTP server (serve mode)
	HTTPAddr string `mapstructure:"http_addr" json:"http_addr"`

	// Delivery defaults used by the flat-fee address validator
	DeliveryFeeCents   int64 `mapstructure:"delivery_fee_cents" json:"delivery_fee_cents"`
	DeliveryETAMinutes int   `mapstructure:"delivery_eta_minutes" json:"delivery_eta_minutes"`

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Restaurant-level behavior toggles (see behavior.go)
	Behavior BehaviorConfig `mapstructure:"behavior" json:"behavior"`

	// Per-intent tool allow-lists (see behavior.go)
	Orchestration OrchestrationConfig `mapstructure:"orchestration" json:"orchestration"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".garcom")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("temperature", 0.4)
	viper.SetDefault("max_turns", 5)

	viper.SetDefault("ollama_host", "http://localhost:11434")

	viper.SetDefault("language", "pt-PT")
	viper.SetDefault("currency", "€")
	viper.SetDefault("quiet_window_seconds", DefaultQuietWindowSeconds)

	viper.SetDefault("http_addr", ":8080")

	viper.SetDefault("delivery_fee_cents", 300)
	viper.SetDefault("delivery_eta_minutes", 40)

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "garcom")
	viper.SetDefault("postgres_password", "garcom_dev_password")
	viper.SetDefault("postgres_db_name", "garcom")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("behavior.auto_load_profile", true)
	viper.SetDefault("behavior.auto_update_profile", false)
	viper.SetDefault("behavior.pending_items.allow_multiple", true)
	viper.SetDefault("behavior.pending_items.expiration_minutes", DefaultPendingExpirationMinutes)
	viper.SetDefault("behavior.session_ttl_minutes", DefaultSessionTTLMinutes)
}

// bindEnvVariables binds environment overrides explicitly.
// GEMINI_API_KEY is read directly by Genkit, not via viper; its presence is
// checked in Validate based on the selected provider.
func bindEnvVariables() {
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "GARCOM_PROVIDER")
	mustBind("model_name", "GARCOM_MODEL_NAME")
	mustBind("ollama_host", "GARCOM_OLLAMA_HOST")
	mustBind("http_addr", "GARCOM_HTTP_ADDR")
	mustBind("postgres_host", "GARCOM_POSTGRES_HOST")
	mustBind("postgres_port", "GARCOM_POSTGRES_PORT")
	mustBind("postgres_user", "GARCOM_POSTGRES_USER")
	mustBind("postgres_password", "GARCOM_POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "GARCOM_POSTGRES_DB_NAME")
	mustBind("postgres_ssl_mode", "GARCOM_POSTGRES_SSL_MODE")
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8 chars or
// fewer are fully masked so the output can never contain a substring of the
// real value; longer secrets keep the first and last 2 chars for debugging.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "googleai/gemini-2.5-flash", "ollama/llama3.3".
// If ModelName already contains a "/", it is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.ModelName
	default:
		return ProviderGoogleAI + "/" + c.ModelName
	}
}

// PostgresDSN builds the connection string for pgx from the postgres fields.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort,
		c.PostgresDBName, c.PostgresSSLMode)
}
