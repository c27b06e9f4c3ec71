package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
)

// Pending-item expiration bounds, in minutes.
const (
	MinPendingExpirationMinutes = 1
	MaxPendingExpirationMinutes = 1440
)

// UnknownToolError reports an orchestration entry referencing a tool that
// does not exist in the registry. It unwraps to ErrUnknownTool.
type UnknownToolError struct {
	Intent string
	Tool   string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("intent %q references unknown tool %q", e.Intent, e.Tool)
}

func (e *UnknownToolError) Unwrap() error { return ErrUnknownTool }

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// API key presence depends on the provider; Ollama runs locally.
	if c.Provider != ProviderOllama && os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
			"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
			ErrMissingAPIKey)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.MaxTurns < 1 || c.MaxTurns > 25 {
		return fmt.Errorf("%w: must be between 1 and 25, got %d", ErrInvalidMaxTurns, c.MaxTurns)
	}

	if c.QuietWindowSeconds < 1 || c.QuietWindowSeconds > 300 {
		return fmt.Errorf("%w: must be between 1 and 300 seconds, got %d",
			ErrInvalidQuietWindow, c.QuietWindowSeconds)
	}

	if err := c.Behavior.validate(); err != nil {
		return err
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set in config.yaml",
			ErrInvalidPostgresPassword)
	}

	if c.PostgresPassword == "garcom_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password in config.yaml for production deployments")
	}

	if len(c.PostgresPassword) < 8 {
		return fmt.Errorf("%w: postgres_password must be at least 8 characters (got %d)",
			ErrInvalidPostgresPassword, len(c.PostgresPassword))
	}

	// Modern SSL modes only; allow/prefer are deprecated.
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}

func (b *BehaviorConfig) validate() error {
	m := b.PendingItems.ExpirationMinutes
	if m < MinPendingExpirationMinutes || m > MaxPendingExpirationMinutes {
		return fmt.Errorf("%w: expiration_minutes must be between %d and %d, got %d",
			ErrInvalidExpiration, MinPendingExpirationMinutes, MaxPendingExpirationMinutes, m)
	}
	if b.SessionTTLMinutes < 0 {
		return fmt.Errorf("%w: session_ttl_minutes cannot be negative, got %d",
			ErrInvalidSessionTTL, b.SessionTTLMinutes)
	}
	return nil
}
