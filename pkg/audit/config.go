package audit

import (
	"os"
	"strconv"
)

// Config controls audit behavior.
type Config struct {
	RetentionDays int  // Default 365
	Enabled       bool // Whether contract actions are recorded
}

// DefaultConfig returns the default configuration. Contract trails back
// payment disputes, so retention defaults to a full year.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 365,
		Enabled:       true,
	}
}

// ConfigFromEnv loads config from environment variables.
// VOICEPACT_AUDIT_RETENTION_DAYS, VOICEPACT_AUDIT_ENABLED
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("VOICEPACT_AUDIT_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.RetentionDays = days
		}
	}

	if v := os.Getenv("VOICEPACT_AUDIT_ENABLED"); v != "" {
		cfg.Enabled, _ = strconv.ParseBool(v)
	}

	return cfg
}
