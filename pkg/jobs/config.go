package jobs

import (
	"os"
	"strconv"
	"time"
)

// Config controls the maintenance scheduler.
type Config struct {
	Enabled bool

	// ExpiryInterval is how often stale pending/confirmed contracts are
	// swept to expired.
	ExpiryInterval time.Duration
	// QuorumInterval is how often pending contracts are re-checked for a
	// quorum a crashed last-signer request left unapplied.
	QuorumInterval time.Duration
	// SessionPurgeInterval is how often expired USSD sessions are deleted.
	// Expired sessions are kept for SessionPurgeGrace first so a reset
	// still finds the row.
	SessionPurgeInterval time.Duration
	SessionPurgeGrace    time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:              true,
		ExpiryInterval:       10 * time.Minute,
		QuorumInterval:       5 * time.Minute,
		SessionPurgeInterval: time.Hour,
		SessionPurgeGrace:    24 * time.Hour,
	}
}

// ConfigFromEnv loads config from environment variables.
// VOICEPACT_JOBS_ENABLED, VOICEPACT_JOBS_EXPIRY_INTERVAL,
// VOICEPACT_JOBS_QUORUM_INTERVAL, VOICEPACT_JOBS_SESSION_PURGE_INTERVAL,
// VOICEPACT_JOBS_SESSION_PURGE_GRACE. Intervals use Go duration syntax.
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("VOICEPACT_JOBS_ENABLED"); v != "" {
		cfg.Enabled, _ = strconv.ParseBool(v)
	}
	setDuration := func(env string, dst *time.Duration) {
		if v := os.Getenv(env); v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				*dst = d
			}
		}
	}
	setDuration("VOICEPACT_JOBS_EXPIRY_INTERVAL", &cfg.ExpiryInterval)
	setDuration("VOICEPACT_JOBS_QUORUM_INTERVAL", &cfg.QuorumInterval)
	setDuration("VOICEPACT_JOBS_SESSION_PURGE_INTERVAL", &cfg.SessionPurgeInterval)
	setDuration("VOICEPACT_JOBS_SESSION_PURGE_GRACE", &cfg.SessionPurgeGrace)

	return cfg
}
