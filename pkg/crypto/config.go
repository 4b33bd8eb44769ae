package crypto

import "os"

// HashAlgorithm selects the contract hash primitive.
type HashAlgorithm string

const (
	HashBlake2b HashAlgorithm = "blake2b"
	HashSHA256  HashAlgorithm = "sha256"
)

// Config holds the key material and algorithm selection for the crypto service.
type Config struct {
	// MasterKey is the process-wide signing secret. Per-party keys are
	// derived from it; it never leaves the process.
	MasterKey string
	// Salt is the fixed KDF salt shared by all derivations.
	Salt string
	// WebhookSecret authenticates inbound gateway webhooks.
	WebhookSecret string
	// HashAlgorithm defaults to blake2b (256-bit digest).
	HashAlgorithm HashAlgorithm
	// KDFIterations defaults to 100000.
	KDFIterations int
}

// DefaultConfig returns a config with the default algorithm and iteration count.
// Key material must still be provided by the caller.
func DefaultConfig() *Config {
	return &Config{
		HashAlgorithm: HashBlake2b,
		KDFIterations: 100000,
	}
}

// ConfigFromEnv loads config from environment variables.
// VOICEPACT_MASTER_KEY, VOICEPACT_KDF_SALT, VOICEPACT_WEBHOOK_SECRET,
// VOICEPACT_HASH_ALGORITHM
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("VOICEPACT_MASTER_KEY"); v != "" {
		cfg.MasterKey = v
	}
	if v := os.Getenv("VOICEPACT_KDF_SALT"); v != "" {
		cfg.Salt = v
	}
	if v := os.Getenv("VOICEPACT_WEBHOOK_SECRET"); v != "" {
		cfg.WebhookSecret = v
	}
	if v := os.Getenv("VOICEPACT_HASH_ALGORITHM"); v == string(HashSHA256) {
		cfg.HashAlgorithm = HashSHA256
	}

	return cfg
}
