package gateway

import (
	"os"
	"time"
)

// Config holds gateway connection settings.
type Config struct {
	// BaseURL is the gateway API endpoint.
	BaseURL string
	// Username is the gateway account name; "sandbox" selects the test
	// environment.
	Username string
	// APIKey authenticates requests.
	APIKey string
	// SenderID is the default alphanumeric SMS sender.
	SenderID string
	// VoiceNumber is the default caller ID for outbound voice calls.
	VoiceNumber string
	// PaymentProduct names the mobile-money product used for checkout and
	// disbursement.
	PaymentProduct string
	// CountryCode is prepended when normalizing local phone numbers.
	CountryCode string
	// HTTPTimeout bounds each gateway request.
	HTTPTimeout time.Duration
}

// DefaultConfig returns a sandbox configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        "https://api.africastalking.com",
		Username:       "sandbox",
		CountryCode:    "254",
		PaymentProduct: "VoicePact",
		HTTPTimeout:    30 * time.Second,
	}
}

// ConfigFromEnv builds a Config from environment variables, falling back to
// defaults.
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()
	if v := os.Getenv("VOICEPACT_GATEWAY_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("VOICEPACT_GATEWAY_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("VOICEPACT_GATEWAY_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("VOICEPACT_GATEWAY_SENDER_ID"); v != "" {
		cfg.SenderID = v
	}
	if v := os.Getenv("VOICEPACT_GATEWAY_VOICE_NUMBER"); v != "" {
		cfg.VoiceNumber = v
	}
	if v := os.Getenv("VOICEPACT_GATEWAY_PAYMENT_PRODUCT"); v != "" {
		cfg.PaymentProduct = v
	}
	if v := os.Getenv("VOICEPACT_COUNTRY_CODE"); v != "" {
		cfg.CountryCode = v
	}
	if v := os.Getenv("VOICEPACT_GATEWAY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HTTPTimeout = d
		}
	}
	return cfg
}
