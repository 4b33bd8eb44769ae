// Package config loads the service configuration from a YAML file with
// VOICEPACT_-prefixed environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/voicepact/voicepact/pkg/crypto"
	"github.com/voicepact/voicepact/pkg/gateway"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Crypto   CryptoConfig   `mapstructure:"crypto"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	CORS     CORSConfig     `mapstructure:"cors"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

type DatabaseConfig struct {
	// Driver is sqlite, postgres or mysql.
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type CryptoConfig struct {
	MasterKey     string `mapstructure:"master_key"`
	Salt          string `mapstructure:"salt"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	HashAlgorithm string `mapstructure:"hash_algorithm"`
}

type GatewayConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Username       string `mapstructure:"username"`
	APIKey         string `mapstructure:"api_key"`
	SenderID       string `mapstructure:"sender_id"`
	VoiceNumber    string `mapstructure:"voice_number"`
	PaymentProduct string `mapstructure:"payment_product"`
	CountryCode    string `mapstructure:"country_code"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads configuration. path may name a config file directly; when
// empty, config.yaml is searched for in ., ./config and /etc/voicepact. A
// missing file is fine, environment variables and defaults still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/voicepact")
	}

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "voicepact.db")
	v.SetDefault("crypto.hash_algorithm", "blake2b")
	// Empty defaults keep secret keys visible to AutomaticEnv + Unmarshal.
	v.SetDefault("crypto.master_key", "")
	v.SetDefault("crypto.salt", "")
	v.SetDefault("crypto.webhook_secret", "")
	v.SetDefault("gateway.api_key", "")
	v.SetDefault("gateway.voice_number", "")
	v.SetDefault("gateway.payment_product", "")
	v.SetDefault("gateway.base_url", "https://api.africastalking.com")
	v.SetDefault("gateway.username", "sandbox")
	v.SetDefault("gateway.sender_id", "VoicePact")
	v.SetDefault("gateway.country_code", "254")
	v.SetDefault("cors.allowed_origins", []string{"*"})

	v.SetEnvPrefix("VOICEPACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// CryptoConfig maps the crypto section onto the crypto service's config.
func (c *Config) CryptoService() (*crypto.Service, error) {
	return crypto.NewService(&crypto.Config{
		MasterKey:     c.Crypto.MasterKey,
		Salt:          c.Crypto.Salt,
		WebhookSecret: c.Crypto.WebhookSecret,
		HashAlgorithm: crypto.HashAlgorithm(c.Crypto.HashAlgorithm),
	})
}

// GatewayClientConfig maps the gateway section onto the gateway client's
// config, keeping the client package's defaults for anything unset.
func (c *Config) GatewayClientConfig() *gateway.Config {
	cfg := gateway.DefaultConfig()
	if c.Gateway.BaseURL != "" {
		cfg.BaseURL = c.Gateway.BaseURL
	}
	if c.Gateway.Username != "" {
		cfg.Username = c.Gateway.Username
	}
	cfg.APIKey = c.Gateway.APIKey
	if c.Gateway.SenderID != "" {
		cfg.SenderID = c.Gateway.SenderID
	}
	cfg.VoiceNumber = c.Gateway.VoiceNumber
	cfg.PaymentProduct = c.Gateway.PaymentProduct
	if c.Gateway.CountryCode != "" {
		cfg.CountryCode = c.Gateway.CountryCode
	}
	return cfg
}
