package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/keystore"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Env: "development",
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: "5s",
		},
		Database: DatabaseConfig{Driver: "pgx"},
		Tokens: TokensConfig{
			Issuer:          "authcore",
			AccessTokenTTL:  "15m",
			RefreshTokenTTL: "168h",
		},
		Lockout: LockoutConfig{Threshold: 5, Duration: "15m"},
		Webhook: WebhookConfig{Timeout: "5s"},
	}
}

// Load reads filePath over Default, then loads envFile into the process
// environment without overriding variables already set, then applies the
// environment. An empty filePath skips the YAML step; a missing envFile is
// not an error.
func Load(filePath, envFile string) (*Config, error) {
	cfg := Default()

	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("APP_ENV", &c.Env)
	str("HTTP_ADDR", &c.Server.Addr)
	str("SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	str("DATABASE_DRIVER", &c.Database.Driver)
	str("DATABASE_URL", &c.Database.URL)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("AUTHCORE_PRIVATE_KEY", &c.Keys.PrivateKey)
	str("AUTHCORE_PUBLIC_KEY", &c.Keys.PublicKey)
	str("AUTHCORE_PRIVATE_KEY_FILE", &c.Keys.PrivateKeyFile)
	str("AUTHCORE_PUBLIC_KEY_FILE", &c.Keys.PublicKeyFile)
	str("AUTHCORE_KEY_ID", &c.Keys.KeyID)
	str("JWT_ISSUER", &c.Tokens.Issuer)
	str("JWT_AUDIENCE", &c.Tokens.Audience)
	str("ACCESS_TOKEN_TTL", &c.Tokens.AccessTokenTTL)
	str("REFRESH_TOKEN_TTL", &c.Tokens.RefreshTokenTTL)
	str("LOCKOUT_DURATION", &c.Lockout.Duration)
	str("WEBHOOK_URL", &c.Webhook.URL)
	str("WEBHOOK_TIMEOUT", &c.Webhook.Timeout)
	str("SENTRY_DSN", &c.Sentry.DSN)

	if v, ok := lookup("REDIS_DB"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		c.Redis.DB = n
	}
	if v, ok := lookup("LOCKOUT_THRESHOLD"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LOCKOUT_THRESHOLD: %w", err)
		}
		c.Lockout.Threshold = n
	}
	if v, ok := lookup("TRUST_FORWARDED_FOR"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TRUST_FORWARDED_FOR: %w", err)
		}
		c.Server.TrustForwardedFor = b
	}
	return nil
}

// ShutdownTimeout parses Server.ShutdownTimeout.
func (c *Config) ShutdownTimeout() (time.Duration, error) {
	return parseDuration("server.shutdown_timeout", c.Server.ShutdownTimeout)
}

// WebhookTimeout parses Webhook.Timeout.
func (c *Config) WebhookTimeout() (time.Duration, error) {
	return parseDuration("webhook.timeout", c.Webhook.Timeout)
}

// Engine builds the engine configuration, reading key files when the PEM
// text is not given inline.
func (c *Config) Engine() (authcore.Config, error) {
	out := authcore.DefaultConfig()
	out.ProductionMode = c.Production()

	keys, err := c.keyMaterial()
	if err != nil {
		return authcore.Config{}, err
	}
	out.Keys = keys

	if c.Tokens.Issuer != "" {
		out.JWT.Issuer = c.Tokens.Issuer
	}
	out.JWT.Audience = c.Tokens.Audience
	if out.JWT.AccessTTL, err = parseDuration("tokens.access_token_ttl", c.Tokens.AccessTokenTTL); err != nil {
		return authcore.Config{}, err
	}
	if out.Refresh.TTL, err = parseDuration("tokens.refresh_token_ttl", c.Tokens.RefreshTokenTTL); err != nil {
		return authcore.Config{}, err
	}
	out.Refresh.RevokeAllOnReplay = c.Tokens.RevokeAllOnReplay

	if c.Lockout.Threshold > 0 {
		out.Lockout.Threshold = c.Lockout.Threshold
	}
	if out.Lockout.Duration, err = parseDuration("lockout.duration", c.Lockout.Duration); err != nil {
		return authcore.Config{}, err
	}

	if err := out.Validate(); err != nil {
		return authcore.Config{}, err
	}
	return out, nil
}

func (c *Config) keyMaterial() (keystore.Config, error) {
	k := keystore.Config{
		PrivateKey: c.Keys.PrivateKey,
		PublicKey:  c.Keys.PublicKey,
		KeyID:      c.Keys.KeyID,
	}
	if k.PrivateKey == "" && c.Keys.PrivateKeyFile != "" {
		data, err := os.ReadFile(c.Keys.PrivateKeyFile)
		if err != nil {
			return keystore.Config{}, fmt.Errorf("read private key: %w", err)
		}
		k.PrivateKey = string(data)
	}
	if k.PublicKey == "" && c.Keys.PublicKeyFile != "" {
		data, err := os.ReadFile(c.Keys.PublicKeyFile)
		if err != nil {
			return keystore.Config{}, fmt.Errorf("read public key: %w", err)
		}
		k.PublicKey = string(data)
	}
	return k, nil
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", field)
	}
	return d, nil
}
