package config

// Config is the process configuration of cmd/authcore.
type Config struct {
	Env      string         `yaml:"env"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Keys     KeysConfig     `yaml:"keys"`
	Tokens   TokensConfig   `yaml:"tokens"`
	Lockout  LockoutConfig  `yaml:"lockout"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Sentry   SentryConfig   `yaml:"sentry"`
}

type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	// TrustForwardedFor makes client IP resolution honor X-Forwarded-For.
	TrustForwardedFor bool `yaml:"trust_forwarded_for"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// KeysConfig carries PEM text inline or names files holding it. Inline
// values win.
type KeysConfig struct {
	PrivateKey     string `yaml:"private_key"`
	PublicKey      string `yaml:"public_key"`
	PrivateKeyFile string `yaml:"private_key_file"`
	PublicKeyFile  string `yaml:"public_key_file"`
	KeyID          string `yaml:"key_id"`
}

type TokensConfig struct {
	Issuer            string `yaml:"issuer"`
	Audience          string `yaml:"audience"`
	AccessTokenTTL    string `yaml:"access_token_ttl"`
	RefreshTokenTTL   string `yaml:"refresh_token_ttl"`
	RevokeAllOnReplay bool   `yaml:"revoke_all_on_replay"`
}

type LockoutConfig struct {
	Threshold int    `yaml:"threshold"`
	Duration  string `yaml:"duration"`
}

type WebhookConfig struct {
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout"`
}

type SentryConfig struct {
	DSN string `yaml:"dsn"`
}

// Production reports whether the process runs with APP_ENV=production.
func (c *Config) Production() bool {
	return c.Env == "production"
}
