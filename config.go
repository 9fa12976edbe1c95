package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/keystore"
)

// Rate-limit scopes. Each scope has its own policy in [RateLimitConfig].
const (
	ScopeLogin              = "login"
	ScopeRegister           = "register"
	ScopeVerifyEmail        = "verify-email"
	ScopeResendVerification = "resend-verification"
	ScopeForgotPassword     = "forgot-password"
	ScopeResetPassword      = "reset-password"
	ScopeRefresh            = "refresh"
)

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Keys              keystore.Config
	JWT               JWTConfig
	Refresh           RefreshConfig
	Lockout           LockoutConfig
	RateLimit         RateLimitConfig
	Password          PasswordConfig
	PasswordReset     PasswordResetConfig
	EmailVerification EmailVerificationConfig
	Account           AccountConfig
	Audit             AuditConfig
	Metrics           MetricsConfig
	// ProductionMode refuses to build an engine on an ephemeral signing key.
	ProductionMode bool
}

/*
====================================
TOKENS
====================================
*/

// JWTConfig defines a public type used by authcore APIs.
type JWTConfig struct {
	Issuer    string
	Audience  string
	AccessTTL time.Duration
	// Leeway tolerates clock skew between issuer and verifier on iat and
	// nbf. It never extends exp.
	Leeway time.Duration
}

// RefreshConfig defines a public type used by authcore APIs.
type RefreshConfig struct {
	TTL time.Duration
	// RevokeAllOnReplay revokes every refresh token of a user when one of
	// their revoked tokens is presented again.
	RevokeAllOnReplay bool
}

/*
====================================
ABUSE DEFENSE
====================================
*/

// LockoutConfig defines a public type used by authcore APIs.
type LockoutConfig struct {
	Enabled   bool
	Threshold int
	Duration  time.Duration
}

// RatePolicy allows Limit requests per Window. A zero policy disables the scope.
type RatePolicy struct {
	Limit  int
	Window time.Duration
}

// RateLimitConfig defines a public type used by authcore APIs.
type RateLimitConfig struct {
	Enabled  bool
	Prefix   string
	Policies map[string]RatePolicy
}

// Policy returns the policy for scope, or the zero policy.
func (c RateLimitConfig) Policy(scope string) RatePolicy {
	return c.Policies[scope]
}

/*
====================================
CREDENTIALS
====================================
*/

// PasswordConfig defines a public type used by authcore APIs.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinBytes    int
	MaxBytes    int
	// UpgradeOnLogin re-hashes bcrypt or outdated argon2id hashes after a
	// successful login.
	UpgradeOnLogin bool
}

// PasswordResetConfig defines a public type used by authcore APIs.
type PasswordResetConfig struct {
	Enabled  bool
	TokenTTL time.Duration
}

// EmailVerificationConfig defines a public type used by authcore APIs.
type EmailVerificationConfig struct {
	Enabled         bool
	RequireForLogin bool
	CodeTTL         time.Duration
	CodeDigits      int
	MaxAttempts     int
}

// AccountConfig defines a public type used by authcore APIs.
type AccountConfig struct {
	DefaultRole string
}

/*
====================================
OBSERVABILITY
====================================
*/

// AuditConfig defines a public type used by authcore APIs.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by authcore APIs.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults: 15 minute access tokens,
// 7 day refresh tokens, lockout after 5 failures for 15 minutes, and the
// per-scope rate limits below.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			Issuer:    "authcore",
			AccessTTL: 15 * time.Minute,
			Leeway:    30 * time.Second,
		},
		Refresh: RefreshConfig{
			TTL: 7 * 24 * time.Hour,
		},
		Lockout: LockoutConfig{
			Enabled:   true,
			Threshold: 5,
			Duration:  15 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Prefix:  "authcore:rl:",
			Policies: map[string]RatePolicy{
				ScopeLogin:              {Limit: 5, Window: 5 * time.Minute},
				ScopeRegister:           {Limit: 3, Window: 15 * time.Minute},
				ScopeVerifyEmail:        {Limit: 3, Window: 5 * time.Minute},
				ScopeResendVerification: {Limit: 3, Window: 15 * time.Minute},
				ScopeForgotPassword:     {Limit: 3, Window: 15 * time.Minute},
				ScopeResetPassword:      {Limit: 5, Window: 15 * time.Minute},
				ScopeRefresh:            {Limit: 30, Window: time.Minute},
			},
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinBytes:       10,
			MaxBytes:       1024,
			UpgradeOnLogin: true,
		},
		PasswordReset: PasswordResetConfig{
			Enabled:  true,
			TokenTTL: time.Hour,
		},
		EmailVerification: EmailVerificationConfig{
			Enabled:         true,
			RequireForLogin: true,
			CodeTTL:         15 * time.Minute,
			CodeDigits:      6,
			MaxAttempts:     3,
		},
		Account: AccountConfig{
			DefaultRole: "user",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.RateLimit.Policies != nil {
		out.RateLimit.Policies = make(map[string]RatePolicy, len(cfg.RateLimit.Policies))
		for k, v := range cfg.RateLimit.Policies {
			out.RateLimit.Policies[k] = v
		}
	}
	return out
}

// Validate checks internal consistency of c.
func (c *Config) Validate() error {
	// Tokens
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.AccessTTL%time.Second != 0 {
		return errors.New("JWT AccessTTL must be a whole number of seconds")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.TTL <= c.JWT.AccessTTL {
		return errors.New("Refresh TTL must exceed JWT AccessTTL")
	}
	if (c.Keys.PrivateKey == "") != (c.Keys.PublicKey == "") {
		return keystore.ErrPartialKeyConfig
	}

	// Lockout
	if c.Lockout.Enabled {
		if c.Lockout.Threshold <= 0 {
			return errors.New("Lockout Threshold must be > 0")
		}
		if c.Lockout.Duration <= 0 {
			return errors.New("Lockout Duration must be > 0")
		}
	}

	// Rate limits
	for scope, p := range c.RateLimit.Policies {
		if p.Limit < 0 || p.Window < 0 {
			return fmt.Errorf("RateLimit policy %q must not be negative", scope)
		}
		if (p.Limit == 0) != (p.Window == 0) {
			return fmt.Errorf("RateLimit policy %q needs both Limit and Window", scope)
		}
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MaxBytes > 0 && c.Password.MaxBytes < c.Password.MinBytes {
		return errors.New("Password MaxBytes must be >= MinBytes")
	}

	// Secondary credentials
	if c.PasswordReset.Enabled && c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset TokenTTL must be > 0")
	}
	if c.EmailVerification.Enabled {
		if c.EmailVerification.CodeTTL <= 0 {
			return errors.New("EmailVerification CodeTTL must be > 0")
		}
		if c.EmailVerification.CodeDigits < 6 || c.EmailVerification.CodeDigits > 10 {
			return errors.New("EmailVerification CodeDigits must be between 6 and 10")
		}
		if c.EmailVerification.MaxAttempts <= 0 {
			return errors.New("EmailVerification MaxAttempts must be > 0")
		}
	}
	if c.EmailVerification.RequireForLogin && !c.EmailVerification.Enabled {
		return errors.New("EmailVerification RequireForLogin needs EmailVerification Enabled")
	}

	if c.Account.DefaultRole == "" {
		return errors.New("Account DefaultRole must not be empty")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}
	return nil
}
