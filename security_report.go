package authcore

import "time"

type SecurityReport struct {
	ProductionMode      bool
	EphemeralSigningKey bool
	SigningAlgorithm    string
	KeyID               string
	KeyBits             int
	AccessTTL           time.Duration
	RefreshTTL          time.Duration
	Leeway              time.Duration
	RevokeAllOnReplay   bool
	Argon2              PasswordConfigReport
	LockoutActive       bool
	LockoutThreshold    int
	LockoutDuration     time.Duration
	RateLimitingActive  bool
	// RateLimitPolicies lists only the scopes with a policy in force.
	RateLimitPolicies       map[string]RatePolicy
	EmailVerificationActive bool
	VerificationRequired    bool
	PasswordResetActive     bool
}

type PasswordConfigReport struct {
	Memory         uint32
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinBytes       int
	UpgradeOnLogin bool
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	policies := make(map[string]RatePolicy)
	if e.limiter != nil {
		for scope, p := range e.config.RateLimit.Policies {
			if p.Limit > 0 && p.Window > 0 {
				policies[scope] = p
			}
		}
	}

	report := SecurityReport{
		ProductionMode:    e.config.ProductionMode,
		SigningAlgorithm:  "RS256",
		AccessTTL:         e.config.JWT.AccessTTL,
		RefreshTTL:        e.config.Refresh.TTL,
		Leeway:            e.config.JWT.Leeway,
		RevokeAllOnReplay: e.config.Refresh.RevokeAllOnReplay,
		Argon2: PasswordConfigReport{
			Memory:         e.config.Password.Memory,
			Time:           e.config.Password.Time,
			Parallelism:    e.config.Password.Parallelism,
			SaltLength:     e.config.Password.SaltLength,
			KeyLength:      e.config.Password.KeyLength,
			MinBytes:       e.config.Password.MinBytes,
			UpgradeOnLogin: e.config.Password.UpgradeOnLogin,
		},
		LockoutActive:           e.config.Lockout.Enabled,
		LockoutThreshold:        e.config.Lockout.Threshold,
		LockoutDuration:         e.config.Lockout.Duration,
		RateLimitingActive:      len(policies) > 0,
		RateLimitPolicies:       policies,
		EmailVerificationActive: e.config.EmailVerification.Enabled,
		VerificationRequired:    e.config.EmailVerification.RequireForLogin,
		PasswordResetActive:     e.config.PasswordReset.Enabled,
	}
	if e.keys != nil {
		report.EphemeralSigningKey = e.keys.Ephemeral()
		report.KeyID = e.keys.KeyID()
		report.KeyBits = e.keys.Bits()
	}
	return report
}
