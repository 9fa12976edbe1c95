package authcore

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwks"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/keystore"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/secondary"
)

// Builder assembles an [Engine]. A Builder can be used once.
type Builder struct {
	config   Config
	store    Store
	redis    redis.UniversalClient
	keys     *keystore.Store
	notifier notify.Notifier

	auditSink AuditSink
	now       func() time.Time
	warn      func(format string, args ...any)

	built bool
}

// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the persistence for accounts, refresh tokens and secondary
// credentials. Required.
func (b *Builder) WithStore(s Store) *Builder {
	b.store = s
	return b
}

// WithRedis sets the rate-limit counter store. Required when rate limiting
// is enabled.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithKeyStore supplies an already loaded key store. Without it Build loads
// one from Config.Keys.
func (b *Builder) WithKeyStore(ks *keystore.Store) *Builder {
	b.keys = ks
	return b
}

func (b *Builder) WithNotifier(n notify.Notifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides time.Now for every component of the engine.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithWarnLogger receives best-effort failures that do not fail a request,
// such as a failed password hash upgrade. Defaults to log.Printf.
func (b *Builder) WithWarnLogger(warn func(format string, args ...any)) *Builder {
	b.warn = warn
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}
	if cfg.RateLimit.Enabled && b.redis == nil {
		return nil, errors.New("RateLimit requires redis client")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	warn := b.warn
	if warn == nil {
		warn = log.Printf
	}
	notifier := b.notifier
	if notifier == nil {
		notifier = notify.Discard{}
	}

	// -------- KEYS --------
	keys := b.keys
	if keys == nil {
		var err error
		keys, err = keystore.Load(cfg.Keys)
		if err != nil {
			return nil, err
		}
	}
	if cfg.ProductionMode && keys.Ephemeral() {
		return nil, ErrEphemeralKey
	}

	engine := &Engine{
		config:    cloneConfig(cfg),
		store:     b.store,
		keys:      keys,
		publisher: jwks.NewPublisher(keys),
		notifier:  notifier,
		lockout: limiters.NewLockoutGuard(limiters.LockoutConfig{
			Threshold: cfg.Lockout.Threshold,
			Duration:  cfg.Lockout.Duration,
		}),
		audit:   audit.NewDispatcher(audit.Config(cfg.Audit), b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
		now:     now,
		warn:    warn,
	}

	tokens, err := jwt.NewManager(keys, jwt.Config{
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		Leeway:   cfg.JWT.Leeway,
		Now:      now,
	})
	if err != nil {
		return nil, err
	}
	engine.tokens = tokens

	// -------- CREDENTIALS --------
	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		MinBytes:    cfg.Password.MinBytes,
		MaxBytes:    cfg.Password.MaxBytes,
	})
	if err != nil {
		return nil, err
	}
	engine.hasher = hasher

	// Verified against unknown accounts so both login paths pay one hash.
	dummy, err := hasher.Hash("authcore-unknown-account")
	if err != nil {
		return nil, fmt.Errorf("prepare timing hash: %w", err)
	}
	engine.dummyHash = dummy

	engine.refresh, err = refresh.NewManager(b.store, refresh.Config{
		TTL:               cfg.Refresh.TTL,
		RevokeAllOnReplay: cfg.Refresh.RevokeAllOnReplay,
		Now:               now,
		OnReplay:          engine.onRefreshReplay,
	})
	if err != nil {
		return nil, err
	}

	policies := map[secondary.Kind]secondary.Policy{}
	if cfg.PasswordReset.Enabled {
		policies[secondary.KindPasswordReset] = secondary.Policy{
			TTL:    cfg.PasswordReset.TokenTTL,
			Format: secondary.FormatToken,
		}
	}
	if cfg.EmailVerification.Enabled {
		policies[secondary.KindEmailVerification] = secondary.Policy{
			TTL:         cfg.EmailVerification.CodeTTL,
			Format:      secondary.FormatNumeric,
			Digits:      cfg.EmailVerification.CodeDigits,
			MaxAttempts: cfg.EmailVerification.MaxAttempts,
		}
	}
	engine.secondary, err = secondary.NewManager(b.store, policies, now)
	if err != nil {
		return nil, err
	}

	// -------- RATE LIMITING --------
	if cfg.RateLimit.Enabled {
		engine.limiter = rate.New(b.redis, rate.Config{
			Prefix:  cfg.RateLimit.Prefix,
			OnError: engine.onRateLimitError,
		})
	}

	b.built = true

	return engine, nil
}
