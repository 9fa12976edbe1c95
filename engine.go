package authcore

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/account"
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

// Engine runs the authentication use cases. It is safe for concurrent use
// once built.
type Engine struct {
	config    Config
	store     Store
	keys      *keystore.Store
	tokens    *jwt.Manager
	publisher *jwks.Publisher
	refresh   *refresh.Manager
	secondary *secondary.Manager
	lockout   limiters.LockoutGuard
	limiter   *rate.Limiter
	hasher    *password.Hasher
	notifier  notify.Notifier
	audit     *audit.Dispatcher
	metrics   *Metrics
	now       func() time.Time
	warn      func(format string, args ...any)
	dummyHash string
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Login checks email and password and issues a token pair.
//
// Unknown accounts and wrong passwords both return ErrInvalidCredentials and
// both pay for one password hash. A locked account returns ErrAccountLocked
// without the password being checked. Lockout bookkeeping fails closed: if
// the failure cannot be recorded, ErrStoreUnavailable is returned.
func (e *Engine) Login(ctx context.Context, email, pass string) (*TokenPair, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	email = normalizeEmail(email)
	if email == "" || pass == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, 0, false, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	acct, err := e.store.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			_, _ = e.hasher.Verify(pass, e.dummyHash)
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, 0, false, ErrInvalidCredentials, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	now := e.now()
	if e.config.Lockout.Enabled && !e.lockout.CanAttempt(acct.Lockout, now) {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, acct.ID, false, ErrAccountLocked, map[string]string{
			"retry_after": e.lockout.RetryAfter(acct.Lockout, now).Round(time.Second).String(),
		})
		return nil, ErrAccountLocked
	}

	ok, err := e.hasher.Verify(pass, acct.PasswordHash)
	if err != nil {
		e.warn("authcore: unreadable password hash for user %d: %v", acct.ID, err)
		ok = false
	}
	if !ok {
		if err := e.recordLoginFailure(ctx, acct, now); err != nil {
			return nil, err
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, acct.ID, false, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	if e.config.Lockout.Enabled && !acct.Lockout.Zero() {
		if _, err := e.store.UpdateLockout(ctx, acct.ID, e.lockout.RecordSuccess); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	switch acct.Status {
	case account.StatusActive:
	case account.StatusPendingVerification:
		if e.config.EmailVerification.RequireForLogin {
			e.metricInc(MetricLoginUnverified)
			e.emitAudit(ctx, auditEventLoginFailure, acct.ID, false, ErrAccountUnverified, nil)
			return nil, ErrAccountUnverified
		}
	default:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, acct.ID, false, ErrAccountDisabled, nil)
		return nil, ErrAccountDisabled
	}

	e.upgradePasswordHash(ctx, acct, pass)

	pair, err := e.issuePair(ctx, acct)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, acct.ID, true, nil, nil)
	return pair, nil
}

// recordLoginFailure counts a failed password under the account row's
// atomic update and reports when this failure is the one that locked it.
func (e *Engine) recordLoginFailure(ctx context.Context, acct account.Account, now time.Time) error {
	if !e.config.Lockout.Enabled {
		return nil
	}
	var lockedNow bool
	state, err := e.store.UpdateLockout(ctx, acct.ID, func(s account.LockoutState) account.LockoutState {
		before := e.lockout.Locked(s, now)
		next := e.lockout.RecordFailure(s, now)
		lockedNow = !before && e.lockout.Locked(next, now)
		return next
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if lockedNow {
		e.metricInc(MetricLockoutTriggered)
		e.emitAudit(ctx, auditEventAccountLocked, acct.ID, true, nil, map[string]string{
			"failed_attempts": fmt.Sprint(state.FailedAttempts),
		})
	}
	return nil
}

func (e *Engine) upgradePasswordHash(ctx context.Context, acct account.Account, pass string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	stale, err := e.hasher.NeedsUpgrade(acct.PasswordHash)
	if err != nil || !stale {
		return
	}
	hash, err := e.hasher.Hash(pass)
	if err != nil {
		// Legacy passwords may predate the length policy.
		return
	}
	if err := e.store.UpdatePasswordHash(ctx, acct.ID, hash); err != nil {
		e.warn("authcore: password hash upgrade for user %d failed: %v", acct.ID, err)
		return
	}
	e.metricInc(MetricPasswordUpgraded)
}

func (e *Engine) issuePair(ctx context.Context, acct account.Account) (*TokenPair, error) {
	access, accessExp, err := e.tokens.IssueAccessToken(acct.ID, acct.Email, acct.Role, e.config.JWT.AccessTTL)
	if err != nil {
		return nil, err
	}
	rt, err := e.refresh.Issue(ctx, acct.ID)
	if err != nil {
		return nil, mapRefreshError(err)
	}
	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     rt.Plaintext,
		RefreshExpiresAt: rt.ExpiresAt,
	}, nil
}

// Refresh rotates refreshToken and issues a new pair. Presenting a token
// that was already rotated or revoked fails with ErrRefreshInvalid wrapping
// refresh.ErrRevoked.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.refresh == nil {
		return nil, ErrEngineNotReady
	}
	next, err := e.refresh.Rotate(ctx, refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, 0, false, err, nil)
		return nil, mapRefreshError(err)
	}

	acct, err := e.store.GetAccountByID(ctx, next.UserID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			e.metricInc(MetricRefreshFailure)
			return nil, ErrRefreshInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if acct.Status == account.StatusDisabled {
		if _, err := e.refresh.RevokeAll(ctx, acct.ID); err != nil {
			e.warn("authcore: revoke tokens of disabled user %d: %v", acct.ID, err)
		}
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, acct.ID, false, ErrAccountDisabled, nil)
		return nil, ErrRefreshInvalid
	}

	access, accessExp, err := e.tokens.IssueAccessToken(acct.ID, acct.Email, acct.Role, e.config.JWT.AccessTTL)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, acct.ID, true, nil, nil)
	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     next.Plaintext,
		RefreshExpiresAt: next.ExpiresAt,
	}, nil
}

func (e *Engine) onRefreshReplay(userID int64) {
	e.metricInc(MetricRefreshReplay)
	e.emitAudit(context.Background(), auditEventRefreshReplay, userID, false, refresh.ErrRevoked, map[string]string{
		"revoke_all": fmt.Sprint(e.config.Refresh.RevokeAllOnReplay),
	})
}

func mapRefreshError(err error) error {
	switch {
	case errors.Is(err, refresh.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	case errors.Is(err, refresh.ErrNotFound),
		errors.Is(err, refresh.ErrExpired),
		errors.Is(err, refresh.ErrRevoked):
		return fmt.Errorf("%w: %w", ErrRefreshInvalid, err)
	default:
		return err
	}
}

// Logout revokes a single refresh token. Unknown tokens are not an error.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || e.refresh == nil {
		return ErrEngineNotReady
	}
	err := e.refresh.Revoke(ctx, refreshToken)
	if err != nil && !errors.Is(err, refresh.ErrNotFound) {
		return mapRefreshError(err)
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, 0, true, nil, nil)
	return nil
}

// LogoutAll revokes every live refresh token of userID. Access tokens
// already issued stay valid until they expire.
func (e *Engine) LogoutAll(ctx context.Context, userID int64) (int64, error) {
	if e == nil || e.refresh == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.refresh.RevokeAll(ctx, userID)
	if err != nil {
		return 0, mapRefreshError(err)
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutAll, userID, true, nil, map[string]string{
		"revoked": fmt.Sprint(n),
	})
	return n, nil
}

// ValidateAccess verifies an access token locally. Every failure wraps
// ErrTokenInvalid together with the jwt package's specific error.
func (e *Engine) ValidateAccess(_ context.Context, token string) (*AuthResult, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	claims, err := e.tokens.VerifyKind(token, jwt.KindAccess)
	e.metrics.Observe(MetricValidateLatency, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	return &AuthResult{
		UserID:    claims.UserID,
		Email:     claims.Subject,
		Role:      claims.Role,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAtTime(),
	}, nil
}

// CheckRateLimit counts one request for identifier under scope. Denials
// return a *RateLimitError. Counter-store failures allow the request.
func (e *Engine) CheckRateLimit(ctx context.Context, scope, identifier string) error {
	if e == nil || e.limiter == nil {
		return nil
	}
	p := e.config.RateLimit.Policy(scope)
	err := e.limiter.Check(ctx, scope, identifier, rate.Policy{Limit: p.Limit, Window: p.Window})
	if err == nil {
		return nil
	}
	var le *rate.LimitError
	if errors.As(err, &le) {
		e.metricInc(MetricRateLimitHit)
		e.emitAudit(ctx, auditEventRateLimited, 0, false, ErrRateLimited, map[string]string{"scope": scope})
		return &RateLimitError{Scope: scope, RetryAfter: le.RetryAfter}
	}
	return err
}

func (e *Engine) onRateLimitError(scope string, err error) {
	e.metricInc(MetricRateLimitFailOpen)
	e.warn("authcore: rate limiter unavailable for %s, allowing request: %v", scope, err)
}

// KeySet returns the public key discovery document.
func (e *Engine) KeySet() jwks.Document {
	return e.publisher.Publish()
}

// KeySetJSON returns KeySet encoded for /.well-known/jwks.json.
func (e *Engine) KeySetJSON() ([]byte, error) {
	return e.publisher.JSON()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	if len(email) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
