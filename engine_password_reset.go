package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/secondary"
)

// RequestPasswordReset issues a reset token for email and hands it to the
// notifier. It returns nil for unknown and disabled accounts alike; only a
// storage failure is reported.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if !e.config.PasswordReset.Enabled {
		return nil
	}
	e.metricInc(MetricPasswordResetRequest)

	acct, err := e.store.GetAccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			e.emitAudit(ctx, auditEventPasswordResetRequest, 0, false, ErrUserNotFound, nil)
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if acct.Status == account.StatusDisabled {
		e.emitAudit(ctx, auditEventPasswordResetRequest, acct.ID, false, ErrAccountDisabled, nil)
		return nil
	}

	cred, err := e.secondary.Issue(ctx, acct.ID, 0, secondary.KindPasswordReset)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.emitAudit(ctx, auditEventPasswordResetRequest, acct.ID, true, nil, nil)

	err = e.notifier.Notify(ctx, notify.Message{
		Kind:      notify.KindPasswordReset,
		UserID:    acct.ID,
		To:        acct.Email,
		Secret:    cred.Secret,
		ExpiresAt: cred.ExpiresAt,
	})
	if err != nil {
		e.warn("authcore: deliver reset token to user %d: %v", acct.ID, err)
	}
	return nil
}

// ResetPassword consumes token and stores the new password hash in the same
// step, then revokes every refresh token of the account. A new password
// that fails policy leaves the token unconsumed.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if !e.config.PasswordReset.Enabled {
		return ErrResetInvalid
	}
	if err := e.hasher.CheckPolicy(newPassword); err != nil {
		return fmt.Errorf("%w: %w", ErrPasswordPolicy, err)
	}
	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	cred, err := e.secondary.Consume(ctx, secondary.ConsumeRequest{
		Kind:   secondary.KindPasswordReset,
		Secret: token,
		Effect: secondary.Effect{Kind: secondary.EffectSetPasswordHash, PasswordHash: hash},
	})
	if err != nil {
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, cred.UserID, false, err, nil)
		return mapSecondaryError(err, ErrResetInvalid)
	}

	if _, err := e.refresh.RevokeAll(ctx, cred.UserID); err != nil {
		// The password already changed; outstanding tokens expire on their own.
		e.warn("authcore: revoke refresh tokens after reset of user %d: %v", cred.UserID, err)
	}
	if e.config.Lockout.Enabled {
		if _, err := e.store.UpdateLockout(ctx, cred.UserID, e.lockout.Unlock); err != nil {
			e.warn("authcore: clear lockout after reset of user %d: %v", cred.UserID, err)
		}
	}
	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, cred.UserID, true, nil, nil)
	return nil
}

// ValidateResetToken reports whether token is currently usable without
// consuming it.
func (e *Engine) ValidateResetToken(ctx context.Context, token string) (bool, error) {
	if e == nil || e.secondary == nil {
		return false, ErrEngineNotReady
	}
	if !e.config.PasswordReset.Enabled {
		return false, nil
	}
	ok, err := e.secondary.Validate(ctx, token, secondary.KindPasswordReset)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ok, nil
}
