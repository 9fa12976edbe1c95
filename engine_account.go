package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/secondary"
)

// Register creates an account and, when email verification is enabled,
// issues and sends its first verification code. The account starts in
// StatusPendingVerification in that case and StatusActive otherwise.
//
// A failed notification does not fail registration; the user can ask for
// the code again through ResendVerification.
func (e *Engine) Register(ctx context.Context, email, pass string) (*RegisterResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	email = normalizeEmail(email)
	if !validEmail(email) {
		return nil, ErrInvalidEmail
	}
	if err := e.hasher.CheckPolicy(pass); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPasswordPolicy, err)
	}
	hash, err := e.hasher.Hash(pass)
	if err != nil {
		return nil, err
	}

	status := account.StatusActive
	if e.config.EmailVerification.Enabled {
		status = account.StatusPendingVerification
	}
	now := e.now()
	acct, err := e.store.CreateAccount(ctx, account.Account{
		Email:        email,
		PasswordHash: hash,
		Role:         e.config.Account.DefaultRole,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, account.ErrExists) {
			e.metricInc(MetricAccountDuplicate)
			e.emitAudit(ctx, auditEventAccountDuplicate, 0, false, ErrAccountExists, nil)
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.metricInc(MetricAccountCreated)
	e.emitAudit(ctx, auditEventAccountCreated, acct.ID, true, nil, nil)

	res := &RegisterResult{
		UserID: acct.ID,
		Email:  acct.Email,
		Status: acct.Status,
	}
	if status == account.StatusPendingVerification {
		cred, err := e.sendVerification(ctx, acct)
		if err != nil {
			e.warn("authcore: verification code for new user %d: %v", acct.ID, err)
		} else {
			res.VerificationExpiresAt = cred.ExpiresAt
		}
	}
	return res, nil
}

// sendVerification issues a fresh code for acct, superseding older ones,
// and hands it to the notifier.
func (e *Engine) sendVerification(ctx context.Context, acct account.Account) (secondary.Credential, error) {
	cred, err := e.secondary.Issue(ctx, acct.ID, 0, secondary.KindEmailVerification)
	if err != nil {
		return secondary.Credential{}, err
	}
	e.metricInc(MetricEmailVerificationRequest)
	e.emitAudit(ctx, auditEventEmailVerificationRequest, acct.ID, true, nil, nil)

	err = e.notifier.Notify(ctx, notify.Message{
		Kind:      notify.KindEmailVerification,
		UserID:    acct.ID,
		To:        acct.Email,
		Secret:    cred.Secret,
		ExpiresAt: cred.ExpiresAt,
	})
	if err != nil {
		e.warn("authcore: deliver verification code to user %d: %v", acct.ID, err)
	}
	return cred, nil
}

// UnlockAccount clears the lockout state of accountID regardless of
// whether the lock has expired.
func (e *Engine) UnlockAccount(ctx context.Context, accountID int64) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	_, err := e.store.UpdateLockout(ctx, accountID, e.lockout.Unlock)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.metricInc(MetricAccountUnlocked)
	e.emitAudit(ctx, auditEventAccountUnlocked, accountID, true, nil, nil)
	return nil
}

// Account returns the stored account without its password hash.
func (e *Engine) Account(ctx context.Context, id int64) (account.Account, error) {
	if e == nil || e.store == nil {
		return account.Account{}, ErrEngineNotReady
	}
	acct, err := e.store.GetAccountByID(ctx, id)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return account.Account{}, ErrUserNotFound
		}
		return account.Account{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	acct.PasswordHash = ""
	return acct, nil
}
