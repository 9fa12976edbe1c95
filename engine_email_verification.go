package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/secondary"
)

// VerifyEmail consumes code for the account registered under email and
// activates the account in the same step.
//
// A wrong code counts against the code's attempt cap even though the call
// fails. Every credential failure, including an unknown email, returns
// ErrVerificationInvalid wrapping the specific secondary error.
func (e *Engine) VerifyEmail(ctx context.Context, email, code string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if !e.config.EmailVerification.Enabled {
		return ErrVerificationInvalid
	}

	acct, err := e.store.GetAccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			e.metricInc(MetricEmailVerificationFailure)
			return fmt.Errorf("%w: %w", ErrVerificationInvalid, secondary.ErrNotFound)
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	_, err = e.secondary.Consume(ctx, secondary.ConsumeRequest{
		Kind:   secondary.KindEmailVerification,
		UserID: acct.ID,
		Secret: code,
		Effect: secondary.Effect{Kind: secondary.EffectActivateAccount},
	})
	if err != nil {
		e.metricInc(MetricEmailVerificationFailure)
		e.emitAudit(ctx, auditEventEmailVerificationConfirm, acct.ID, false, err, nil)
		return mapSecondaryError(err, ErrVerificationInvalid)
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditEventEmailVerificationConfirm, acct.ID, true, nil, nil)
	return nil
}

// ResendVerification issues a new code for a pending account. Unknown and
// already verified emails return nil so the response does not reveal which
// addresses are registered.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if !e.config.EmailVerification.Enabled {
		return nil
	}

	acct, err := e.store.GetAccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if acct.Status != account.StatusPendingVerification {
		return nil
	}
	if _, err := e.sendVerification(ctx, acct); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// mapSecondaryError turns a secondary credential failure into invalid,
// keeping the specific cause reachable through errors.Is.
func mapSecondaryError(err, invalid error) error {
	if errors.Is(err, secondary.ErrUnavailable) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%w: %w", invalid, err)
}
