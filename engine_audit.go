package authcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/secondary"
)

const (
	auditEventLoginSuccess             = "login_success"
	auditEventLoginFailure             = "login_failure"
	auditEventLoginLocked              = "login_locked"
	auditEventAccountLocked            = "account_locked"
	auditEventAccountUnlocked          = "account_unlocked"
	auditEventRefreshSuccess           = "refresh_success"
	auditEventRefreshInvalid           = "refresh_invalid"
	auditEventRefreshReplay            = "refresh_replay_detected"
	auditEventLogout                   = "logout"
	auditEventLogoutAll                = "logout_all"
	auditEventRateLimited              = "rate_limit_triggered"
	auditEventAccountCreated           = "account_creation_success"
	auditEventAccountDuplicate         = "account_creation_duplicate"
	auditEventEmailVerificationRequest = "email_verification_request"
	auditEventEmailVerificationConfirm = "email_verification_confirm"
	auditEventPasswordResetRequest     = "password_reset_request"
	auditEventPasswordResetConfirm     = "password_reset_confirm"
)

// AuditErrorCode is the stable error label carried by audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrRefreshReplay      AuditErrorCode = "refresh_replay"
	auditErrExpired            AuditErrorCode = "expired"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrAccountDisabled    AuditErrorCode = "account_disabled"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrAccountUnverified  AuditErrorCode = "account_unverified"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrAttemptsExceeded   AuditErrorCode = "attempts_exceeded"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	userID int64,
	success bool,
	err error,
	metadata map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}
	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, refresh.ErrRevoked):
		return auditErrRefreshReplay
	case errors.Is(err, refresh.ErrExpired),
		errors.Is(err, secondary.ErrExpired):
		return auditErrExpired
	case errors.Is(err, secondary.ErrTooManyAttempts):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, refresh.ErrUnavailable),
		errors.Is(err, secondary.ErrUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrRefreshInvalid),
		errors.Is(err, ErrResetInvalid),
		errors.Is(err, ErrVerificationInvalid),
		errors.Is(err, ErrTokenInvalid),
		errors.Is(err, refresh.ErrNotFound),
		errors.Is(err, secondary.ErrNotFound),
		errors.Is(err, secondary.ErrUsed):
		return auditErrInvalidToken
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountUnverified):
		return auditErrAccountUnverified
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	default:
		return auditErrInternal
	}
}
