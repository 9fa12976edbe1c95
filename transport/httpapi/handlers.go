package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/observability"
	"github.com/MrEthical07/authcore/middleware"
)

// Handler serves the authentication endpoints.
type Handler struct {
	engine  *authcore.Engine
	logger  *observability.Logger
	ready   func(ctx context.Context) error
	trustFF bool
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type verifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type tokenResponse struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	TokenType        string    `json:"tokenType"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

type registerResponse struct {
	UserID                int64      `json:"userId"`
	Email                 string     `json:"email"`
	Status                string     `json:"status"`
	VerificationExpiresAt *time.Time `json:"verificationExpiresAt,omitempty"`
}

type accountResponse struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func newTokenResponse(pair *authcore.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "Bearer",
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	res, err := h.engine.Register(r.Context(), strings.TrimSpace(body.Email), body.Password)
	if err != nil {
		switch {
		case errors.Is(err, authcore.ErrInvalidEmail):
			writeError(w, http.StatusBadRequest, "email format is invalid")
		case errors.Is(err, authcore.ErrPasswordPolicy):
			writeError(w, http.StatusBadRequest, "password does not meet policy")
		case errors.Is(err, authcore.ErrAccountExists):
			writeError(w, http.StatusConflict, "account already exists")
		case errors.Is(err, authcore.ErrStoreUnavailable):
			writeError(w, http.StatusServiceUnavailable, "service unavailable")
		default:
			h.internalError(w, r, err)
		}
		return
	}

	out := registerResponse{UserID: res.UserID, Email: res.Email, Status: res.Status.String()}
	if !res.VerificationExpiresAt.IsZero() {
		exp := res.VerificationExpiresAt
		out.VerificationExpiresAt = &exp
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	pair, err := h.engine.Login(r.Context(), strings.TrimSpace(body.Email), body.Password)
	if err != nil {
		switch {
		case errors.Is(err, authcore.ErrAccountLocked):
			writeError(w, http.StatusLocked, "account temporarily locked")
		case errors.Is(err, authcore.ErrInvalidCredentials),
			errors.Is(err, authcore.ErrAccountUnverified),
			errors.Is(err, authcore.ErrAccountDisabled):
			writeError(w, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, authcore.ErrStoreUnavailable):
			writeError(w, http.StatusServiceUnavailable, "service unavailable")
		default:
			h.internalError(w, r, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, newTokenResponse(pair))
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	pair, err := h.engine.Refresh(r.Context(), strings.TrimSpace(body.RefreshToken))
	if err != nil {
		switch {
		case errors.Is(err, authcore.ErrRefreshInvalid):
			writeError(w, http.StatusUnauthorized, "invalid token")
		case errors.Is(err, authcore.ErrStoreUnavailable):
			writeError(w, http.StatusServiceUnavailable, "service unavailable")
		default:
			h.internalError(w, r, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, newTokenResponse(pair))
}

// Logout revokes every refresh token of the authenticated caller.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if _, err := h.engine.LogoutAll(r.Context(), res.UserID); err != nil {
		if errors.Is(err, authcore.ErrStoreUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "service unavailable")
			return
		}
		h.internalError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body verifyEmailRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	err := h.engine.VerifyEmail(r.Context(), strings.TrimSpace(body.Email), strings.TrimSpace(body.Code))
	if err != nil {
		switch {
		case errors.Is(err, authcore.ErrVerificationInvalid):
			writeError(w, http.StatusBadRequest, "invalid or expired code")
		case errors.Is(err, authcore.ErrStoreUnavailable):
			writeError(w, http.StatusServiceUnavailable, "service unavailable")
		default:
			h.internalError(w, r, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "email verified"})
}

func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var body emailRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := h.engine.ResendVerification(r.Context(), strings.TrimSpace(body.Email)); err != nil {
		if errors.Is(err, authcore.ErrStoreUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "service unavailable")
			return
		}
		h.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "if the account is awaiting verification, a new code has been sent"})
}

// ForgotPassword answers the same way whether or not the email is registered.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body emailRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := h.engine.RequestPasswordReset(r.Context(), strings.TrimSpace(body.Email)); err != nil {
		if errors.Is(err, authcore.ErrStoreUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "service unavailable")
			return
		}
		h.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "if the account exists, a reset link has been sent"})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetPasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	err := h.engine.ResetPassword(r.Context(), strings.TrimSpace(body.Token), body.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, authcore.ErrPasswordPolicy):
			writeError(w, http.StatusBadRequest, "password does not meet policy")
		case errors.Is(err, authcore.ErrResetInvalid):
			writeError(w, http.StatusBadRequest, "invalid or expired token")
		case errors.Is(err, authcore.ErrStoreUnavailable):
			writeError(w, http.StatusServiceUnavailable, "service unavailable")
		default:
			h.internalError(w, r, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "password updated"})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	acct, err := h.engine.Account(r.Context(), res.UserID)
	if err != nil {
		switch {
		case errors.Is(err, authcore.ErrUserNotFound):
			writeError(w, http.StatusUnauthorized, "unauthorized")
		case errors.Is(err, authcore.ErrStoreUnavailable):
			writeError(w, http.StatusServiceUnavailable, "service unavailable")
		default:
			h.internalError(w, r, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, accountResponse{
		ID:        acct.ID,
		Email:     acct.Email,
		Role:      acct.Role,
		Status:    acct.Status.String(),
		CreatedAt: acct.CreatedAt,
	})
}

func (h *Handler) UnlockAccount(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	if err := h.engine.UnlockAccount(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, authcore.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "account not found")
		case errors.Is(err, authcore.ErrStoreUnavailable):
			writeError(w, http.StatusServiceUnavailable, "service unavailable")
		default:
			h.internalError(w, r, err)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// KeySet serves the public verification keys.
func (h *Handler) KeySet(w http.ResponseWriter, r *http.Request) {
	body, err := h.engine.KeySetJSON()
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			h.logger.Warn("health check failed", map[string]any{"error": err.Error()})
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
