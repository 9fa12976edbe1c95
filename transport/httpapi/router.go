package httpapi

import (
	"context"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/observability"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/middleware"
)

// AdminRole is the role allowed on /admin routes.
const AdminRole = "admin"

// Options configures the router. Zero values are usable.
type Options struct {
	Logger *observability.Logger
	// Metrics serves GET /metrics when non-nil.
	Metrics http.Handler
	// Ready backs GET /health. A nil func always reports healthy.
	Ready func(ctx context.Context) error
	// TrustForwardedFor takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that sets them.
	TrustForwardedFor bool
}

// NewRouter mounts the REST surface of engine.
func NewRouter(engine *authcore.Engine, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger()
	}
	h := &Handler{
		engine:  engine,
		logger:  opts.Logger,
		ready:   opts.Ready,
		trustFF: opts.TrustForwardedFor,
	}

	router := chi.NewRouter()
	router.Use(observability.Recover(opts.Logger))
	router.Use(observability.RequestLogging(opts.Logger, h.clientIP))
	router.Use(h.withClientIP)

	router.Get("/health", h.Health)
	router.Get("/.well-known/jwks.json", h.KeySet)
	if opts.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	router.With(h.rateLimit(authcore.ScopeRegister)).Post("/register", h.Register)
	router.With(h.rateLimit(authcore.ScopeLogin)).Post("/login", h.Login)
	router.With(h.rateLimit(authcore.ScopeRefresh)).Post("/refresh", h.Refresh)
	router.With(h.rateLimit(authcore.ScopeVerifyEmail)).Post("/verify-email", h.VerifyEmail)
	router.With(h.rateLimit(authcore.ScopeResendVerification)).Post("/resend-verification", h.ResendVerification)
	router.With(h.rateLimit(authcore.ScopeForgotPassword)).Post("/forgot-password", h.ForgotPassword)
	router.With(h.rateLimit(authcore.ScopeResetPassword)).Post("/reset-password", h.ResetPassword)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Guard(engine))
		r.Post("/logout", h.Logout)
		r.Get("/me", h.Me)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(AdminRole))
			r.Post("/accounts/{id}/unlock", h.UnlockAccount)
		})
	})

	return router
}

func (h *Handler) clientIP(r *http.Request) string {
	if h.trustFF {
		return rate.ClientIP(r)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handler) withClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := authcore.WithClientIP(r.Context(), h.clientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
