// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package web exposes the auth service over HTTP.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/holomush/holoauth/internal/auth"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// AuthService is the subset of *auth.Service the HTTP layer calls.
type AuthService interface {
	Register(ctx context.Context, in auth.RegistrationInput) (*auth.Outcome, error)
	Login(ctx context.Context, creds auth.Credentials) (*auth.Outcome, error)
	Logout(ctx context.Context) *http.Cookie
	Authorize(ctx context.Context, headers http.Header) (context.Context, *auth.Claims, error)
	CurrentIdentity(ctx context.Context) (*auth.Identity, error)
}

var _ AuthService = (*auth.Service)(nil)

// HTTPRecorder receives one observation per served request.
// *observability.Metrics implements it.
type HTTPRecorder interface {
	RecordHTTP(method, route string, status int, elapsed time.Duration)
}

// RouterConfig holds the dependencies of NewRouter.
type RouterConfig struct {
	Service AuthService

	// AllowedOrigins lists CORS origins allowed to send credentials. Empty
	// disables cross-origin requests.
	AllowedOrigins []string

	// Logger defaults to slog.Default().
	Logger   *slog.Logger
	Recorder HTTPRecorder
}

// NewRouter builds the HTTP handler for the auth endpoints.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{service: cfg.Service, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(observe(logger, cfg.Recorder))
	r.Use(middleware.Recoverer)
	// cors treats an empty origin list as "*", which must never be combined
	// with credentials.
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Post("/logout", h.logout)
		r.With(RequireAuth(cfg.Service, logger)).Get("/me", h.me)
	})
	return r
}
