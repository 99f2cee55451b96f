// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package web serves the account pages: registration, email verification,
// login/logout, the dashboard and password reset.
package web

import (
	"context"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/internal/observability"
	"github.com/holomush/accountd/internal/session"
)

// DefaultCookieName is the session cookie name used when none is configured.
const DefaultCookieName = "accountd_session"

// AccountService is the account flow surface used by the handlers.
// *account.Service satisfies it.
type AccountService interface {
	Register(ctx context.Context, in account.RegisterInput) (*account.Account, error)
	Verify(ctx context.Context, token string) (*account.Account, error)
	Login(ctx context.Context, email, password string) (account.Outcome, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ValidateResetToken(ctx context.Context, token string) (*account.Account, error)
	ResetPassword(ctx context.Context, token string, in account.ResetInput) error
}

// Options tunes cookies and timeouts.
type Options struct {
	CookieName    string
	SessionTTL    time.Duration
	SecureCookies bool
	// RequestTimeout bounds each request. Zero uses 30s.
	RequestTimeout time.Duration
}

// Deps are the collaborators of the web server.
type Deps struct {
	Accounts AccountService
	Sessions session.Codec
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// Server serves the account pages.
type Server struct {
	accounts AccountService
	sessions session.Codec
	metrics  *observability.Metrics
	logger   *slog.Logger
	opts     Options
	pages    map[string]*template.Template
	handler  http.Handler

	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer validates deps and builds the router.
func NewServer(deps Deps, opts Options) (*Server, error) {
	if deps.Accounts == nil {
		return nil, oops.Code("WEB_CONFIG_INVALID").With("field", "accounts").Errorf("account service is required")
	}
	if deps.Sessions == nil {
		return nil, oops.Code("WEB_CONFIG_INVALID").With("field", "sessions").Errorf("session codec is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = session.DefaultTTL
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	pages, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	s := &Server{
		accounts: deps.Accounts,
		sessions: deps.Sessions,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		opts:     opts,
		pages:    pages,
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))
	r.Use(s.loadSession)

	r.Get("/", s.handleHome)

	r.Route("/users", func(r chi.Router) {
		r.With(s.RequireAnonymous).Get("/register", s.handleRegisterPage)
		r.Post("/register", s.handleRegister)

		r.With(s.RequireAnonymous).Get("/login", s.handleLoginPage)
		r.Post("/login", s.handleLogin)

		r.With(s.RequireAuthenticated).Get("/dashboard", s.handleDashboard)

		r.With(s.RequireAnonymous).Get("/verify", s.handleVerifyPage)
		r.Post("/verify", s.handleVerify)

		r.Get("/forget", s.handleForgetPage)
		r.Post("/forget", s.handleForget)

		r.Get("/reset/{token}", s.handleResetPage)
		r.Post("/reset/{token}", s.handleReset)

		r.With(s.RequireAuthenticated).Get("/logout", s.handleLogout)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})
	return r
}

// Start listens on addr and serves in the background. The returned channel
// receives a serve error, if any, and is closed when the server stops.
func (s *Server) Start(addr string) (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("web server already running")
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("web server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("web server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.With("operation", "shutdown_web_server").Wrap(err)
	}
	s.logger.Info("web server stopped")
	return nil
}

// Addr returns the listen address, or "" if not started.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
