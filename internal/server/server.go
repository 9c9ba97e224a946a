// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer: it connects handlers, middleware, and
// routes, and decides which store and mail sender back the service.
//
// DEPENDENCY INJECTION FLOW:
// main.go loads config.Config and a logger, then:
//
//	Server.New() creates: store (sqlite | postgres | mongo)
//	                      sender (SMTP | log)
//	                      TokenService, PasswordService, OTPGenerator, providers
//	                      → AuthService → AuthHandler → routes
//
// This is the "composition root" pattern: all dependencies are wired in one
// place rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/auth-service/internal/auth"
	"github.com/sakif/auth-service/internal/config"
	"github.com/sakif/auth-service/internal/handler"
	"github.com/sakif/auth-service/internal/middleware"
	"github.com/sakif/auth-service/internal/notify"
	"github.com/sakif/auth-service/internal/repository"
	mongoRepo "github.com/sakif/auth-service/internal/repository/mongo"
	postgresRepo "github.com/sakif/auth-service/internal/repository/postgres"
	sqliteRepo "github.com/sakif/auth-service/internal/repository/sqlite"
	"github.com/sakif/auth-service/internal/service"
)

// storeOpenTimeout bounds connecting to the store and running migrations.
const storeOpenTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store connection. Start closes it after the HTTP
// server has drained, so in-flight requests never see a closed pool.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	store  repository.UserRepository
}

// New opens the configured store and sender and builds the router.
//
// IMPORT ALIASES:
// The store packages are imported as sqliteRepo, postgresRepo and mongoRepo
// so they don't shadow the driver packages of the same name.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeOpenTimeout)
	defer cancel()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	sender, err := newSender(cfg, logger)
	if err != nil {
		store.Close() // Clean up the store if the rest of the wiring fails
		return nil, fmt.Errorf("creating sender: %w", err)
	}

	s, err := newServer(cfg, logger, store, sender)
	if err != nil {
		store.Close()
		return nil, err
	}
	return s, nil
}

// newServer wires the service graph on top of an already open store.
// Tests call it directly with an in-memory store and a recording sender.
func newServer(cfg *config.Config, logger *slog.Logger, store repository.UserRepository, sender notify.Sender) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	authService := service.NewAuthService(
		store,
		tokens,
		auth.NewPasswordService(cfg.BcryptCost),
		auth.NewOTPGenerator(cfg.OTPTTL),
		sender,
		logger,
		service.Options{RequireVerifiedLogin: cfg.RequireVerifiedLogin},
	)

	authHandler := handler.NewAuthHandler(
		authService,
		providers(cfg, logger),
		handler.CookieConfig{Secure: cfg.CookieSecure, MaxAge: tokens.TTL()},
		cfg.ClientURL,
		logger,
	)

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}
	s.setupRoutes(authHandler, authService)
	return s, nil
}

// openStore connects to the backend selected by STORE_DRIVER.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.UserRepository, error) {
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		// Ensure the data directory exists (like `mkdir -p`).
		if cfg.DBPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		return sqliteRepo.New(ctx, cfg.DBPath, logger)
	case config.StorePostgres:
		return postgresRepo.New(ctx, cfg.DatabaseURL, logger)
	case config.StoreMongo:
		return mongoRepo.New(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// newSender picks SMTP delivery when a relay is configured. Without one the
// codes are written to the log, which is what local development wants.
func newSender(cfg *config.Config, logger *slog.Logger) (notify.Sender, error) {
	if cfg.SMTP.Host == "" {
		logger.Warn("SMTP_HOST not set, verification codes will be logged instead of emailed")
		return notify.NewLogSender(logger), nil
	}
	return notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.MailFrom,
		OTPTTL:   cfg.OTPTTL,
	}, logger)
}

// providers returns the federated login providers that have credentials.
func providers(cfg *config.Config, logger *slog.Logger) []auth.Provider {
	var out []auth.Provider
	if cfg.Google.Enabled() {
		out = append(out, auth.NewGoogleProvider(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.CallbackURL))
	}
	if cfg.GitHub.Enabled() {
		out = append(out, auth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHub.CallbackURL))
	}
	for _, p := range out {
		logger.Info("federated login enabled", slog.String("provider", p.Name()))
	}
	return out
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz                  → liveness
// POST   /signup                   → create account, email OTP
// POST   /verify-otp               → verify OTP, start session
// POST   /resend-otp               → new OTP for an unverified account
// POST   /login                    → password login, start session
// POST   /logout                   → clear session cookie
// GET    /protected                → profile of the session owner [auth]
// GET    /auth/{provider}          → redirect to Google / GitHub
// GET    /auth/{provider}/callback → finish federated login
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns unique ID to each request (for tracing)
// 2. RealIP: extracts real client IP from proxy headers
// 3. Recoverer: catches panics and returns 500 instead of crashing
// 4. Logger: logs each request with the request ID
// 5. CORS: answers preflights before any handler runs
func (s *Server) setupRoutes(h *handler.AuthHandler, authn auth.Authenticator) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	// Browsers only send the session cookie cross-origin when the response
	// allows credentials, which in turn forbids a wildcard origin.
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Accept", "Content-Type", chimiddleware.RequestIDHeader},
		ExposedHeaders:   []string{chimiddleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Get("/healthz", h.HandleHealth)

	s.router.Post("/signup", h.HandleSignup)
	s.router.Post("/verify-otp", h.HandleVerifyOTP)
	s.router.Post("/resend-otp", h.HandleResendOTP)
	s.router.Post("/login", h.HandleLogin)
	s.router.Post("/logout", h.HandleLogout)

	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(authn))
		r.Get("/protected", h.HandleProtected)
	})

	s.router.Get("/auth/{provider}", h.HandleProviderLogin)
	s.router.Get("/auth/{provider}/callback", h.HandleProviderCallback)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the store (flushes the SQLite WAL, returns pooled connections)
func (s *Server) Start() error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.Error("closing store", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("store", s.config.StoreDriver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give in-flight requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
