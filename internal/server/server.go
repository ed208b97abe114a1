// Package server wires the authentication core into an HTTP server:
// routes, the middleware chain and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iudanet/authgate/internal/models"
	"github.com/iudanet/authgate/internal/server/guard"
	"github.com/iudanet/authgate/internal/server/handlers"
	"github.com/iudanet/authgate/internal/server/middleware"
)

// Options параметры HTTP сервера
type Options struct {
	Addr            string
	RateWindow      time.Duration
	ShutdownTimeout time.Duration
	RateLimit       int // 0 отключает ограничение
	TrustProxy      bool
}

// Deps зависимости HTTP слоя
type Deps struct {
	Auth   handlers.Authenticator
	Guard  *guard.Guard
	Health handlers.Pinger
}

// Server HTTP сервер аутентификации
type Server struct {
	logger  *slog.Logger
	handler http.Handler
	limiter *middleware.RateLimiter
	opts    Options
}

// New собирает маршруты и middleware
func New(logger *slog.Logger, deps Deps, opts Options) *Server {
	s := &Server{
		logger: logger,
		opts:   opts,
	}

	if opts.RateLimit > 0 {
		var limiterOpts []middleware.RateLimiterOption
		if opts.TrustProxy {
			limiterOpts = append(limiterOpts, middleware.WithTrustedProxy())
		}
		s.limiter = middleware.NewRateLimiter(opts.RateLimit, opts.RateWindow, logger, limiterOpts...)
	}

	s.handler = s.routes(deps)
	return s
}

func (s *Server) routes(deps Deps) http.Handler {
	authHandler := handlers.NewAuthHandler(s.logger, deps.Auth)
	profileHandler := handlers.NewProfileHandler(s.logger, deps.Auth)
	healthHandler := handlers.NewHealthHandler(s.logger, deps.Health)

	authenticated := middleware.AuthMiddleware(s.logger, deps.Guard)
	adminOnly := middleware.RequireRoles(s.logger, deps.Guard, models.RoleAdmin)

	mux := http.NewServeMux()

	// Публичные эндпоинты
	mux.Handle("POST /api/v1/auth/register", s.rateLimited(http.HandlerFunc(authHandler.Register)))
	mux.Handle("POST /api/v1/auth/login", s.rateLimited(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("GET /api/v1/health", healthHandler.Health)

	// Защищенные эндпоинты
	mux.Handle("GET /api/v1/profile", authenticated(http.HandlerFunc(profileHandler.Profile)))
	mux.Handle("GET /api/v1/admin", authenticated(adminOnly(http.HandlerFunc(profileHandler.Admin))))

	// Recover -> Logging -> Router
	var h http.Handler = mux
	h = middleware.LoggingMiddleware(s.logger, "/api/v1/health")(h)
	h = middleware.RecoveryMiddleware(s.logger)(h)
	return h
}

func (s *Server) rateLimited(h http.Handler) http.Handler {
	if s.limiter == nil {
		return h
	}
	return s.limiter.Middleware(h)
}

// Handler возвращает корневой http.Handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run слушает opts.Addr до отмены ctx, затем корректно завершает работу
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve обслуживает соединения из ln до отмены ctx.
// Активные запросы получают ShutdownTimeout на завершение.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.InfoContext(ctx, "starting HTTP server", slog.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.InfoContext(context.WithoutCancel(ctx), "shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout())
		defer cancel()

		defer s.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Close освобождает фоновые ресурсы сервера. Вызывается Serve при остановке.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

func (s *Server) shutdownTimeout() time.Duration {
	if s.opts.ShutdownTimeout <= 0 {
		return 10 * time.Second
	}
	return s.opts.ShutdownTimeout
}
