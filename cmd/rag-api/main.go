package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/upb/rag-query-service/app"
	"github.com/upb/rag-query-service/config"
	"github.com/upb/rag-query-service/internal/observability"
	"github.com/upb/rag-query-service/routes"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("rag-api: %v", err)
	}
}

func run() error {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.New(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Init logger
	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	// 3. Init telemetry before any instrumented component is built
	shutdownTracer, err := observability.InitTracer(ctx, cfg.Observability)
	if err != nil {
		return fmt.Errorf("failed to init tracer: %w", err)
	}
	shutdownMeter, err := observability.InitMeterProvider(ctx, cfg.Observability)
	if err != nil {
		_ = shutdownTracer(ctx)
		return fmt.Errorf("failed to init meter provider: %w", err)
	}

	// 4. Wire dependencies
	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		_ = shutdownMeter(ctx)
		_ = shutdownTracer(ctx)
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	srv := newServer(cfg, routes.SetupRoutes(deps))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("rag api starting",
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.Environment),
			zap.Bool("tls", cfg.Server.TLS.Enabled))
		serveErr <- listen(srv, cfg)
	}()

	select {
	case sig := <-quit:
		logger.Info("shutting down gracefully", zap.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	}

	return shutdown(srv, deps, cfg.Server.ShutdownTimeout, logger, shutdownMeter, shutdownTracer)
}

func newServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
}

func listen(srv *http.Server, cfg *config.Config) error {
	if cfg.Server.TLS.Enabled {
		return srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
	}
	return srv.ListenAndServe()
}

// shutdown drains in-flight requests first, then flushes usage events and
// closes stores, then flushes telemetry.
func shutdown(srv *http.Server, deps *app.Dependencies, timeout time.Duration, logger *zap.Logger, flushers ...observability.ShutdownFunc) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	if err := deps.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	for _, flush := range flushers {
		if err := flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}

	if len(errs) > 0 {
		logger.Error("shutdown completed with errors", zap.Errors("errors", errs))
		return errors.Join(errs...)
	}
	logger.Info("server stopped")
	return nil
}
