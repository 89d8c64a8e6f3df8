// Package main initializes and starts the FarmCredit remote application
// service, setting up configuration, logging, database connections,
// repositories, services, handlers, and optional TLS.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/FarmCredit/internal/config"
	"github.com/atinyakov/FarmCredit/internal/db"
	"github.com/atinyakov/FarmCredit/internal/logger"
	"github.com/atinyakov/FarmCredit/internal/middleware"
	"github.com/atinyakov/FarmCredit/internal/repository"
	"github.com/atinyakov/FarmCredit/internal/server/handler/http"
	"github.com/atinyakov/FarmCredit/internal/service"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line, environment and file configuration.
	options, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		os.Exit(1)
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, options, zapLogger); err != nil {
		zapLogger.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, options *config.Options, zapLogger *zap.Logger) error {
	// Initialize PostgreSQL connection and apply migrations.
	postgresDB, err := db.InitPostgres(ctx, options.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("cannot init database: %w", err)
	}
	defer postgresDB.Close()

	// Initialize repositories.
	appRepo := &repository.PostgresApplicationRepository{DB: postgresDB}
	registryRepo := &repository.PostgresRegistryRepository{DB: postgresDB}

	// Initialize business-logic services.
	appService := service.NewApplicationService(appRepo)
	registryService := service.NewRegistryService(registryRepo)

	// Create HTTP handlers.
	appHandler := &http.ApplicationHandler{ApplicationService: appService}
	registryHandler := &http.RegistryHandler{RegistryService: registryService}

	var limiter *middleware.RateLimiter
	if options.RateLimitRPS > 0 {
		limiter = middleware.NewRateLimiter(options.RateLimitRPS, options.RateLimitBurst, zapLogger)
	}

	// Build the router with middleware and routes.
	router := http.NewRouter(appHandler, registryHandler, limiter, zapLogger)

	server := &nethttp.Server{
		Addr:              options.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if options.TLSEnabled() {
		server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zapLogger.Info("starting server",
			zap.String("addr", options.Address),
			zap.Bool("tls", options.TLSEnabled()))
		var err error
		if options.TLSEnabled() {
			err = server.ListenAndServeTLS(options.TLSCert, options.TLSKey)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		zapLogger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), options.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
