package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lmdhub/api/internal/di"
	"github.com/lmdhub/api/internal/handlers"
	"github.com/lmdhub/api/internal/platform/config"
	"github.com/lmdhub/api/internal/platform/observability"
	"github.com/lmdhub/api/internal/platform/secrets"
)

func main() {
	boot, err := config.LoadBootstrap()
	if err != nil {
		fmt.Fprintf(os.Stderr, "lmdhub: %v\n", err)
		os.Exit(1)
	}
	logger, err := observability.NewLogger(boot.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lmdhub: build logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, boot, logger.Named("api"))
	stop()
	if err != nil {
		logger.Error("lmdhub api stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(ctx context.Context, boot config.Bootstrap, logger *zap.Logger) error {
	store, err := secrets.Open(ctx, secrets.Settings{
		Environment:     boot.Environment,
		DefaultProject:  boot.Secrets.DefaultProject,
		Projects:        boot.Secrets.Projects,
		VersionPins:     boot.Secrets.VersionPins,
		FallbackFile:    boot.Secrets.FallbackFile,
		CredentialsFile: boot.Secrets.CredentialsFile,
	}, secrets.Deps{Logger: logger.Named("secrets")})
	if err != nil {
		return fmt.Errorf("open secret store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("secret store close failed", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(store.Resolve)),
		config.WithRequiredSecrets(boot.RequiredSecrets()...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Error("required secrets did not resolve", zap.Strings("secrets", missing.RedactedNames()))
		}
		return err
	}

	container, err := di.NewContainer(ctx, cfg, di.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("build dependencies: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close failed", zap.Error(err))
		}
	}()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      newRouter(boot, cfg, container, logger.Named("http")),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("lmdhub api listening",
			zap.String("addr", server.Addr),
			zap.String("environment", cfg.Environment),
			zap.String("distanceProvider", cfg.Distance.Provider),
			zap.Bool("discounts", cfg.Features.EnableDiscounts),
		)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received, draining requests")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func newRouter(boot config.Bootstrap, cfg config.Config, container *di.Container, logger *zap.Logger) http.Handler {
	healthOpts := []handlers.HealthOption{
		handlers.WithHealthBuildInfo(handlers.BuildInfo{
			Version:     boot.Build.Version,
			CommitSHA:   boot.Build.CommitSHA,
			Environment: cfg.Environment,
		}),
	}
	for name, check := range container.Checks {
		healthOpts = append(healthOpts, handlers.WithReadinessCheck(name, handlers.ReadinessCheck(check)))
	}

	quotes := container.Services.Quotes
	checkout := container.Services.Checkout

	return handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.ContextLogger(logger),
			observability.TraceMiddleware(strings.TrimSpace(cfg.Observability.ProjectID)),
			observability.Recoverer(logger),
			observability.AccessLog(),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(healthOpts...)),
		handlers.WithPricingRoutes(handlers.NewPricingHandlers(quotes).Routes),
		handlers.WithQuoteRoutes(handlers.NewQuoteHandlers(quotes,
			handlers.WithQuoteRateLimit(cfg.Server.QuoteRateLimit, cfg.Server.QuoteRateWindow, time.Now),
		).Routes),
		handlers.WithCheckoutRoutes(handlers.NewCheckoutHandlers(checkout).Routes),
		handlers.WithDiscountRoutes(handlers.NewDiscountHandlers(checkout, container.Catalog.Pricing.Currency).Routes),
	)
}
