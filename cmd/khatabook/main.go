package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"khatabook/internal/backend"
	"khatabook/internal/cache"
	"khatabook/internal/cli"
	"khatabook/internal/core"
	apphttp "khatabook/internal/http"
	"khatabook/internal/log"
	"khatabook/internal/middleware/ratelimit"
	"khatabook/internal/services"
	"khatabook/internal/session"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to create backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if result.Cleanup == nil {
			return
		}
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	summaries := cache.NewLRUCache[core.Summary](cfg.SummaryCacheSize, cfg.SummaryCacheTTL)
	caches := cache.NewManager()
	caches.Register(summaries)
	caches.StartCleanup(time.Minute)
	defer caches.Stop()

	auth := services.NewAuthService(result.Store, bcrypt.DefaultCost)
	ledger := services.NewLedgerService(result.Store, result.Store, result.Publisher, summaries)
	sessions := session.NewManager([]byte(cfg.SessionSecret), cfg.SessionTTL)

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Dependencies{
		Auth:           auth,
		Ledger:         ledger,
		Sessions:       sessions,
		Store:          result.Store,
		Logger:         logger,
		SecureCookies:  cfg.CookieSecure,
		RateLimit:      ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute},
		TrustedProxies: cfg.TrustedProxies,
	})
	if err != nil {
		logger.Error("Failed to build HTTP server", log.FieldError, err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting khatabook server",
			log.FieldOperation, log.OpStartup,
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"messaging", result.Publisher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	stats := srv.Stats()
	logger.Info("Server stopped gracefully",
		log.FieldOperation, log.OpShutdown,
		"requests", stats.Requests,
		"rate_limited", stats.RateLimited,
		"tracked_clients", stats.TrackedClients,
		"suspicious", stats.Suspicious,
		"blocked", stats.Blocked)
}
