package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tradeledger/backend/internal/cache"
	"tradeledger/backend/internal/config"
	"tradeledger/backend/internal/httpapi"
	"tradeledger/backend/internal/logging"
	"tradeledger/backend/internal/service"
	"tradeledger/backend/internal/store"
	"tradeledger/backend/internal/store/memory"
	pgstore "tradeledger/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogPretty)

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid security configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
	logger.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	closers := make([]func() error, 0, 2)
	defer func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logger.Warn().Err(err).Msg("close error")
			}
		}
	}()

	startupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	repo, closeRepo, err := openRepository(startupCtx, cfg, logger)
	if err != nil {
		return err
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	reports, denylist, closeCache := openCache(startupCtx, cfg, logger)
	if closeCache != nil {
		closers = append(closers, closeCache)
	}

	svc := service.New(repo, reports, time.Duration(cfg.ReportCacheTTLSeconds)*time.Second)
	created, err := svc.EnsureBootstrapAdmin(startupCtx, cfg.BootstrapAdminUsername, cfg.BootstrapAdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		logger.Info().Str("username", cfg.BootstrapAdminUsername).Msg("bootstrap admin ready")
	}

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, svc, denylist)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger)
	if cfg.ReportPDFFont != "" {
		ttf, err := os.ReadFile(cfg.ReportPDFFont)
		if err != nil {
			return fmt.Errorf("read report pdf font: %w", err)
		}
		api.SetPDFFont(ttf)
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.Address()).Msg("trade ledger backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openRepository picks postgres when DATABASE_URL is set and the seeded
// in-memory store otherwise. A configured but unreachable database is fatal.
func openRepository(ctx context.Context, cfg config.Config, logger zerolog.Logger) (store.Repository, func() error, error) {
	if cfg.DatabaseURL == "" {
		logger.Info().Str("repository", "memory").Msg("repository selected")
		return memory.NewSeeded(), nil, nil
	}

	if cfg.DBAutoMigrate {
		if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
			return nil, nil, fmt.Errorf("migrate database: %w", err)
		}
	}
	pg, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
	}
	logger.Info().Str("repository", "postgres").Msg("repository selected")
	return pg, pg.Close, nil
}

// openCache wires redis when configured and reachable. Without it reports
// are never cached and revoked tokens live in process memory.
func openCache(ctx context.Context, cfg config.Config, logger zerolog.Logger) (cache.ReportCache, cache.TokenDenylist, func() error) {
	if cfg.RedisAddr == "" {
		logger.Info().Str("cache", "noop").Msg("cache selected")
		return cache.NoopReportCache{}, cache.NewMemoryTokenDenylist(), nil
	}

	client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, using noop cache")
		_ = client.Close()
		return cache.NoopReportCache{}, cache.NewMemoryTokenDenylist(), nil
	}
	logger.Info().Str("cache", "redis").Msg("cache selected")
	return cache.NewRedisReportCache(client), cache.NewRedisTokenDenylist(client), client.Close
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return errors.New("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.BootstrapAdminPassword != "" && len(cfg.BootstrapAdminPassword) < 8 {
		return errors.New("BOOTSTRAP_ADMIN_PASSWORD must be at least 8 characters")
	}
	return nil
}
