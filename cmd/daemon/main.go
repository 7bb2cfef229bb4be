// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/api"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/config"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/coordinator"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/flags"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/locks"
	xlog "github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/log"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/progress"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/registry"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/remote"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/resilience"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/store"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe defaults until config is loaded.
	xlog.Configure(xlog.Config{Level: "info", Service: "unpuzzle"})
	logger := xlog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", *configPath).
			Msg("failed to load configuration")
	}
	xlog.Configure(xlog.Config{Level: cfg.LogLevel, Service: "unpuzzle"})

	fl, cleanup, err := buildFlags(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load feature flags")
	}
	defer cleanup()

	backend, closeBackend, err := buildBackend(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", string(cfg.Backend)).Msg("failed to initialize backend")
	}
	defer closeBackend()

	breaker := resilience.NewCircuitBreaker("remote", 5, 30*time.Second)
	guarded := resilience.NewGuardedBackend(backend, breaker)

	normalized := store.New()
	mirror := store.NewMirror(normalized, cfg.AuthoritativeNormalized, xlog.WithComponent("mirror"))
	lockMgr := locks.NewManager()
	reg := registry.New(
		registry.WithDebounceWindow(cfg.DebounceWindow),
		registry.WithStaleAfter(cfg.StaleAfter),
		registry.WithMaxEntries(cfg.RegistryMaxEntries),
	)
	bus := progress.NewBus()
	coord := coordinator.New(mirror, lockMgr, reg, guarded, coordinator.Config{
		ReconcileDelay: cfg.ReconcileDelay,
		LockTimeout:    cfg.LockTimeout,
	})

	server := api.NewServer(coord, mirror, reg, bus, fl)
	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Router(api.Config{RateLimitPerMinute: cfg.RateLimitPerMinute}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		coord.ConsumeProgress(gctx, bus, fl)
		return nil
	})

	g.Go(func() error {
		logger.Info().
			Str("listen", cfg.Listen).
			Str("backend", string(cfg.Backend)).
			Str("version", version).
			Msg("daemon started")
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		bus.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("daemon exited with error")
	}
	logger.Info().Msg("daemon stopped")
}

// buildFlags returns the flag provider and its cleanup.
func buildFlags(cfg config.Config) (flags.Provider, func(), error) {
	if cfg.FlagsFile == "" {
		return flags.Disabled, func() {}, nil
	}
	f, err := flags.NewFile(cfg.FlagsFile)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

// buildBackend returns the configured remote backend and its cleanup.
func buildBackend(cfg config.Config) (remote.Backend, func(), error) {
	switch cfg.Backend {
	case config.BackendRedis:
		b, err := remote.NewRedisBackend(remote.RedisConfig{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		}, xlog.WithComponent("redis"))
		if err != nil {
			return nil, nil, err
		}
		return b, func() { _ = b.Close() }, nil
	case config.BackendSQLite:
		b, err := remote.NewSQLiteBackend(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { _ = b.Close() }, nil
	default:
		return remote.NewMemoryBackend(), func() {}, nil
	}
}
