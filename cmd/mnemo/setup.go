package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/sandevgo/mnemo/internal/config"
	"github.com/sandevgo/mnemo/internal/core"
	"github.com/sandevgo/mnemo/internal/providers/embed"
	"github.com/sandevgo/mnemo/internal/service/memory"
	"github.com/sandevgo/mnemo/internal/storage/sqlite"
	"github.com/sandevgo/mnemo/internal/transport/metrics"
	"github.com/sandevgo/mnemo/pkg/log"
	"github.com/sandevgo/mnemo/pkg/srv"
)

// app holds what every command needs: the parsed config, the open store
// and the memory service built on top of it.
type app struct {
	cfg      *config.AppConfig
	store    *sqlite.Store
	embedder *embed.CachedEmbedder
	svc      *memory.Service
}

func newApp(ctx context.Context) (*app, error) {
	if err := initEnv(ctx, config.GetRuntimePath()); err != nil {
		return nil, fmt.Errorf("failed to init env: %w", err)
	}

	// 1. Configuration
	cfg, err := config.ParseAppConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	opts := memory.OptionsFromConfig(cfg)

	// 2. Storage
	store, err := sqlite.Open(ctx, cfg.GetDatabasePath(), sqlite.WithDuplicateThreshold(opts.DuplicateThreshold))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// 3. Embedder, nil when vector search is disabled
	embedder, err := embed.NewEmbedder(cfg.Embedding)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	var e core.Embedder
	if embedder != nil {
		e = embedder
	}

	log.FromCtx(ctx).Debug().
		Str("db", cfg.GetDatabasePath()).
		Str("embedder", cfg.Embedding.Provider).
		Msg("memory store ready")

	return &app{
		cfg:      cfg,
		store:    store,
		embedder: embedder,
		svc:      memory.NewService(store, e, opts),
	}, nil
}

// cleanup waits for inline maintenance, then closes the embedding cache
// and finally the store.
func (a *app) cleanup() srv.Service {
	return srv.NewCleanup(a.store.Close, a.closeEmbedder, func() error {
		a.svc.WaitMaintenance()
		return nil
	})
}

func (a *app) Close() error {
	return a.cleanup().Shutdown(context.Background())
}

func (a *app) closeEmbedder() error {
	if a.embedder == nil {
		return nil
	}
	return a.embedder.Close()
}

// NewServices lists the background services of a long running server in
// start order. Shutdown runs in reverse, so the store closes last.
func NewServices(a *app) []srv.Service {
	services := []srv.Service{a.cleanup()}

	if w := a.svc.Worker(); w != nil {
		services = append(services, w)
	}
	services = append(services,
		memory.NewMaintainer(a.svc),
		memory.NewExtractor(a.svc),
	)
	if a.cfg.Metrics.Addr != "" {
		services = append(services, metrics.NewServer(a.cfg.Metrics.Addr))
	}
	return services
}

func initEnv(ctx context.Context, runtimePath string) error {
	logger := log.FromCtx(ctx)
	envFile := filepath.Join(runtimePath, ".env")

	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn().Err(err).Str("path", envFile).Msg("failed to load .env file")
		return err
	}

	logger.Debug().Str("path", envFile).Msg("loaded .env file")
	return nil
}

// runWithApp sets up logging and the app for a one-shot command.
func runWithApp(ctx context.Context, fn func(context.Context, *app) error) error {
	ctx, flushLog := setupLogger(ctx)
	defer flushLog()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.FromCtx(ctx).Error().Err(err).Msg("failed to close store")
		}
	}()
	return fn(ctx, a)
}
