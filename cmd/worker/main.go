package main

import (
	"context"
	stderrors "errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SirClappington/resq/internal/adapter"
	"github.com/SirClappington/resq/internal/cache"
	"github.com/SirClappington/resq/internal/config"
	"github.com/SirClappington/resq/internal/logger"
	"github.com/SirClappington/resq/internal/objstore"
	"github.com/SirClappington/resq/internal/pipeline"
	"github.com/SirClappington/resq/internal/storage"
	"github.com/SirClappington/resq/internal/stream"
	"github.com/SirClappington/resq/internal/worker"
)

func main() {
	cfg := config.Load()
	logg, err := logger.New(cfg.LogJSON, cfg.Debug)
	if err != nil {
		log.Fatalf("creating a logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	broker := stream.New(rdb)
	stageCache := cache.NewRedis(rdb)

	var (
		repo pipeline.Persister
		pool *pgxpool.Pool
	)
	switch cfg.Repository {
	case "memory":
		repo = storage.NewMemory()
	default:
		pool, err = pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			logg.Fatal("connecting to postgres", zap.Error(err))
		}
		repo = storage.New(pool)
	}

	var (
		objects objstore.Store
		gcs     *objstore.GCS
	)
	if cfg.Bucket != "" {
		gcs, err = objstore.NewGCS(ctx)
		if err != nil {
			logg.Fatal("creating object store client", zap.Error(err))
		}
		objects = gcs
	} else {
		objects = objstore.NewMemory()
	}

	runner, err := adapter.New(cfg, logg)
	if err != nil {
		logg.Fatal("resolving stage adapter", zap.Error(err))
	}
	pipe := pipeline.New(runner, stageCache, repo, logg, cfg.CacheTTL())

	logg.Info("starting workers",
		zap.Int("count", cfg.WorkerCount),
		zap.String("adapter", cfg.StageAdapter),
		zap.String("repository", cfg.Repository),
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.WorkerCount; i++ {
		w := worker.New(broker, pipe, objects, logg, worker.Options{
			MaxRetries:  cfg.MaxRetries,
			ClaimIdle:   cfg.ClaimIdle(),
			ReadBlock:   cfg.ReadBlock(),
			DefaultSeed: cfg.DeterministicSeed,
			Bucket:      cfg.Bucket,
		})
		g.Go(func() error { return w.Run(gctx) })
	}
	if err := g.Wait(); err != nil && !stderrors.Is(err, context.Canceled) {
		logg.Error("worker group exited", zap.Error(err))
	}

	closeErr := rdb.Close()
	if gcs != nil {
		closeErr = multierr.Append(closeErr, gcs.Close())
	}
	if pool != nil {
		pool.Close()
	}
	if closeErr != nil {
		logg.Warn("shutdown cleanup", zap.Error(closeErr))
	}
	_ = logg.Sync()
}
