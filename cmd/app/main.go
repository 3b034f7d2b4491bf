// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"concept-forge/internal/application"
	"concept-forge/internal/config"
	"concept-forge/internal/infra/api"
	"concept-forge/internal/infra/logging"
	"concept-forge/internal/infra/metrics"
	"concept-forge/internal/infra/telemetry"
	"concept-forge/internal/infra/worker"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "run on in-memory stores and queue")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Tracing ----
	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry, version)
	if err != nil {
		logger.Fatal().Err(err).Msg("telemetry init failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown")
		}
	}()

	// ---- Stores, queue, providers, pipelines ----
	rt, err := application.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bootstrap failed")
	}
	defer rt.Close()

	// ---- Workers ----
	pool := worker.NewPool(cfg.Worker.Concurrency, logger)
	consumer := worker.NewJobConsumer(rt.Queue, pool, rt.Processor, cfg.Queue.PollWait, cfg.Queue.RecoverOnRun, logger)
	ops := api.NewOpsServer(cfg.Admin.Port, rt.Checks, logger)

	g, gctx := errgroup.WithContext(ctx)
	pool.Start(gctx)
	rt.StartBackground(gctx)
	g.Go(func() error { return consumer.Run(gctx) })
	g.Go(func() error { return ops.Run(gctx) })

	logger.Info().
		Str("version", version).
		Bool("dev", cfg.Runtime.Dev).
		Int("workers", cfg.Worker.Concurrency).
		Str("queue", cfg.Queue.Name).
		Msg("concept-forge started")

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("stopped with error")
	}
	// running tasks finish their terminal write before the stores close
	logger.Info().Msg("draining workers")
	pool.Stop()
	logger.Info().Msg("shutdown complete")
}
