package application

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"concept-forge/internal/config"
	"concept-forge/internal/domain/ports/adapter"
	"concept-forge/internal/domain/ports/repository"
	"concept-forge/internal/infra/adapters/ai"
	"concept-forge/internal/infra/api"
	"concept-forge/internal/infra/db/memory"
	pg "concept-forge/internal/infra/db/postgres"
	red "concept-forge/internal/infra/redis"
	"concept-forge/internal/infra/sched"
	"concept-forge/internal/infra/worker"
	"concept-forge/internal/usecase"
)

// Runtime is the composition root shared by the binaries.
type Runtime struct {
	Tasks     usecase.TaskUseCase
	Queue     adapter.JobQueue
	Processor *worker.TaskProcessor
	Checks    map[string]api.Check

	background []func(context.Context)
	closers    []func()
	log        *zerolog.Logger
}

// Build wires stores, queue, generation providers and the task pipeline.
// Dev mode runs entirely in memory with the noop generator unless a
// provider key is configured.
func Build(ctx context.Context, cfg *config.Config, log *zerolog.Logger) (*Runtime, error) {
	rt := &Runtime{Checks: map[string]api.Check{}, log: log}

	var (
		tasks, privileged repository.TaskRepository
		concepts          repository.ConceptRepository
		artifacts         adapter.ArtifactPersistence
	)
	if cfg.Runtime.Dev {
		log.Warn().Msg("dev mode: in-memory stores and queue")
		tasks = memory.NewTaskStore()
		concepts = memory.NewConceptStore()
		artifacts = memory.NewArtifactStore(cfg.Storage.PublicBaseURL)
		rt.Queue = memory.NewQueue()
	} else {
		pool, err := pg.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pool.Close)
		rt.Checks["postgres"] = pool.Ping
		rt.background = append(rt.background, func(ctx context.Context) {
			pg.ReportPoolStats(ctx, pool, 15*time.Second, log)
		})

		if cfg.Database.PrivilegedURL != "" {
			ppool, err := pg.Connect(ctx, cfg.Database.PrivilegedURL, 2)
			if err != nil {
				rt.Close()
				return nil, err
			}
			rt.closers = append(rt.closers, ppool.Close)
			privileged = pg.NewPostgresTaskRepo(ppool)
		}

		rc, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, func() { _ = rc.Close() })
		rt.Checks["redis"] = rc.Ping

		tasks = pg.NewTaskRepoCacheDecorator(pg.NewPostgresTaskRepo(pool), rc, cfg.Redis.TTL)
		concepts = pg.NewPostgresConceptRepo(pool)
		artifacts = pg.NewPostgresArtifactRepo(pool, cfg.Storage.PublicBaseURL)
		rt.Queue = red.NewJobQueue(rc, cfg.Queue.Name)
	}

	gen, err := BuildGenerator(ctx, cfg, log)
	if err != nil {
		rt.Close()
		return nil, err
	}

	saga := usecase.NewConceptSaga(concepts, cfg.Saga.CompensationTimeout, log)
	registry := usecase.NewPipelineRegistry()
	usecase.NewConceptPipelines(gen, artifacts, concepts, saga, usecase.ConceptPipelineOptions{
		ImageModel:           cfg.AI.ImageModel,
		ImageSize:            cfg.AI.ImageSize,
		PaletteModel:         cfg.AI.PaletteModel,
		PaletteCount:         cfg.Pipeline.PaletteCount,
		ColorsPerPalette:     cfg.Pipeline.ColorsPerPalette,
		VariationConcurrency: cfg.Pipeline.VariationConcurrency,
	}).Register(registry)
	runner := usecase.NewPipelineRunner(registry, usecase.NewStageExecutor(cfg.Pipeline.StageTimeout, log))

	taskUC := usecase.NewTaskUseCase(tasks, privileged, cfg.Task.ErrorMessageMax, log)
	rt.Tasks = taskUC
	reaper := sched.NewStaleTaskReaper(cfg.Task.ReapInterval, cfg.Task.StaleAfter, taskUC, log)
	rt.background = append(rt.background, func(ctx context.Context) { _ = reaper.Run(ctx) })
	rt.Processor = worker.NewTaskProcessor(taskUC, runner, concepts, cfg.Task.StatusTimeout, log)
	return rt, nil
}

// BuildGenerator returns the provider stack: routed by concern, capped by
// the concurrent call limit.
func BuildGenerator(ctx context.Context, cfg *config.Config, log *zerolog.Logger) (adapter.GenerationService, error) {
	if cfg.AI.OpenAIKey == "" && cfg.AI.GeminiKey == "" {
		if cfg.Runtime.Dev {
			log.Warn().Msg("dev mode: no AI keys, using noop generator")
			return ai.NewNoopGenerator(), nil
		}
		return nil, errors.New("no AI provider configured")
	}

	tokens := ai.NewTokenCounter()
	byProvider := map[string]adapter.GenerationService{}
	if cfg.AI.OpenAIKey != "" {
		o := ai.OpenAIOptions{
			APIKey:          cfg.AI.OpenAIKey,
			BaseURL:         cfg.AI.OpenAIBaseURL,
			ImageSize:       cfg.AI.ImageSize,
			RequestTimeout:  cfg.AI.RequestTimeout,
			MaxPromptTokens: cfg.AI.MaxPromptTokens,
			Tokens:          tokens,
		}
		if cfg.AI.ImageProvider == "openai" {
			o.ImageModel = cfg.AI.ImageModel
		}
		if cfg.AI.PaletteProvider == "openai" {
			o.PaletteModel = cfg.AI.PaletteModel
		}
		g, err := ai.NewOpenAIGenerator(o)
		if err != nil {
			return nil, err
		}
		byProvider["openai"] = g
	}
	if cfg.AI.GeminiKey != "" {
		o := ai.GeminiOptions{
			APIKey:          cfg.AI.GeminiKey,
			BaseURL:         cfg.AI.GeminiURL,
			RequestTimeout:  cfg.AI.RequestTimeout,
			MaxPromptTokens: cfg.AI.MaxPromptTokens,
			Tokens:          tokens,
		}
		if cfg.AI.ImageProvider == "gemini" {
			o.ImageModel = cfg.AI.ImageModel
		}
		if cfg.AI.PaletteProvider == "gemini" {
			o.PaletteModel = cfg.AI.PaletteModel
		}
		g, err := ai.NewGeminiGenerator(ctx, o)
		if err != nil {
			return nil, err
		}
		byProvider["gemini"] = g
	}
	log.Info().
		Str("image_provider", cfg.AI.ImageProvider).
		Str("palette_provider", cfg.AI.PaletteProvider).
		Int("providers", len(byProvider)).
		Msg("generation providers ready")
	routed := ai.NewRoutedGenerator(cfg.AI.ImageProvider, cfg.AI.PaletteProvider, byProvider)
	return ai.NewLimitedGenerator(routed, cfg.AI.ConcurrentLimit), nil
}

// StartBackground launches housekeeping loops bound to ctx.
func (r *Runtime) StartBackground(ctx context.Context) {
	for _, fn := range r.background {
		go fn(ctx)
	}
}

// Close releases connections in reverse order of acquisition.
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}
