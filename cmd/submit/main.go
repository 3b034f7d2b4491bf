// File: cmd/submit/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"concept-forge/internal/application"
	"concept-forge/internal/config"
	"concept-forge/internal/domain/model"
	"concept-forge/internal/infra/logging"
	"concept-forge/internal/infra/worker"
	"concept-forge/internal/usecase"
)

// submit creates one task and enqueues it. With -dev the whole pipeline
// runs in this process against in-memory stores.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "process the task in-process on in-memory stores")
	owner := flag.String("owner", "", "owner id")
	typ := flag.String("type", string(model.TaskTypeGeneration), "generation|refinement")
	prompt := flag.String("prompt", "", "prompt (generation)")
	style := flag.String("style", "", "optional style hint")
	conceptID := flag.String("concept", "", "source concept id (refinement)")
	instruction := flag.String("instruction", "", "refinement instruction")
	wait := flag.Duration("wait", 0, "wait up to this long for a terminal status")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx := context.Background()
	rt, err := application.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bootstrap failed")
	}
	defer rt.Close()

	if cfg.Runtime.Dev {
		if *wait == 0 {
			*wait = time.Minute
		}
		runCtx, stop := context.WithCancel(ctx)
		pool := worker.NewPool(cfg.Worker.Concurrency, logger)
		pool.Start(runCtx)
		consumer := worker.NewJobConsumer(rt.Queue, pool, rt.Processor, 100*time.Millisecond, false, logger)
		go func() { _ = consumer.Run(runCtx) }()
		defer func() { stop(); pool.Stop() }()
	}

	params := map[string]string{}
	for k, v := range map[string]string{
		usecase.ParamPrompt:      *prompt,
		usecase.ParamStyle:       *style,
		usecase.ParamConceptID:   *conceptID,
		usecase.ParamInstruction: *instruction,
	} {
		if v != "" {
			params[k] = v
		}
	}

	task, err := application.NewSubmitter(rt.Tasks, rt.Queue, logger).Submit(ctx, *owner, model.TaskType(*typ), params)
	if err != nil {
		logger.Fatal().Err(err).Msg("submit failed")
	}

	if *wait > 0 {
		wctx, cancel := context.WithTimeout(ctx, *wait)
		defer cancel()
		if t, err := application.Await(wctx, rt.Tasks, task.ID, *owner, 250*time.Millisecond); err == nil {
			task = t
		} else {
			logger.Warn().Err(err).Str("task_id", task.ID).Msg("task not terminal yet")
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(task)
}
