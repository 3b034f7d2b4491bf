// File: internal/usecase/pipeline.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"concept-forge/internal/domain"
	"concept-forge/internal/domain/model"
	ucport "concept-forge/internal/domain/ports/usecase"
	"concept-forge/internal/infra/metrics"
)

// Stage is one named unit of pipeline work. Run must not touch task status.
type Stage struct {
	Name    string
	Timeout time.Duration // zero means the executor default
	Run     func(ctx context.Context, in StageInput) (any, error)
}

// Step is either a single dependent stage or a group of independent
// stages that run concurrently behind a barrier.
type Step struct {
	stages     []Stage
	concurrent bool
}

func Sequential(s Stage) Step { return Step{stages: []Stage{s}} }

func Concurrent(stages ...Stage) Step { return Step{stages: stages, concurrent: true} }

func (s Step) Stages() []Stage { return s.stages }

// Pipeline is the ordered stage list for one task type. The output of
// ResultStage must be the id of the produced aggregate.
type Pipeline struct {
	Type        model.TaskType
	Steps       []Step
	ResultStage string
}

// Outputs is a read-only view of finished stage results.
type Outputs struct {
	m map[string]any
}

func (o Outputs) Get(stage string) (any, bool) {
	v, ok := o.m[stage]
	return v, ok
}

// Output returns the typed result of an earlier stage.
func Output[T any](o Outputs, stage string) (T, error) {
	var zero T
	v, ok := o.m[stage]
	if !ok {
		return zero, fmt.Errorf("%w: no output from stage %q", domain.ErrOperationFailed, stage)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: stage %q produced %T", domain.ErrOperationFailed, stage, v)
	}
	return t, nil
}

// StageInput is what a stage sees. Task is a private snapshot.
type StageInput struct {
	Task    *model.Task
	Payload map[string]string
	Outputs Outputs
}

// Param reads a string parameter from the job payload, falling back to
// the task metadata.
func (in StageInput) Param(key string) string {
	if v, ok := in.Payload[key]; ok && v != "" {
		return v
	}
	if in.Task != nil {
		return in.Task.Metadata[key]
	}
	return ""
}

type PipelineResult struct {
	Pipeline    model.TaskType
	Outputs     Outputs
	resultStage string
}

func (r *PipelineResult) ResultID() (string, error) {
	id, err := Output[string](r.Outputs, r.resultStage)
	if err == nil && id == "" {
		err = fmt.Errorf("%w: empty result id", domain.ErrOperationFailed)
	}
	return id, err
}

// PipelineRegistry maps task types to pipelines.
type PipelineRegistry struct {
	mu        sync.RWMutex
	pipelines map[model.TaskType]Pipeline
}

func NewPipelineRegistry() *PipelineRegistry {
	return &PipelineRegistry{pipelines: make(map[model.TaskType]Pipeline)}
}

func (r *PipelineRegistry) Register(p Pipeline) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pipelines[p.Type] = p
}

func (r *PipelineRegistry) Lookup(t model.TaskType) (Pipeline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pipelines[t]
	if !ok {
		return Pipeline{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedTaskType, t)
	}
	return p, nil
}

// StageExecutor runs pipelines for one task at a time; it is safe for
// concurrent use across tasks.
type StageExecutor struct {
	defaultTimeout time.Duration
	tracer         trace.Tracer
	log            *zerolog.Logger
}

func NewStageExecutor(defaultTimeout time.Duration, log *zerolog.Logger) *StageExecutor {
	if defaultTimeout <= 0 {
		defaultTimeout = 2 * time.Minute
	}
	return &StageExecutor{
		defaultTimeout: defaultTimeout,
		tracer:         otel.Tracer("concept-forge/pipeline"),
		log:            log,
	}
}

// Run executes every step in order. Any failure stops the pipeline and is
// returned as a *domain.StageError naming the failing stage.
func (e *StageExecutor) Run(ctx context.Context, p Pipeline, task *model.Task, payload map[string]string) (*PipelineResult, error) {
	ctx, span := e.tracer.Start(ctx, "pipeline."+string(p.Type),
		trace.WithAttributes(attribute.String("task_id", task.ID)))
	defer span.End()

	outputs := make(map[string]any)
	for _, step := range p.Steps {
		view := snapshot(outputs)
		var (
			results map[string]any
			err     error
		)
		if step.concurrent && len(step.stages) > 1 {
			results, err = e.runConcurrent(ctx, p.Type, step.stages, task, payload, view)
		} else {
			results, err = e.runSequential(ctx, p.Type, step.stages, task, payload, view)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "stage failed")
			return nil, err
		}
		for name, out := range results {
			outputs[name] = out
		}
	}
	return &PipelineResult{Pipeline: p.Type, Outputs: Outputs{m: outputs}, resultStage: p.ResultStage}, nil
}

func (e *StageExecutor) runSequential(ctx context.Context, pipeline model.TaskType, stages []Stage, task *model.Task, payload map[string]string, view Outputs) (map[string]any, error) {
	results := make(map[string]any, len(stages))
	for _, st := range stages {
		out, err := e.runStage(ctx, pipeline, st, newInput(task, payload, view))
		if err != nil {
			return nil, err
		}
		results[st.Name] = out
	}
	return results, nil
}

// runConcurrent is the fan-out/fan-in barrier. The first failing branch
// cancels its siblings and is returned at once; late results are dropped.
func (e *StageExecutor) runConcurrent(ctx context.Context, pipeline model.TaskType, stages []Stage, task *model.Task, payload map[string]string, view Outputs) (map[string]any, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type branch struct {
		stage string
		out   any
		err   error
	}
	done := make(chan branch, len(stages)) // buffered so abandoned branches never block
	for _, st := range stages {
		go func(st Stage) {
			out, err := e.runStage(ctx, pipeline, st, newInput(task, payload, view))
			done <- branch{stage: st.Name, out: out, err: err}
		}(st)
	}

	results := make(map[string]any, len(stages))
	for range stages {
		b := <-done
		if b.err != nil {
			return nil, b.err
		}
		results[b.stage] = b.out
	}
	return results, nil
}

type stageOutcome struct {
	out any
	err error
}

func (e *StageExecutor) runStage(ctx context.Context, pipeline model.TaskType, st Stage, in StageInput) (out any, err error) {
	timeout := st.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	sctx, span := e.tracer.Start(sctx, "stage."+st.Name, trace.WithAttributes(
		attribute.String("pipeline", string(pipeline)),
		attribute.String("stage", st.Name),
	))
	start := time.Now()

	defer func() {
		if err != nil {
			if errors.Is(sctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				err = fmt.Errorf("%w after %s: %w", domain.ErrStageTimeout, timeout, err)
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "stage failed")
			err = &domain.StageError{Pipeline: string(pipeline), Stage: st.Name, TaskID: in.Task.ID, Err: err}
		}
		span.End()
		elapsed := time.Since(start)
		metrics.ObserveStage(string(pipeline), st.Name, elapsed.Milliseconds(), err == nil)
		e.log.Debug().
			Str("task_id", in.Task.ID).
			Str("pipeline", string(pipeline)).
			Str("stage", st.Name).
			Dur("duration", elapsed).
			Err(err).
			Msg("stage finished")
	}()

	// The stage runs in its own goroutine so a stage that ignores its
	// context still fails at the deadline.
	res := make(chan stageOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				res <- stageOutcome{err: fmt.Errorf("%w: panic: %v", domain.ErrOperationFailed, r)}
			}
		}()
		o, err := st.Run(sctx, in)
		res <- stageOutcome{out: o, err: err}
	}()

	select {
	case r := <-res:
		return r.out, r.err
	case <-sctx.Done():
		return nil, sctx.Err()
	}
}

func newInput(task *model.Task, payload map[string]string, view Outputs) StageInput {
	p := make(map[string]string, len(payload))
	for k, v := range payload {
		p[k] = v
	}
	return StageInput{Task: task.Clone(), Payload: p, Outputs: view}
}

func snapshot(m map[string]any) Outputs {
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Outputs{m: cp}
}

// Compile-time check
var _ ucport.PipelineRunner = (*PipelineRunner)(nil)

// PipelineRunner resolves the pipeline by task type and runs it.
type PipelineRunner struct {
	registry *PipelineRegistry
	exec     *StageExecutor
}

func NewPipelineRunner(registry *PipelineRegistry, exec *StageExecutor) *PipelineRunner {
	return &PipelineRunner{registry: registry, exec: exec}
}

func (r *PipelineRunner) Execute(ctx context.Context, task *model.Task, payload map[string]string) (string, error) {
	p, err := r.registry.Lookup(task.Type)
	if err != nil {
		return "", err
	}
	res, err := r.exec.Run(ctx, p, task, payload)
	if err != nil {
		return "", err
	}
	return res.ResultID()
}
