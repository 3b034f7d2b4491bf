package ai

import (
	"context"

	"concept-forge/internal/domain/model"
	"concept-forge/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.GenerationService = (*limitedGenerator)(nil)

// limitedGenerator caps concurrent vendor calls across all workers. A
// caller waiting for a slot gives up when its context ends.
type limitedGenerator struct {
	inner adapter.GenerationService
	sem   chan struct{}
}

func NewLimitedGenerator(inner adapter.GenerationService, maxConcurrent int) adapter.GenerationService {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedGenerator{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedGenerator) acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *limitedGenerator) release() { <-l.sem }

func (l *limitedGenerator) GenerateArtifact(ctx context.Context, prompt string, opts adapter.ArtifactOptions) (*model.Artifact, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	defer l.release()
	return l.inner.GenerateArtifact(ctx, prompt, opts)
}

func (l *limitedGenerator) GeneratePaletteSet(ctx context.Context, prompt string, opts adapter.PaletteOptions) ([]model.Palette, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	defer l.release()
	return l.inner.GeneratePaletteSet(ctx, prompt, opts)
}

func (l *limitedGenerator) RefineArtifact(ctx context.Context, base *model.Artifact, instruction string, opts adapter.ArtifactOptions) (*model.Artifact, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	defer l.release()
	return l.inner.RefineArtifact(ctx, base, instruction, opts)
}
