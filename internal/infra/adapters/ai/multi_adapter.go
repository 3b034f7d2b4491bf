// File: internal/infra/adapters/ai/multi_adapter.go
package ai

import (
	"context"
	"fmt"
	"strings"

	"concept-forge/internal/domain"
	"concept-forge/internal/domain/model"
	"concept-forge/internal/domain/ports/adapter"
)

var _ adapter.GenerationService = (*RoutedGenerator)(nil)

// RoutedGenerator sends image work and palette work to the providers
// chosen in config. A missing provider falls back to any configured one.
type RoutedGenerator struct {
	imageProvider   string
	paletteProvider string
	byProvider      map[string]adapter.GenerationService
}

func NewRoutedGenerator(imageProvider, paletteProvider string, byProvider map[string]adapter.GenerationService) *RoutedGenerator {
	return &RoutedGenerator{
		imageProvider:   strings.ToLower(imageProvider),
		paletteProvider: strings.ToLower(paletteProvider),
		byProvider:      byProvider,
	}
}

func (m *RoutedGenerator) pick(provider string) (adapter.GenerationService, error) {
	if a := m.byProvider[provider]; a != nil {
		return a, nil
	}
	// last resort: first available, in a stable order
	for _, name := range []string{providerOpenAI, providerGemini} {
		if a := m.byProvider[name]; a != nil {
			return a, nil
		}
	}
	for _, a := range m.byProvider {
		if a != nil {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: no generation provider configured", domain.ErrOperationFailed)
}

func (m *RoutedGenerator) GenerateArtifact(ctx context.Context, prompt string, opts adapter.ArtifactOptions) (*model.Artifact, error) {
	a, err := m.pick(m.imageProvider)
	if err != nil {
		return nil, err
	}
	return a.GenerateArtifact(ctx, prompt, opts)
}

func (m *RoutedGenerator) RefineArtifact(ctx context.Context, base *model.Artifact, instruction string, opts adapter.ArtifactOptions) (*model.Artifact, error) {
	a, err := m.pick(m.imageProvider)
	if err != nil {
		return nil, err
	}
	return a.RefineArtifact(ctx, base, instruction, opts)
}

func (m *RoutedGenerator) GeneratePaletteSet(ctx context.Context, prompt string, opts adapter.PaletteOptions) ([]model.Palette, error) {
	a, err := m.pick(m.paletteProvider)
	if err != nil {
		return nil, err
	}
	return a.GeneratePaletteSet(ctx, prompt, opts)
}
