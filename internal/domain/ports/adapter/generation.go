package adapter

import (
	"context"

	"concept-forge/internal/domain/model"
)

// ArtifactOptions tunes a single image generation call.
type ArtifactOptions struct {
	Model string
	Size  string // e.g. "1024x1024"
	Style string
}

// PaletteOptions tunes palette generation.
type PaletteOptions struct {
	Model  string
	Count  int
	Colors int // colors per palette
}

// GenerationService is the port for the vendor generation APIs.
type GenerationService interface {
	GenerateArtifact(ctx context.Context, prompt string, opts ArtifactOptions) (*model.Artifact, error)
	GeneratePaletteSet(ctx context.Context, prompt string, opts PaletteOptions) ([]model.Palette, error)
	// RefineArtifact edits base according to instruction.
	RefineArtifact(ctx context.Context, base *model.Artifact, instruction string, opts ArtifactOptions) (*model.Artifact, error)
}
