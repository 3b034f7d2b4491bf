// File: internal/usecase/concept_pipeline.go
package usecase

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"concept-forge/internal/domain"
	"concept-forge/internal/domain/model"
	"concept-forge/internal/domain/ports/adapter"
	"concept-forge/internal/domain/ports/repository"
)

// Stage names of the concept pipelines.
const (
	StageLoadSourceConcept   = "load_source_concept"
	StageGenerateBase        = "generate_base_artifact"
	StageRefineBase          = "refine_base_artifact"
	StagePersistBaseArtifact = "persist_base_artifact"
	StageGeneratePalettes    = "generate_palette_set"
	StageCreateVariations    = "create_variations"
	StagePersistAggregate    = "persist_aggregate"
)

// Payload keys read by the concept stages.
const (
	ParamPrompt      = "prompt"
	ParamStyle       = "style"
	ParamConceptID   = "concept_id"
	ParamInstruction = "instruction"
)

type ConceptPipelineOptions struct {
	ImageModel           string
	ImageSize            string
	PaletteModel         string
	PaletteCount         int
	ColorsPerPalette     int
	VariationConcurrency int
}

// ConceptPipelines builds the generation and refinement pipelines. Each
// stage closes over only the collaborator it calls.
type ConceptPipelines struct {
	gen       adapter.GenerationService
	artifacts adapter.ArtifactPersistence
	concepts  repository.ConceptRepository
	saga      *ConceptSaga
	opts      ConceptPipelineOptions
}

func NewConceptPipelines(
	gen adapter.GenerationService,
	artifacts adapter.ArtifactPersistence,
	concepts repository.ConceptRepository,
	saga *ConceptSaga,
	opts ConceptPipelineOptions,
) *ConceptPipelines {
	if opts.PaletteCount <= 0 {
		opts.PaletteCount = 3
	}
	if opts.ColorsPerPalette <= 0 {
		opts.ColorsPerPalette = 5
	}
	if opts.VariationConcurrency <= 0 {
		opts.VariationConcurrency = 2
	}
	return &ConceptPipelines{gen: gen, artifacts: artifacts, concepts: concepts, saga: saga, opts: opts}
}

// Register adds both pipelines to reg.
func (c *ConceptPipelines) Register(reg *PipelineRegistry) {
	reg.Register(c.Generation())
	reg.Register(c.Refinement())
}

func (c *ConceptPipelines) Generation() Pipeline {
	return Pipeline{
		Type: model.TaskTypeGeneration,
		Steps: []Step{
			Sequential(Stage{Name: StageGenerateBase, Run: c.generateBase}),
			Concurrent(
				Stage{Name: StagePersistBaseArtifact, Run: c.persistBase(StageGenerateBase)},
				Stage{Name: StageGeneratePalettes, Run: c.generatePalettes},
			),
			Sequential(Stage{Name: StageCreateVariations, Run: c.createVariations(StageGenerateBase)}),
			Sequential(Stage{Name: StagePersistAggregate, Run: c.persistAggregate(StageGenerateBase)}),
		},
		ResultStage: StagePersistAggregate,
	}
}

func (c *ConceptPipelines) Refinement() Pipeline {
	return Pipeline{
		Type: model.TaskTypeRefinement,
		Steps: []Step{
			Sequential(Stage{Name: StageLoadSourceConcept, Run: c.loadSource}),
			Sequential(Stage{Name: StageRefineBase, Run: c.refineBase}),
			Concurrent(
				Stage{Name: StagePersistBaseArtifact, Run: c.persistBase(StageRefineBase)},
				Stage{Name: StageGeneratePalettes, Run: c.generatePalettes},
			),
			Sequential(Stage{Name: StageCreateVariations, Run: c.createVariations(StageRefineBase)}),
			Sequential(Stage{Name: StagePersistAggregate, Run: c.persistAggregate(StageRefineBase)}),
		},
		ResultStage: StagePersistAggregate,
	}
}

type sourceConcept struct {
	Concept  *model.Concept
	Artifact *model.Artifact
}

func (c *ConceptPipelines) artifactOptions(in StageInput) adapter.ArtifactOptions {
	return adapter.ArtifactOptions{Model: c.opts.ImageModel, Size: c.opts.ImageSize, Style: in.Param(ParamStyle)}
}

func (c *ConceptPipelines) generateBase(ctx context.Context, in StageInput) (any, error) {
	prompt := strings.TrimSpace(in.Param(ParamPrompt))
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", domain.ErrInvalidArgument)
	}
	return c.gen.GenerateArtifact(ctx, prompt, c.artifactOptions(in))
}

func (c *ConceptPipelines) loadSource(ctx context.Context, in StageInput) (any, error) {
	id := in.Param(ParamConceptID)
	if id == "" || strings.TrimSpace(in.Param(ParamInstruction)) == "" {
		return nil, fmt.Errorf("%w: concept_id and instruction are required", domain.ErrInvalidArgument)
	}
	src, err := c.concepts.FindByID(ctx, nil, id, in.Task.OwnerID)
	if err != nil {
		return nil, err
	}
	data, err := c.artifacts.Get(ctx, src.Artifact.Path)
	if err != nil {
		return nil, fmt.Errorf("load source artifact: %w", err)
	}
	return &sourceConcept{Concept: src, Artifact: &model.Artifact{Data: data, ContentType: "image/png"}}, nil
}

func (c *ConceptPipelines) refineBase(ctx context.Context, in StageInput) (any, error) {
	src, err := Output[*sourceConcept](in.Outputs, StageLoadSourceConcept)
	if err != nil {
		return nil, err
	}
	return c.gen.RefineArtifact(ctx, src.Artifact, in.Param(ParamInstruction), c.artifactOptions(in))
}

// persistBase stores the base artifact. A later failure does not remove it.
func (c *ConceptPipelines) persistBase(baseStage string) func(context.Context, StageInput) (any, error) {
	return func(ctx context.Context, in StageInput) (any, error) {
		art, err := Output[*model.Artifact](in.Outputs, baseStage)
		if err != nil {
			return nil, err
		}
		return c.artifacts.Store(ctx, art.Data, in.Task.OwnerID, map[string]string{
			"task_id":      in.Task.ID,
			"kind":         "base",
			"content_type": art.ContentType,
		})
	}
}

func (c *ConceptPipelines) generatePalettes(ctx context.Context, in StageInput) (any, error) {
	prompt := palettePrompt(in)
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", domain.ErrInvalidArgument)
	}
	palettes, err := c.gen.GeneratePaletteSet(ctx, prompt, adapter.PaletteOptions{
		Model:  c.opts.PaletteModel,
		Count:  c.opts.PaletteCount,
		Colors: c.opts.ColorsPerPalette,
	})
	if err != nil {
		return nil, err
	}
	if len(palettes) == 0 {
		return nil, fmt.Errorf("%w: no palettes generated", domain.ErrOperationFailed)
	}
	return palettes, nil
}

func palettePrompt(in StageInput) string {
	if p := strings.TrimSpace(in.Param(ParamPrompt)); p != "" {
		return p
	}
	if src, err := Output[*sourceConcept](in.Outputs, StageLoadSourceConcept); err == nil {
		return strings.TrimSpace(src.Concept.Prompt + " " + in.Param(ParamInstruction))
	}
	return ""
}

// createVariations renders and stores one variation per palette. The
// result keeps palette order.
func (c *ConceptPipelines) createVariations(baseStage string) func(context.Context, StageInput) (any, error) {
	return func(ctx context.Context, in StageInput) (any, error) {
		base, err := Output[*model.Artifact](in.Outputs, baseStage)
		if err != nil {
			return nil, err
		}
		palettes, err := Output[[]model.Palette](in.Outputs, StageGeneratePalettes)
		if err != nil {
			return nil, err
		}

		out := make([]model.ColorVariation, len(palettes))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.opts.VariationConcurrency)
		for i, p := range palettes {
			g.Go(func() error {
				art, err := c.gen.RefineArtifact(gctx, base, variationInstruction(p), c.artifactOptions(in))
				if err != nil {
					return fmt.Errorf("variation %d: %w", i, err)
				}
				ref, err := c.artifacts.Store(gctx, art.Data, in.Task.OwnerID, map[string]string{
					"task_id":      in.Task.ID,
					"kind":         "variation",
					"palette":      p.Name,
					"content_type": art.ContentType,
				})
				if err != nil {
					return fmt.Errorf("variation %d: %w", i, err)
				}
				out[i] = model.ColorVariation{Position: i, Palette: p, Artifact: ref}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return out, nil
	}
}

func variationInstruction(p model.Palette) string {
	return "Recolor the image using only this palette: " + strings.Join(p.Colors, ", ") +
		". Keep composition and shapes unchanged."
}

func (c *ConceptPipelines) persistAggregate(baseStage string) func(context.Context, StageInput) (any, error) {
	return func(ctx context.Context, in StageInput) (any, error) {
		base, err := Output[*model.Artifact](in.Outputs, baseStage)
		if err != nil {
			return nil, err
		}
		ref, err := Output[model.ArtifactRef](in.Outputs, StagePersistBaseArtifact)
		if err != nil {
			return nil, err
		}
		palettes, err := Output[[]model.Palette](in.Outputs, StageGeneratePalettes)
		if err != nil {
			return nil, err
		}
		variations, err := Output[[]model.ColorVariation](in.Outputs, StageCreateVariations)
		if err != nil {
			return nil, err
		}
		if len(variations) != len(palettes) {
			return nil, fmt.Errorf("%w: %d variations for %d palettes", domain.ErrOperationFailed, len(variations), len(palettes))
		}

		concept := &model.Concept{
			OwnerID:    in.Task.OwnerID,
			TaskID:     in.Task.ID,
			Palettes:   palettes,
			Artifact:   ref,
			Variations: variations,
		}
		if src, err := Output[*sourceConcept](in.Outputs, StageLoadSourceConcept); err == nil {
			instruction := in.Param(ParamInstruction)
			concept.Prompt = instruction
			concept.Title = title(src.Concept.Title + " (refined)")
			concept.Description = "Refined from " + src.Concept.ID + ": " + instruction
		} else {
			concept.Prompt = in.Param(ParamPrompt)
			concept.Title = title(concept.Prompt)
			concept.Description = base.RevisedPrompt
			if concept.Description == "" {
				concept.Description = concept.Prompt
			}
		}

		saved, err := c.saga.Persist(ctx, concept)
		if err != nil {
			return nil, err
		}
		return saved.ID, nil
	}
}

const maxTitleRunes = 80

func title(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= maxTitleRunes {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:maxTitleRunes-3])) + "..."
}
