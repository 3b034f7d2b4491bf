// File: internal/infra/adapters/ai/gemini_adapter.go
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"concept-forge/internal/domain"
	"concept-forge/internal/domain/model"
	"concept-forge/internal/domain/ports/adapter"
	"concept-forge/internal/infra/metrics"
)

var _ adapter.GenerationService = (*GeminiGenerator)(nil)

const providerGemini = "gemini"

// GeminiGenerator implements adapter.GenerationService on the Gemini API:
// JSON mode text generation for palettes, Imagen for artifacts and an
// image-output Gemini model for edits.
type GeminiGenerator struct {
	client       *genai.Client
	paletteModel string
	imageModel   string
	editModel    string
	guard        promptGuard
}

type GeminiOptions struct {
	APIKey          string
	BaseURL         string
	PaletteModel    string
	ImageModel      string
	EditModel       string
	RequestTimeout  time.Duration
	MaxPromptTokens int
	Tokens          *TokenCounter
}

// NewGeminiGenerator creates a Gemini adapter using the official SDK.
func NewGeminiGenerator(ctx context.Context, o GeminiOptions) (*GeminiGenerator, error) {
	if o.APIKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	httpOpts := genai.HTTPOptions{BaseURL: o.BaseURL}
	if o.RequestTimeout > 0 {
		timeout := o.RequestTimeout
		httpOpts.Timeout = &timeout
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      o.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, err
	}
	if o.PaletteModel == "" || !strings.HasPrefix(strings.ToLower(o.PaletteModel), "gemini") {
		o.PaletteModel = "gemini-2.0-flash"
	}
	if o.ImageModel == "" || strings.HasPrefix(o.ImageModel, "gpt") || strings.HasPrefix(o.ImageModel, "dall-e") {
		o.ImageModel = "imagen-3.0-generate-002"
	}
	if o.EditModel == "" {
		o.EditModel = "gemini-2.0-flash-preview-image-generation"
	}
	return &GeminiGenerator{
		client:       c,
		paletteModel: o.PaletteModel,
		imageModel:   o.ImageModel,
		editModel:    o.EditModel,
		guard:        promptGuard{counter: o.Tokens, maxTokens: o.MaxPromptTokens},
	}, nil
}

func (g *GeminiGenerator) GeneratePaletteSet(ctx context.Context, prompt string, opts adapter.PaletteOptions) ([]model.Palette, error) {
	mdl := g.paletteModel
	if strings.HasPrefix(strings.ToLower(opts.Model), "gemini") {
		mdl = opts.Model
	}
	if err := g.guard.check(providerGemini, mdl, prompt); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, mdl, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: paletteInstruction(opts.Count, opts.Colors)}},
		},
		ResponseMIMEType: "application/json",
	})
	metrics.ObserveGeneration(providerGemini, "generate_palette_set", time.Since(start).Milliseconds(), err == nil)
	if err != nil {
		return nil, classifyGemini(err)
	}
	return parsePalettes(resp.Text(), opts.Count)
}

func (g *GeminiGenerator) GenerateArtifact(ctx context.Context, prompt string, opts adapter.ArtifactOptions) (*model.Artifact, error) {
	mdl := g.imageModel
	if strings.HasPrefix(opts.Model, "imagen") {
		mdl = opts.Model
	}
	prompt = withStyle(prompt, opts.Style)
	if err := g.guard.check(providerGemini, mdl, prompt); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateImages(ctx, mdl, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		OutputMIMEType: "image/png",
	})
	metrics.ObserveGeneration(providerGemini, "generate_artifact", time.Since(start).Milliseconds(), err == nil)
	if err != nil {
		return nil, classifyGemini(err)
	}
	if resp == nil || len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return nil, fmt.Errorf("%w: gemini returned no image", domain.ErrOperationFailed)
	}
	img := resp.GeneratedImages[0]
	return &model.Artifact{
		Data:          img.Image.ImageBytes,
		ContentType:   contentTypeOr(img.Image.MIMEType, img.Image.ImageBytes),
		RevisedPrompt: img.EnhancedPrompt,
	}, nil
}

func (g *GeminiGenerator) RefineArtifact(ctx context.Context, base *model.Artifact, instruction string, opts adapter.ArtifactOptions) (*model.Artifact, error) {
	if base == nil || len(base.Data) == 0 {
		return nil, fmt.Errorf("%w: no base artifact", domain.ErrInvalidArgument)
	}
	instruction = withStyle(instruction, opts.Style)
	if err := g.guard.check(providerGemini, g.editModel, instruction); err != nil {
		return nil, err
	}

	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{Data: base.Data, MIMEType: contentTypeOr(base.ContentType, base.Data)}},
			{Text: instruction},
		},
	}}
	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.editModel, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	})
	metrics.ObserveGeneration(providerGemini, "refine_artifact", time.Since(start).Milliseconds(), err == nil)
	if err != nil {
		return nil, classifyGemini(err)
	}
	if resp != nil {
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if part.InlineData != nil && len(part.InlineData.Data) > 0 {
					return &model.Artifact{
						Data:        part.InlineData.Data,
						ContentType: contentTypeOr(part.InlineData.MIMEType, part.InlineData.Data),
					}, nil
				}
			}
		}
	}
	return nil, fmt.Errorf("%w: gemini returned no edited image", domain.ErrOperationFailed)
}

func classifyGemini(err error) error {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500:
			return fmt.Errorf("%w: gemini http %d: %v", domain.ErrTransientIO, apiErr.Code, err)
		case apiErr.Code == http.StatusBadRequest:
			return fmt.Errorf("%w: gemini rejected the request: %v", domain.ErrInvalidArgument, err)
		}
	}
	return fmt.Errorf("gemini: %w", err)
}

func contentTypeOr(ct string, data []byte) string {
	if ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}
