package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"concept-forge/internal/domain"
	"concept-forge/internal/domain/model"
	"concept-forge/internal/domain/ports/adapter"
	"concept-forge/internal/infra/metrics"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.GenerationService = (*OpenAIGenerator)(nil)

const providerOpenAI = "openai"

// OpenAIGenerator implements adapter.GenerationService with the Images API
// for artifacts and Chat Completions for palettes.
type OpenAIGenerator struct {
	client       openai.Client
	imageModel   string
	paletteModel string
	size         string
	guard        promptGuard
}

type OpenAIOptions struct {
	APIKey          string
	BaseURL         string // optional, for OpenAI-compatible gateways
	ImageModel      string
	PaletteModel    string
	ImageSize       string
	RequestTimeout  time.Duration
	MaxPromptTokens int
	Tokens          *TokenCounter
}

func NewOpenAIGenerator(o OpenAIOptions) (*OpenAIGenerator, error) {
	if o.APIKey == "" {
		return nil, errors.New("openai api key empty")
	}
	opts := []option.RequestOption{option.WithAPIKey(o.APIKey), option.WithMaxRetries(1)}
	if o.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(o.BaseURL, "/")+"/"))
	}
	if o.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(o.RequestTimeout))
	}
	if o.ImageModel == "" {
		o.ImageModel = "gpt-image-1"
	}
	if o.PaletteModel == "" || strings.HasPrefix(strings.ToLower(o.PaletteModel), "gemini") {
		o.PaletteModel = "gpt-4o-mini"
	}
	if o.ImageSize == "" {
		o.ImageSize = "1024x1024"
	}
	return &OpenAIGenerator{
		client:       openai.NewClient(opts...),
		imageModel:   o.ImageModel,
		paletteModel: o.PaletteModel,
		size:         o.ImageSize,
		guard:        promptGuard{counter: o.Tokens, maxTokens: o.MaxPromptTokens},
	}, nil
}

func (g *OpenAIGenerator) GenerateArtifact(ctx context.Context, prompt string, opts adapter.ArtifactOptions) (*model.Artifact, error) {
	mdl := modelOrDefault(opts.Model, g.imageModel)
	prompt = withStyle(prompt, opts.Style)
	if err := g.guard.check(providerOpenAI, mdl, prompt); err != nil {
		return nil, err
	}

	params := openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModel(mdl),
		Size:   openai.ImageGenerateParamsSize(modelOrDefault(opts.Size, g.size)),
		N:      openai.Int(1),
	}
	if strings.HasPrefix(mdl, "dall-e") {
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormatB64JSON
	}

	start := time.Now()
	resp, err := g.client.Images.Generate(ctx, params)
	metrics.ObserveGeneration(providerOpenAI, "generate_artifact", time.Since(start).Milliseconds(), err == nil)
	if err != nil {
		return nil, classifyOpenAI(err)
	}
	return firstImage(resp)
}

func (g *OpenAIGenerator) RefineArtifact(ctx context.Context, base *model.Artifact, instruction string, opts adapter.ArtifactOptions) (*model.Artifact, error) {
	if base == nil || len(base.Data) == 0 {
		return nil, fmt.Errorf("%w: no base artifact", domain.ErrInvalidArgument)
	}
	mdl := modelOrDefault(opts.Model, g.imageModel)
	instruction = withStyle(instruction, opts.Style)
	if err := g.guard.check(providerOpenAI, mdl, instruction); err != nil {
		return nil, err
	}

	contentType := base.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(base.Data)
	}
	start := time.Now()
	resp, err := g.client.Images.Edit(ctx, openai.ImageEditParams{
		Image: openai.ImageEditParamsImageUnion{
			OfFile: openai.File(bytes.NewReader(base.Data), "base.png", contentType),
		},
		Prompt: instruction,
		Model:  openai.ImageModel(mdl),
		Size:   openai.ImageEditParamsSize(modelOrDefault(opts.Size, g.size)),
		N:      openai.Int(1),
	})
	metrics.ObserveGeneration(providerOpenAI, "refine_artifact", time.Since(start).Milliseconds(), err == nil)
	if err != nil {
		return nil, classifyOpenAI(err)
	}
	return firstImage(resp)
}

func (g *OpenAIGenerator) GeneratePaletteSet(ctx context.Context, prompt string, opts adapter.PaletteOptions) ([]model.Palette, error) {
	mdl := g.paletteModel
	if opts.Model != "" && !strings.HasPrefix(strings.ToLower(opts.Model), "gemini") {
		mdl = opts.Model
	}
	if err := g.guard.check(providerOpenAI, mdl, prompt); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(mdl),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(paletteInstruction(opts.Count, opts.Colors)),
			openai.UserMessage(prompt),
		},
	})
	metrics.ObserveGeneration(providerOpenAI, "generate_palette_set", time.Since(start).Milliseconds(), err == nil)
	if err != nil {
		return nil, classifyOpenAI(err)
	}
	for _, c := range resp.Choices {
		if c.Message.Content != "" {
			return parsePalettes(c.Message.Content, opts.Count)
		}
	}
	return nil, fmt.Errorf("%w: no choice content", domain.ErrOperationFailed)
}

func firstImage(resp *openai.ImagesResponse) (*model.Artifact, error) {
	if resp == nil || len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("%w: openai returned no image", domain.ErrOperationFailed)
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", domain.ErrOperationFailed, err)
	}
	return &model.Artifact{
		Data:          data,
		ContentType:   http.DetectContentType(data),
		RevisedPrompt: resp.Data[0].RevisedPrompt,
	}, nil
}

// classifyOpenAI maps API status codes onto domain errors.
func classifyOpenAI(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500:
			return fmt.Errorf("%w: openai http %d: %v", domain.ErrTransientIO, apiErr.StatusCode, err)
		case apiErr.StatusCode == http.StatusBadRequest:
			return fmt.Errorf("%w: openai rejected the request: %v", domain.ErrInvalidArgument, err)
		}
	}
	return fmt.Errorf("openai: %w", err)
}

func withStyle(prompt, style string) string {
	if style = strings.TrimSpace(style); style != "" {
		return prompt + "\nStyle: " + style
	}
	return prompt
}

func modelOrDefault(model, def string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return def
}
