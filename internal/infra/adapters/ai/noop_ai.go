package ai

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"time"

	"concept-forge/internal/domain/model"
	"concept-forge/internal/domain/ports/adapter"
)

var _ adapter.GenerationService = (*NoopGenerator)(nil)

// NoopGenerator implements adapter.GenerationService for local/dev runs.
// Output is deterministic for a given prompt: small solid-color PNGs and
// palettes derived from a hash of the text.
type NoopGenerator struct {
	Delay time.Duration

	// Injected failures, used by tests and by dev runs that want to see
	// the failure path.
	ArtifactErr error
	PaletteErr  error
	RefineErr   error
}

func NewNoopGenerator() *NoopGenerator {
	return &NoopGenerator{}
}

func (g *NoopGenerator) wait(ctx context.Context) error {
	if g.Delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(g.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *NoopGenerator) GenerateArtifact(ctx context.Context, prompt string, _ adapter.ArtifactOptions) (*model.Artifact, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	if g.ArtifactErr != nil {
		return nil, g.ArtifactErr
	}
	return solidPNG(colorFor(prompt, 0))
}

func (g *NoopGenerator) RefineArtifact(ctx context.Context, base *model.Artifact, instruction string, _ adapter.ArtifactOptions) (*model.Artifact, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	if g.RefineErr != nil {
		return nil, g.RefineErr
	}
	seed := instruction
	if base != nil {
		seed = fmt.Sprintf("%x|%s", fnv32(string(base.Data)), instruction)
	}
	return solidPNG(colorFor(seed, 0))
}

func (g *NoopGenerator) GeneratePaletteSet(ctx context.Context, prompt string, opts adapter.PaletteOptions) ([]model.Palette, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	if g.PaletteErr != nil {
		return nil, g.PaletteErr
	}
	count, colors := opts.Count, opts.Colors
	if count <= 0 {
		count = 3
	}
	if colors <= 0 {
		colors = 5
	}
	out := make([]model.Palette, count)
	for i := range out {
		p := model.Palette{Name: fmt.Sprintf("Palette %d", i+1), Colors: make([]string, colors)}
		for j := range p.Colors {
			c := colorFor(prompt, i*colors+j+1)
			p.Colors[j] = fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
		}
		out[i] = p
	}
	return out, nil
}

func fnv32(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

func colorFor(seed string, n int) color.RGBA {
	v := fnv32(fmt.Sprintf("%s#%d", seed, n))
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xFF}
}

func solidPNG(c color.RGBA) (*model.Artifact, error) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return &model.Artifact{Data: buf.Bytes(), ContentType: "image/png"}, nil
}
