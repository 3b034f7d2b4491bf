package ai_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"concept-forge/internal/domain"
	"concept-forge/internal/domain/model"
	"concept-forge/internal/domain/ports/adapter"
	ai "concept-forge/internal/infra/adapters/ai"
)

type stubGen struct {
	name     string
	artifact int
	palette  int
	refine   int
	block    chan struct{}
	mu       sync.Mutex
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *stubGen) enter() {
	n := s.inFlight.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if s.block != nil {
		<-s.block
	}
	s.inFlight.Add(-1)
}

func (s *stubGen) GenerateArtifact(ctx context.Context, prompt string, opts adapter.ArtifactOptions) (*model.Artifact, error) {
	s.mu.Lock()
	s.artifact++
	s.mu.Unlock()
	s.enter()
	return &model.Artifact{Data: []byte(s.name)}, nil
}
func (s *stubGen) GeneratePaletteSet(ctx context.Context, prompt string, opts adapter.PaletteOptions) ([]model.Palette, error) {
	s.palette++
	return []model.Palette{{Name: s.name}}, nil
}
func (s *stubGen) RefineArtifact(ctx context.Context, base *model.Artifact, instruction string, opts adapter.ArtifactOptions) (*model.Artifact, error) {
	s.refine++
	return &model.Artifact{Data: []byte(s.name)}, nil
}

func TestRouting_ByConcern_And_Fallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	open := &stubGen{name: "openai"}
	gem := &stubGen{name: "gemini"}

	m := ai.NewRoutedGenerator("openai", "gemini", map[string]adapter.GenerationService{"openai": open, "gemini": gem})
	_, _ = m.GenerateArtifact(ctx, "p", adapter.ArtifactOptions{})
	_, _ = m.RefineArtifact(ctx, &model.Artifact{Data: []byte("x")}, "i", adapter.ArtifactOptions{})
	_, _ = m.GeneratePaletteSet(ctx, "p", adapter.PaletteOptions{})
	if open.artifact != 1 || open.refine != 1 || open.palette != 0 {
		t.Fatalf("image work should go to openai, got %+v", open)
	}
	if gem.palette != 1 || gem.artifact != 0 {
		t.Fatalf("palette work should go to gemini, got %+v", gem)
	}

	// palette provider missing -> first available
	only := ai.NewRoutedGenerator("openai", "gemini", map[string]adapter.GenerationService{"openai": open})
	if _, err := only.GeneratePaletteSet(ctx, "p", adapter.PaletteOptions{}); err != nil || open.palette != 1 {
		t.Fatalf("missing provider should fall back, err=%v palette=%d", err, open.palette)
	}

	none := ai.NewRoutedGenerator("openai", "gemini", nil)
	if _, err := none.GenerateArtifact(ctx, "p", adapter.ArtifactOptions{}); !errors.Is(err, domain.ErrOperationFailed) {
		t.Fatalf("expected ErrOperationFailed without providers, got %v", err)
	}
}

func TestLimitedGenerator_CapsConcurrency(t *testing.T) {
	inner := &stubGen{name: "x", block: make(chan struct{})}
	g := ai.NewLimitedGenerator(inner, 2)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = g.GenerateArtifact(context.Background(), "p", adapter.ArtifactOptions{})
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(inner.block)
	wg.Wait()
	if p := inner.peak.Load(); p > 2 {
		t.Fatalf("expected at most 2 concurrent calls, saw %d", p)
	}
}

func TestLimitedGenerator_WaitRespectsContext(t *testing.T) {
	inner := &stubGen{name: "x", block: make(chan struct{})}
	defer close(inner.block)
	g := ai.NewLimitedGenerator(inner, 1)

	go func() { _, _ = g.GenerateArtifact(context.Background(), "p", adapter.ArtifactOptions{}) }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := g.GenerateArtifact(ctx, "p", adapter.ArtifactOptions{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline while waiting for a slot, got %v", err)
	}
}

func TestNoopGenerator(t *testing.T) {
	ctx := context.Background()
	g := ai.NewNoopGenerator()
	a, err := g.GenerateArtifact(ctx, "a kite", adapter.ArtifactOptions{})
	if err != nil || a.ContentType != "image/png" || len(a.Data) == 0 {
		t.Fatalf("unexpected artifact %+v, %v", a, err)
	}
	b, _ := g.GenerateArtifact(ctx, "a kite", adapter.ArtifactOptions{})
	if string(a.Data) != string(b.Data) {
		t.Error("noop output should be deterministic")
	}
	ps, err := g.GeneratePaletteSet(ctx, "a kite", adapter.PaletteOptions{Count: 2, Colors: 3})
	if err != nil || len(ps) != 2 || len(ps[0].Colors) != 3 {
		t.Fatalf("unexpected palettes %+v, %v", ps, err)
	}
}
