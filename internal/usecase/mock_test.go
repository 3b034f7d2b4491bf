package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"concept-forge/internal/domain/model"
	"concept-forge/internal/domain/ports/adapter"
	"concept-forge/internal/domain/ports/repository"
	"concept-forge/internal/infra/db/memory"
)

// ---- Task repository wrapper with injectable failures ----

type MockTaskRepo struct {
	*memory.TaskStore

	CreateFunc            func(ctx context.Context, tx repository.Tx, t *model.Task) error
	ConditionalUpdateFunc func(ctx context.Context, tx repository.Tx, id, owner string, expected []model.TaskStatus, upd model.TaskUpdate) (*model.Task, bool, error)
	GetFunc               func(ctx context.Context, tx repository.Tx, id, owner string) (*model.Task, error)

	writes atomic.Int32 // successful conditional writes
}

var _ repository.TaskRepository = (*MockTaskRepo)(nil)

func NewMockTaskRepo(store *memory.TaskStore) *MockTaskRepo {
	if store == nil {
		store = memory.NewTaskStore()
	}
	return &MockTaskRepo{TaskStore: store}
}

func (m *MockTaskRepo) Create(ctx context.Context, tx repository.Tx, t *model.Task) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, t)
	}
	return m.TaskStore.Create(ctx, tx, t)
}

func (m *MockTaskRepo) ConditionalUpdate(ctx context.Context, tx repository.Tx, id, owner string, expected []model.TaskStatus, upd model.TaskUpdate) (*model.Task, bool, error) {
	if m.ConditionalUpdateFunc != nil {
		return m.ConditionalUpdateFunc(ctx, tx, id, owner, expected, upd)
	}
	t, ok, err := m.TaskStore.ConditionalUpdate(ctx, tx, id, owner, expected, upd)
	if ok {
		m.writes.Add(1)
	}
	return t, ok, err
}

func (m *MockTaskRepo) Get(ctx context.Context, tx repository.Tx, id, owner string) (*model.Task, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, tx, id, owner)
	}
	return m.TaskStore.Get(ctx, tx, id, owner)
}

func (m *MockTaskRepo) Writes() int { return int(m.writes.Load()) }

// ---- Concept repository wrapper with injectable failures ----

type MockConceptRepo struct {
	*memory.ConceptStore

	SaveFunc            func(ctx context.Context, tx repository.Tx, c *model.Concept) (string, error)
	SaveVariationFunc   func(ctx context.Context, tx repository.Tx, v *model.ColorVariation, call int) error
	DeleteFunc          func(ctx context.Context, tx repository.Tx, id string) (bool, error)
	DeleteVariationFunc func(ctx context.Context, tx repository.Tx, id string) (bool, error)

	mu             sync.Mutex
	variationCalls int
	deleted        []string
}

var _ repository.ConceptRepository = (*MockConceptRepo)(nil)

func NewMockConceptRepo() *MockConceptRepo {
	return &MockConceptRepo{ConceptStore: memory.NewConceptStore()}
}

func (m *MockConceptRepo) Save(ctx context.Context, tx repository.Tx, c *model.Concept) (string, error) {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, c)
	}
	return m.ConceptStore.Save(ctx, tx, c)
}

// SaveVariation passes the 1-based call number to SaveVariationFunc.
func (m *MockConceptRepo) SaveVariation(ctx context.Context, tx repository.Tx, v *model.ColorVariation) error {
	m.mu.Lock()
	m.variationCalls++
	call := m.variationCalls
	m.mu.Unlock()
	if m.SaveVariationFunc != nil {
		if err := m.SaveVariationFunc(ctx, tx, v, call); err != nil {
			return err
		}
	}
	return m.ConceptStore.SaveVariation(ctx, tx, v)
}

func (m *MockConceptRepo) Delete(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	m.record("concept:" + id)
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, tx, id)
	}
	return m.ConceptStore.Delete(ctx, tx, id)
}

func (m *MockConceptRepo) DeleteVariation(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	m.record("variation:" + id)
	if m.DeleteVariationFunc != nil {
		return m.DeleteVariationFunc(ctx, tx, id)
	}
	return m.ConceptStore.DeleteVariation(ctx, tx, id)
}

func (m *MockConceptRepo) record(s string) {
	m.mu.Lock()
	m.deleted = append(m.deleted, s)
	m.mu.Unlock()
}

func (m *MockConceptRepo) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

// ---- Generation service ----

type MockGenerator struct {
	GenerateArtifactFunc   func(ctx context.Context, prompt string, opts adapter.ArtifactOptions) (*model.Artifact, error)
	GeneratePaletteSetFunc func(ctx context.Context, prompt string, opts adapter.PaletteOptions) ([]model.Palette, error)
	RefineArtifactFunc     func(ctx context.Context, base *model.Artifact, instruction string, opts adapter.ArtifactOptions) (*model.Artifact, error)

	refines atomic.Int32
}

var _ adapter.GenerationService = (*MockGenerator)(nil)

func (m *MockGenerator) GenerateArtifact(ctx context.Context, prompt string, opts adapter.ArtifactOptions) (*model.Artifact, error) {
	if m.GenerateArtifactFunc != nil {
		return m.GenerateArtifactFunc(ctx, prompt, opts)
	}
	return &model.Artifact{Data: []byte("base:" + prompt), ContentType: "image/png", RevisedPrompt: prompt}, nil
}

func (m *MockGenerator) GeneratePaletteSet(ctx context.Context, prompt string, opts adapter.PaletteOptions) ([]model.Palette, error) {
	if m.GeneratePaletteSetFunc != nil {
		return m.GeneratePaletteSetFunc(ctx, prompt, opts)
	}
	out := make([]model.Palette, opts.Count)
	for i := range out {
		out[i] = model.Palette{Name: fmt.Sprintf("palette-%d", i), Colors: []string{fmt.Sprintf("#%02X78C8", 40*i)}}
	}
	return out, nil
}

func (m *MockGenerator) RefineArtifact(ctx context.Context, base *model.Artifact, instruction string, opts adapter.ArtifactOptions) (*model.Artifact, error) {
	m.refines.Add(1)
	if m.RefineArtifactFunc != nil {
		return m.RefineArtifactFunc(ctx, base, instruction, opts)
	}
	data := append(append([]byte(nil), base.Data...), []byte("|"+instruction)...)
	return &model.Artifact{Data: data, ContentType: "image/png"}, nil
}

func (m *MockGenerator) Refines() int { return int(m.refines.Load()) }
