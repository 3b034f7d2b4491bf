package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"concept-forge/internal/domain"
	"concept-forge/internal/domain/model"
	"concept-forge/internal/domain/ports/repository"
)

// Compile-time check
var _ repository.ConceptRepository = (*ConceptStore)(nil)

type ConceptStore struct {
	mu         sync.RWMutex
	concepts   map[string]*model.Concept
	variations map[string]*model.ColorVariation
}

func NewConceptStore() *ConceptStore {
	return &ConceptStore{
		concepts:   make(map[string]*model.Concept),
		variations: make(map[string]*model.ColorVariation),
	}
}

func (s *ConceptStore) Save(ctx context.Context, _ repository.Tx, c *model.Concept) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	root := *c
	if root.ID == "" {
		root.ID = uuid.NewString()
	}
	if root.CreatedAt.IsZero() {
		root.CreatedAt = time.Now().UTC()
	}
	root.Variations = nil
	root.Palettes = append([]model.Palette(nil), c.Palettes...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.concepts[root.ID]; ok {
		return "", domain.ErrAlreadyExists
	}
	s.concepts[root.ID] = &root
	return root.ID, nil
}

func (s *ConceptStore) SaveVariation(ctx context.Context, _ repository.Tx, v *model.ColorVariation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.concepts[v.ConceptID]; !ok {
		// mirrors the foreign key in postgres
		return domain.ErrNotFound
	}
	cp := *v
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	s.variations[cp.ID] = &cp
	return nil
}

// FindByID returns the concept with its variations ordered by position.
func (s *ConceptStore) FindByID(ctx context.Context, _ repository.Tx, id, owner string) (*model.Concept, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.concepts[id]
	if !ok || (owner != "" && c.OwnerID != owner) {
		return nil, domain.ErrNotFound
	}
	out := *c
	out.Palettes = append([]model.Palette(nil), c.Palettes...)
	for _, v := range s.variations {
		if v.ConceptID == id {
			out.Variations = append(out.Variations, *v)
		}
	}
	sort.Slice(out.Variations, func(i, j int) bool { return out.Variations[i].Position < out.Variations[j].Position })
	return &out, nil
}

func (s *ConceptStore) Delete(ctx context.Context, _ repository.Tx, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.concepts[id]; !ok {
		return false, nil
	}
	delete(s.concepts, id)
	for vid, v := range s.variations {
		if v.ConceptID == id {
			delete(s.variations, vid)
		}
	}
	return true, nil
}

func (s *ConceptStore) DeleteVariation(ctx context.Context, _ repository.Tx, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.variations[id]; !ok {
		return false, nil
	}
	delete(s.variations, id)
	return true, nil
}

// Count reports stored roots and variations.
func (s *ConceptStore) Count() (concepts, variations int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.concepts), len(s.variations)
}
