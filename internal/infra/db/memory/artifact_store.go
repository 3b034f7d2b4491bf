package memory

import (
	"context"
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"concept-forge/internal/domain"
	"concept-forge/internal/domain/model"
	"concept-forge/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.ArtifactPersistence = (*ArtifactStore)(nil)

type ArtifactStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	baseURL string
}

func NewArtifactStore(publicBaseURL string) *ArtifactStore {
	return &ArtifactStore{objects: make(map[string][]byte), baseURL: strings.TrimRight(publicBaseURL, "/")}
}

func (s *ArtifactStore) Store(ctx context.Context, data []byte, owner string, _ map[string]string) (model.ArtifactRef, error) {
	if err := ctx.Err(); err != nil {
		return model.ArtifactRef{}, err
	}
	if owner == "" || len(data) == 0 {
		return model.ArtifactRef{}, domain.ErrInvalidArgument
	}
	path := owner + "/" + ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	s.mu.Lock()
	s.objects[path] = append([]byte(nil), data...)
	s.mu.Unlock()
	return model.ArtifactRef{Path: path, URL: s.baseURL + "/" + path}, nil
}

func (s *ArtifactStore) Get(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (s *ArtifactStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
