package adapter

import (
	"context"

	"concept-forge/internal/domain/model"
)

// ArtifactPersistence stores generated media and returns where it lives.
type ArtifactPersistence interface {
	Store(ctx context.Context, data []byte, owner string, metadata map[string]string) (model.ArtifactRef, error)
	Get(ctx context.Context, path string) ([]byte, error)
}
