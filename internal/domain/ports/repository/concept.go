package repository

import (
	"context"

	"concept-forge/internal/domain/model"
)

// ConceptRepository persists the concept aggregate. Root and children are
// written by separate calls; consistency across them is the saga's job.
type ConceptRepository interface {
	// Save inserts the root row (without variations) and returns its id.
	Save(ctx context.Context, tx Tx, c *model.Concept) (string, error)
	SaveVariation(ctx context.Context, tx Tx, v *model.ColorVariation) error
	FindByID(ctx context.Context, tx Tx, id, owner string) (*model.Concept, error)
	// Delete removes the root and cascades to its variations. It reports
	// whether a row was removed.
	Delete(ctx context.Context, tx Tx, id string) (bool, error)
	DeleteVariation(ctx context.Context, tx Tx, id string) (bool, error)
}
