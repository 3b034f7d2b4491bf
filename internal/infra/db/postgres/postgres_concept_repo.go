package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"concept-forge/internal/domain"
	"concept-forge/internal/domain/model"
	"concept-forge/internal/domain/ports/repository"
)

var _ repository.ConceptRepository = (*PostgresConceptRepo)(nil)

// PostgresConceptRepo writes the root and each variation as independent
// statements. Callers that need all-or-nothing go through the saga.
type PostgresConceptRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresConceptRepo(pool *pgxpool.Pool) *PostgresConceptRepo {
	return &PostgresConceptRepo{pool: pool}
}

func (r *PostgresConceptRepo) Save(ctx context.Context, tx repository.Tx, c *model.Concept) (string, error) {
	id := c.ID
	if id == "" {
		id = uuid.NewString()
	}
	created := c.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	palettes, err := json.Marshal(c.Palettes)
	if err != nil {
		return "", fmt.Errorf("%w: palettes: %v", domain.ErrInvalidArgument, err)
	}
	const q = `
INSERT INTO concepts (id, owner_id, task_id, prompt, title, description, palettes, artifact_path, artifact_url, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);`
	if _, err := execSQL(ctx, r.pool, tx, q,
		id, c.OwnerID, c.TaskID, c.Prompt, c.Title, c.Description, palettes,
		c.Artifact.Path, c.Artifact.URL, created); err != nil {
		return "", err
	}
	return id, nil
}

func (r *PostgresConceptRepo) SaveVariation(ctx context.Context, tx repository.Tx, v *model.ColorVariation) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	palette, err := json.Marshal(v.Palette)
	if err != nil {
		return fmt.Errorf("%w: palette: %v", domain.ErrInvalidArgument, err)
	}
	const q = `
INSERT INTO concept_variations (id, concept_id, position, palette, artifact_path, artifact_url, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7);`
	_, err = execSQL(ctx, r.pool, tx, q,
		v.ID, v.ConceptID, v.Position, palette, v.Artifact.Path, v.Artifact.URL, v.CreatedAt)
	return err
}

func (r *PostgresConceptRepo) FindByID(ctx context.Context, tx repository.Tx, id, owner string) (*model.Concept, error) {
	const q = `
SELECT id, owner_id, task_id, prompt, title, description, palettes, artifact_path, artifact_url, created_at
  FROM concepts WHERE id=$1 AND ($2 = '' OR owner_id=$2);`
	row, err := pickRow(ctx, r.pool, tx, q, id, owner)
	if err != nil {
		return nil, err
	}
	var (
		c        model.Concept
		palettes []byte
	)
	if err := row.Scan(&c.ID, &c.OwnerID, &c.TaskID, &c.Prompt, &c.Title, &c.Description,
		&palettes, &c.Artifact.Path, &c.Artifact.URL, &c.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, classify(err)
	}
	if err := json.Unmarshal(palettes, &c.Palettes); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}

	const vq = `
SELECT id, concept_id, position, palette, artifact_path, artifact_url, created_at
  FROM concept_variations WHERE concept_id=$1 ORDER BY position;`
	rows, err := queryRows(ctx, r.pool, tx, vq, c.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			v  model.ColorVariation
			pb []byte
		)
		if err := rows.Scan(&v.ID, &v.ConceptID, &v.Position, &pb, &v.Artifact.Path, &v.Artifact.URL, &v.CreatedAt); err != nil {
			return nil, classify(err)
		}
		if err := json.Unmarshal(pb, &v.Palette); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		c.Variations = append(c.Variations, v)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return &c, nil
}

func (r *PostgresConceptRepo) Delete(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	// concept_variations cascades
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM concepts WHERE id=$1;`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresConceptRepo) DeleteVariation(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM concept_variations WHERE id=$1;`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
