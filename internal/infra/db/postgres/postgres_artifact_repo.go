package postgres

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"concept-forge/internal/domain"
	"concept-forge/internal/domain/model"
	"concept-forge/internal/domain/ports/adapter"
)

var _ adapter.ArtifactPersistence = (*PostgresArtifactRepo)(nil)

// PostgresArtifactRepo keeps generated media as bytea rows keyed by
// "<owner>/<ulid>". URLs are built from the configured public base.
type PostgresArtifactRepo struct {
	pool    *pgxpool.Pool
	baseURL string
}

func NewPostgresArtifactRepo(pool *pgxpool.Pool, publicBaseURL string) *PostgresArtifactRepo {
	return &PostgresArtifactRepo{pool: pool, baseURL: strings.TrimRight(publicBaseURL, "/")}
}

func (r *PostgresArtifactRepo) Store(ctx context.Context, data []byte, owner string, metadata map[string]string) (model.ArtifactRef, error) {
	if owner == "" || len(data) == 0 {
		return model.ArtifactRef{}, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	path := owner + "/" + ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
	contentType := metadata["content_type"]
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	md, _ := json.Marshal(nonNilMap(metadata))

	const q = `
INSERT INTO artifacts (path, owner_id, content_type, data, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6);`
	if _, err := execSQL(ctx, r.pool, nil, q, path, owner, contentType, data, md, now); err != nil {
		return model.ArtifactRef{}, err
	}
	return model.ArtifactRef{Path: path, URL: r.baseURL + "/" + path}, nil
}

func (r *PostgresArtifactRepo) Get(ctx context.Context, path string) ([]byte, error) {
	row, err := pickRow(ctx, r.pool, nil, `SELECT data FROM artifacts WHERE path=$1;`, path)
	if err != nil {
		return nil, err
	}
	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, classify(err)
	}
	return data, nil
}
