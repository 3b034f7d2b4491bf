package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"concept-forge/internal/domain"
	"concept-forge/internal/domain/model"
	"concept-forge/internal/domain/ports/repository"
)

var _ repository.TaskRepository = (*PostgresTaskRepo)(nil)

type PostgresTaskRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresTaskRepo(pool *pgxpool.Pool) *PostgresTaskRepo {
	return &PostgresTaskRepo{pool: pool}
}

const taskColumns = `id, owner_id, type, status, metadata, result_id, error_message, created_at, updated_at, completed_at, claim_token`

func (r *PostgresTaskRepo) Create(ctx context.Context, tx repository.Tx, t *model.Task) error {
	md, err := json.Marshal(nonNilMap(t.Metadata))
	if err != nil {
		return fmt.Errorf("%w: metadata: %v", domain.ErrInvalidArgument, err)
	}
	const q = `
INSERT INTO tasks (` + taskColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11);`
	_, err = execSQL(ctx, r.pool, tx, q,
		t.ID, t.OwnerID, string(t.Type), string(t.Status), md,
		t.ResultID, t.ErrorMessage, t.CreatedAt, t.UpdatedAt, t.CompletedAt, t.ClaimToken)
	return err
}

// ConditionalUpdate is a single UPDATE ... RETURNING guarded by id, owner and
// the expected statuses; concurrent callers race on the row lock and only
// one of them sees a matching row.
func (r *PostgresTaskRepo) ConditionalUpdate(ctx context.Context, tx repository.Tx, id, owner string, expected []model.TaskStatus, upd model.TaskUpdate) (*model.Task, bool, error) {
	statuses := make([]string, len(expected))
	for i, s := range expected {
		statuses[i] = string(s)
	}
	const q = `
UPDATE tasks
   SET status=$4, result_id=$5, error_message=$6, completed_at=$7, updated_at=$8,
       claim_token=COALESCE(NULLIF($9::text, ''), claim_token)
 WHERE id=$1 AND ($2 = '' OR owner_id=$2) AND status = ANY($3::text[])
RETURNING ` + taskColumns + `;`
	row, err := pickRow(ctx, r.pool, tx, q,
		id, owner, statuses, string(upd.Status), upd.ResultID, upd.ErrorMessage, upd.CompletedAt, time.Now().UTC(), upd.ClaimToken)
	if err != nil {
		return nil, false, err
	}
	t, err := scanTask(row)
	if err != nil {
		if err == domain.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	return t, true, nil
}

func (r *PostgresTaskRepo) Get(ctx context.Context, tx repository.Tx, id, owner string) (*model.Task, error) {
	const q = `SELECT ` + taskColumns + ` FROM tasks WHERE id=$1 AND ($2 = '' OR owner_id=$2);`
	row, err := pickRow(ctx, r.pool, tx, q, id, owner)
	if err != nil {
		return nil, err
	}
	return scanTask(row)
}

func (r *PostgresTaskRepo) List(ctx context.Context, tx repository.Tx, f model.TaskFilter) ([]*model.Task, error) {
	var status *string
	if f.Status != nil {
		s := string(*f.Status)
		status = &s
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT ` + taskColumns + `
  FROM tasks
 WHERE ($1 = '' OR owner_id=$1) AND ($2::text IS NULL OR status=$2)
   AND ($4::timestamptz IS NULL OR updated_at < $4)
 ORDER BY created_at DESC
 LIMIT $3;`
	rows, err := queryRows(ctx, r.pool, tx, q, f.OwnerID, status, limit, f.UpdatedBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (r *PostgresTaskRepo) Delete(ctx context.Context, tx repository.Tx, id, owner string) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM tasks WHERE id=$1 AND ($2 = '' OR owner_id=$2);`, id, owner)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanTask(row pgx.Row) (*model.Task, error) {
	var (
		t           model.Task
		typ, status string
		md          []byte
	)
	err := row.Scan(&t.ID, &t.OwnerID, &typ, &status, &md,
		&t.ResultID, &t.ErrorMessage, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt, &t.ClaimToken)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, classify(err)
	}
	t.Type = model.TaskType(typ)
	t.Status = model.TaskStatus(status)
	if len(md) > 0 {
		if err := json.Unmarshal(md, &t.Metadata); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &t, nil
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
