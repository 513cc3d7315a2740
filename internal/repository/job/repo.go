package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kailas-cloud/supportgraph/internal/domain"
	domjob "github.com/kailas-cloud/supportgraph/internal/domain/job"
)

// querier is the subset of pgxpool.Pool the repository uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repo persists jobs in the jobs table.
type Repo struct {
	db querier
}

// New creates a job repository.
func New(db querier) *Repo {
	return &Repo{db: db}
}

// Create inserts a pending job and returns its id.
func (r *Repo) Create(ctx context.Context, entityIDs []string, opts domjob.Options) (uuid.UUID, error) {
	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal options: %w", err)
	}
	if entityIDs == nil {
		entityIDs = []string{}
	}

	id := uuid.New()
	query := `
		INSERT INTO jobs (id, entity_ids, options, status)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.Exec(ctx, query, id, entityIDs, optsJSON, string(domjob.StatusPending)); err != nil {
		return uuid.Nil, fmt.Errorf("insert job: %w", err)
	}
	return id, nil
}

// UpdateStatus sets the status and merges patch into metadata.
// A string "error" entry in patch is also stored in the error column.
func (r *Repo) UpdateStatus(ctx context.Context, id uuid.UUID, status domjob.Status, patch map[string]any) error {
	if patch == nil {
		patch = map[string]any{}
	}
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal metadata patch: %w", err)
	}
	var jobErr *string
	if msg, ok := patch["error"].(string); ok && msg != "" {
		jobErr = &msg
	}

	query := `
		UPDATE jobs
		SET status = $2,
		    metadata = metadata || $3::jsonb,
		    error = COALESCE($4, error),
		    updated_at = now()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, string(status), patchJSON, jobErr)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

type metadata struct {
	Turns   []domjob.TurnSummary `json:"turns"`
	Summary *domjob.Summary      `json:"summary"`
}

// Get returns a job by id.
func (r *Repo) Get(ctx context.Context, id uuid.UUID) (*domjob.Job, error) {
	query := `
		SELECT id, entity_ids, options, status, metadata, error, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`
	var (
		j        domjob.Job
		status   string
		optsJSON []byte
		metaJSON []byte
		jobErr   *string
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&j.ID,
		&j.EntityIDs,
		&optsJSON,
		&status,
		&metaJSON,
		&jobErr,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	j.Status = domjob.Status(status)
	if jobErr != nil {
		j.Error = *jobErr
	}
	if len(optsJSON) > 0 {
		if err := json.Unmarshal(optsJSON, &j.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
	}
	if len(metaJSON) > 0 {
		var m metadata
		if err := json.Unmarshal(metaJSON, &m); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		j.Turns, j.Summary = m.Turns, m.Summary
	}
	return &j, nil
}
