package entity

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kailas-cloud/supportgraph/internal/domain"
	domentity "github.com/kailas-cloud/supportgraph/internal/domain/entity"
)

// querier is the subset of pgxpool.Pool the repository uses.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repo reads support conversations and their messages.
type Repo struct {
	db querier
}

// New creates an entity repository.
func New(db querier) *Repo {
	return &Repo{db: db}
}

// FetchMany loads entities with their messages. Unknown ids are absent from the result.
func (r *Repo) FetchMany(ctx context.Context, ids []string) (map[string]*domentity.Entity, error) {
	out := make(map[string]*domentity.Entity, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := `
		SELECT id, title, status, labels, sequence, created_at, updated_at
		FROM entities
		WHERE id = ANY($1)
	`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	for rows.Next() {
		var e domentity.Entity
		if err := rows.Scan(&e.ID, &e.Title, &e.Status, &e.Labels, &e.Sequence, &e.CreatedAt, &e.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		out[e.ID] = &e
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	if err := r.attachMessages(ctx, ids, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) attachMessages(ctx context.Context, ids []string, out map[string]*domentity.Entity) error {
	query := `
		SELECT id, entity_id, author, body, created_at
		FROM entity_messages
		WHERE entity_id = ANY($1)
		ORDER BY created_at, id
	`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m        domentity.Message
			entityID string
		)
		if err := rows.Scan(&m.ID, &entityID, &m.Author, &m.Body, &m.CreatedAt); err != nil {
			return fmt.Errorf("scan message: %w", err)
		}
		if e, ok := out[entityID]; ok {
			e.Messages = append(e.Messages, m)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate messages: %w", err)
	}
	return nil
}

// Get loads one entity or returns domain.ErrNotFound.
func (r *Repo) Get(ctx context.Context, id string) (*domentity.Entity, error) {
	found, err := r.FetchMany(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	e, ok := found[id]
	if !ok {
		return nil, fmt.Errorf("entity %s: %w", id, domain.ErrNotFound)
	}
	return e, nil
}
