package suggestion

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	domsug "github.com/kailas-cloud/supportgraph/internal/domain/suggestion"
)

// querier is the subset of pgxpool.Pool the repository uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repo writes suggestions, unique per (type, source, related).
type Repo struct {
	db querier
}

// New creates a suggestion repository.
func New(db querier) *Repo {
	return &Repo{db: db}
}

// Upsert inserts or refreshes a suggestion. A refreshed row becomes active
// again; its accepted flag is left as the reviewer set it.
func (r *Repo) Upsert(ctx context.Context, typ domsug.Type, sourceID, relatedID string, result map[string]any) error {
	if result == nil {
		result = map[string]any{}
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal suggestion result: %w", err)
	}

	query := `
		INSERT INTO suggestions (type, source_id, related_id, result)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (type, source_id, related_id)
		DO UPDATE SET result = EXCLUDED.result, active = true, updated_at = now()
	`
	if _, err := r.db.Exec(ctx, query, string(typ), sourceID, relatedID, data); err != nil {
		return fmt.Errorf("upsert %s suggestion for %s: %w", typ, sourceID, err)
	}
	return nil
}

// Deactivate hides active suggestions of typ for sourceID, except keepRelatedID.
func (r *Repo) Deactivate(ctx context.Context, typ domsug.Type, sourceID, keepRelatedID string) error {
	query := `
		UPDATE suggestions
		SET active = false, updated_at = now()
		WHERE type = $1 AND source_id = $2 AND related_id <> $3 AND active AND NOT accepted
	`
	if _, err := r.db.Exec(ctx, query, string(typ), sourceID, keepRelatedID); err != nil {
		return fmt.Errorf("deactivate %s suggestions for %s: %w", typ, sourceID, err)
	}
	return nil
}

// ListBySource returns the active suggestions derived from sourceID.
func (r *Repo) ListBySource(ctx context.Context, sourceID string) ([]domsug.Suggestion, error) {
	query := `
		SELECT type, source_id, related_id, result, active, accepted, updated_at
		FROM suggestions
		WHERE source_id = $1 AND active
		ORDER BY type, related_id
	`
	rows, err := r.db.Query(ctx, query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	defer rows.Close()

	var out []domsug.Suggestion
	for rows.Next() {
		var (
			s    domsug.Suggestion
			typ  string
			data []byte
		)
		if err := rows.Scan(&typ, &s.SourceID, &s.RelatedID, &data, &s.Active, &s.Accepted, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		s.Type = domsug.Type(typ)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &s.Result); err != nil {
				return nil, fmt.Errorf("unmarshal suggestion result: %w", err)
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
