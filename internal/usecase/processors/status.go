package processors

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/supportgraph/internal/domain"
	"github.com/kailas-cloud/supportgraph/internal/domain/entity"
	domsug "github.com/kailas-cloud/supportgraph/internal/domain/suggestion"
	"github.com/kailas-cloud/supportgraph/internal/usecase/idempotency"
	"github.com/kailas-cloud/supportgraph/internal/usecase/pipeline"
)

// StatusChoice is the status model answer.
type StatusChoice struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// StatusOutput is the status processor output.
type StatusOutput struct {
	Suggested string `json:"suggested"`
	Changed   bool   `json:"changed"`
}

func (d Deps) status() pipeline.Definition {
	allowed := d.Config.Statuses
	return pipeline.Definition{
		Name:      NameStatus,
		DependsOn: []string{NameSummarize},
		Hash: func(e *entity.Entity, jc *pipeline.JobContext) (string, error) {
			s, err := upstream[Summary](jc, NameSummarize, e.ID)
			if err != nil {
				return "", err
			}
			return idempotency.ContentHash(statusPromptVersion, d.Config.Model, s, allowed, e.Status)
		},
		Execute: func(ctx context.Context, e *entity.Entity, jc *pipeline.JobContext) (any, error) {
			s, err := upstream[Summary](jc, NameSummarize, e.ID)
			if err != nil {
				return nil, err
			}
			var c StatusChoice
			if err := d.generate(ctx, statusPrompt(s, e.Status, allowed), &c); err != nil {
				return nil, err
			}
			picked := canonical([]string{c.Status}, allowed)
			if len(picked) == 0 {
				return nil, fmt.Errorf("status %q not in allowed set: %w", c.Status, domain.ErrMalformedOutput)
			}

			out := StatusOutput{Suggested: picked[0], Changed: !strings.EqualFold(picked[0], e.Status)}
			if !out.Changed {
				return out, nil
			}
			err = d.Suggestions.Upsert(ctx, domsug.TypeStatus, e.ID, "", map[string]any{
				"status":  out.Suggested,
				"current": e.Status,
				"reason":  c.Reason,
			})
			if err != nil {
				return nil, fmt.Errorf("write status suggestion: %w", err)
			}
			return out, nil
		},
	}
}
