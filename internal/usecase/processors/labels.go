package processors

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/kailas-cloud/supportgraph/internal/domain/entity"
	domsug "github.com/kailas-cloud/supportgraph/internal/domain/suggestion"
	"github.com/kailas-cloud/supportgraph/internal/usecase/idempotency"
	"github.com/kailas-cloud/supportgraph/internal/usecase/pipeline"
)

// LabelChoice is the labels model answer and processor output.
type LabelChoice struct {
	Labels []string `json:"labels"`
	Reason string   `json:"reason"`
}

func (d Deps) labels() pipeline.Definition {
	allowed := d.Config.Labels
	return pipeline.Definition{
		Name:      NameLabels,
		DependsOn: []string{NameSummarize},
		Hash: func(e *entity.Entity, jc *pipeline.JobContext) (string, error) {
			s, err := upstream[Summary](jc, NameSummarize, e.ID)
			if err != nil {
				return "", err
			}
			return idempotency.ContentHash(labelsPromptVersion, d.Config.Model, s, allowed, e.SortedLabels())
		},
		Execute: func(ctx context.Context, e *entity.Entity, jc *pipeline.JobContext) (any, error) {
			s, err := upstream[Summary](jc, NameSummarize, e.ID)
			if err != nil {
				return nil, err
			}
			var c LabelChoice
			if err := d.generate(ctx, labelsPrompt(s, allowed), &c); err != nil {
				return nil, err
			}
			c.Labels = canonical(c.Labels, allowed)

			err = d.Suggestions.Upsert(ctx, domsug.TypeLabel, e.ID, "", map[string]any{
				"labels":  c.Labels,
				"current": e.SortedLabels(),
				"reason":  c.Reason,
			})
			if err != nil {
				return nil, fmt.Errorf("write label suggestion: %w", err)
			}
			return c, nil
		},
	}
}

// canonical maps picks onto the allowed spelling, dropping unknown and repeated ones.
func canonical(picks, allowed []string) []string {
	out := []string{}
	for _, p := range picks {
		for _, a := range allowed {
			if strings.EqualFold(strings.TrimSpace(p), a) && !slices.Contains(out, a) {
				out = append(out, a)
			}
		}
	}
	slices.Sort(out)
	return out
}
