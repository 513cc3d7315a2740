package processors

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/supportgraph/internal/domain/entity"
	domsim "github.com/kailas-cloud/supportgraph/internal/domain/similarity"
	domsug "github.com/kailas-cloud/supportgraph/internal/domain/suggestion"
	"github.com/kailas-cloud/supportgraph/internal/usecase/idempotency"
	"github.com/kailas-cloud/supportgraph/internal/usecase/pipeline"
	"github.com/kailas-cloud/supportgraph/internal/usecase/similarity"
)

func (d Deps) related() pipeline.Definition {
	return pipeline.Definition{
		Name:      NameRelated,
		DependsOn: []string{NameEmbed},
		Hash:      d.similarityHash(NameRelated),
		Execute: func(ctx context.Context, e *entity.Entity, jc *pipeline.JobContext) (any, error) {
			cands, err := d.candidates(ctx, e, jc)
			if err != nil {
				return nil, err
			}
			err = d.Suggestions.Upsert(ctx, domsug.TypeRelated, e.ID, "", map[string]any{
				"candidates": cands,
			})
			if err != nil {
				return nil, fmt.Errorf("write related suggestion: %w", err)
			}
			return cands, nil
		},
	}
}

// similarityHash covers the entity vector, keywords and job scoring options.
// Newly indexed neighbours do not change it.
func (d Deps) similarityHash(version string) pipeline.HashFunc {
	return func(e *entity.Entity, jc *pipeline.JobContext) (string, error) {
		emb, err := upstream[Embedded](jc, NameEmbed, e.ID)
		if err != nil {
			return "", err
		}
		opts := jc.Options().Similarity.Apply(domsim.DefaultOptions())
		return idempotency.ContentHash(version, d.Config.Model, emb.Vector, emb.Keywords, opts)
	}
}

func (d Deps) candidates(ctx context.Context, e *entity.Entity, jc *pipeline.JobContext) ([]domsim.Candidate, error) {
	emb, err := upstream[Embedded](jc, NameEmbed, e.ID)
	if err != nil {
		return nil, err
	}
	cands, err := d.Similarity.FindSimilar(ctx, similarity.Query{
		EntityID: e.ID,
		Vector:   emb.Vector,
		Keywords: emb.Keywords,
	}, jc.Options().Similarity)
	if err != nil {
		return nil, fmt.Errorf("find similar: %w", err)
	}
	return cands, nil
}
