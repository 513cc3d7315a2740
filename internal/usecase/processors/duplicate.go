package processors

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/supportgraph/internal/domain/entity"
	domsug "github.com/kailas-cloud/supportgraph/internal/domain/suggestion"
	"github.com/kailas-cloud/supportgraph/internal/logger"
	"github.com/kailas-cloud/supportgraph/internal/usecase/pipeline"
	"github.com/kailas-cloud/supportgraph/internal/usecase/similarity"
)

// DuplicateVerdict is the duplicate model answer.
type DuplicateVerdict struct {
	Duplicate  bool    `json:"duplicate"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// DuplicateOutput is the duplicate processor output. OfID is empty when no
// older candidate was found or the model rejected it.
type DuplicateOutput struct {
	OfID    string           `json:"of_id,omitempty"`
	Score   float64          `json:"score,omitempty"`
	Verdict DuplicateVerdict `json:"verdict"`
}

func (d Deps) duplicate() pipeline.Definition {
	return pipeline.Definition{
		Name:      NameDuplicate,
		DependsOn: []string{NameSummarize, NameEmbed},
		Hash:      d.similarityHash(duplicatePromptVersion),
		Execute: func(ctx context.Context, e *entity.Entity, jc *pipeline.JobContext) (any, error) {
			s, err := upstream[Summary](jc, NameSummarize, e.ID)
			if err != nil {
				return nil, err
			}
			cands, err := d.candidates(ctx, e, jc)
			if err != nil {
				return nil, err
			}

			older, ok := similarity.SelectOlder(cands, entity.RefOf(e))
			if !ok {
				return DuplicateOutput{}, d.clearDuplicates(ctx, e.ID, "")
			}

			var v DuplicateVerdict
			if err := d.generate(ctx, duplicatePrompt(s, older.Payload.Text), &v); err != nil {
				return nil, err
			}
			out := DuplicateOutput{Score: older.FinalScore, Verdict: v}
			if !v.Duplicate {
				return out, d.clearDuplicates(ctx, e.ID, "")
			}

			out.OfID = older.EntityID
			err = d.Suggestions.Upsert(ctx, domsug.TypeDuplicate, e.ID, older.EntityID, map[string]any{
				"score":      older.FinalScore,
				"confidence": v.Confidence,
				"reason":     v.Reason,
			})
			if err != nil {
				return nil, fmt.Errorf("write duplicate suggestion: %w", err)
			}
			logger.FromContext(ctx).Info("duplicate found",
				zap.String("of", older.EntityID),
				zap.Float64("score", older.FinalScore),
				zap.Float64("confidence", v.Confidence),
			)
			return out, d.clearDuplicates(ctx, e.ID, older.EntityID)
		},
	}
}

// clearDuplicates deactivates stale duplicate suggestions except keep.
func (d Deps) clearDuplicates(ctx context.Context, sourceID, keep string) error {
	if err := d.Suggestions.Deactivate(ctx, domsug.TypeDuplicate, sourceID, keep); err != nil {
		return fmt.Errorf("deactivate duplicates: %w", err)
	}
	return nil
}
