package processors

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/supportgraph/internal/domain"
	"github.com/kailas-cloud/supportgraph/internal/domain/chunk"
	"github.com/kailas-cloud/supportgraph/internal/domain/entity"
	"github.com/kailas-cloud/supportgraph/internal/logger"
	"github.com/kailas-cloud/supportgraph/internal/usecase/idempotency"
	"github.com/kailas-cloud/supportgraph/internal/usecase/pipeline"
)

// Embedded is the embed output: the query-side vector of the entity summary.
type Embedded struct {
	Vector   []float32 `json:"-"`
	Keywords []string  `json:"keywords"`
	Chunks   int       `json:"chunks"`
}

func (d Deps) embed() pipeline.Definition {
	return pipeline.Definition{
		Name:      NameEmbed,
		DependsOn: []string{NameSummarize},
		Hash: func(e *entity.Entity, jc *pipeline.JobContext) (string, error) {
			s, err := upstream[Summary](jc, NameSummarize, e.ID)
			if err != nil {
				return "", err
			}
			return idempotency.ContentHash(NameEmbed, s, e.Transcript(), d.Config.ChunkSize, e.Sequence, e.CreatedAt.UnixMilli())
		},
		Execute: func(ctx context.Context, e *entity.Entity, jc *pipeline.JobContext) (any, error) {
			s, err := upstream[Summary](jc, NameSummarize, e.ID)
			if err != nil {
				return nil, err
			}
			return d.embedEntity(ctx, e, s)
		},
	}
}

func (d Deps) embedEntity(ctx context.Context, e *entity.Entity, s Summary) (Embedded, error) {
	chunks := buildChunks(s, e.Transcript(), d.Config.ChunkSize)
	if len(chunks) == 0 {
		return Embedded{}, fmt.Errorf("entity %s: nothing to embed", e.ID)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	res, err := d.Embedder.BatchEmbedTask(ctx, texts, domain.TaskDocument)
	if err != nil {
		return Embedded{}, fmt.Errorf("embed chunks: %w", err)
	}

	var createdAt int64
	if !e.CreatedAt.IsZero() {
		createdAt = e.CreatedAt.UnixMilli()
	}
	recs := make([]chunk.Record, 0, len(chunks))
	for i, c := range chunks {
		if len(res.Embeddings[i]) == 0 {
			continue
		}
		recs = append(recs, chunk.Record{
			ID:     chunk.ID(e.ID, len(recs)),
			Vector: res.Embeddings[i],
			Payload: chunk.Payload{
				Kind:       chunk.KindEntityChunk,
				EntityID:   e.ID,
				ChunkIndex: len(recs),
				Keywords:   c.Keywords,
				Text:       c.Text,
				Sequence:   e.Sequence,
				CreatedAt:  createdAt,
			},
		})
	}

	removed, err := d.Chunks.Delete(ctx, chunk.Collection, chunk.Filter{EntityID: e.ID})
	if err != nil {
		return Embedded{}, fmt.Errorf("delete stale chunks: %w", err)
	}
	if err := d.Chunks.UpsertMany(ctx, chunk.Collection, recs); err != nil {
		return Embedded{}, fmt.Errorf("upsert chunks: %w", err)
	}

	query, err := d.Embedder.EmbedTask(ctx, texts[0], domain.TaskQuery)
	if err != nil {
		return Embedded{}, fmt.Errorf("embed query: %w", err)
	}

	logger.FromContext(ctx).Debug("entity embedded",
		zap.Int("chunks", len(recs)),
		zap.Int("removed", removed),
		zap.Int("tokens", res.TotalTokens+query.TotalTokens),
	)
	return Embedded{Vector: query.Embedding, Keywords: s.Keywords, Chunks: len(recs)}, nil
}
