package processors

import (
	"context"

	"github.com/kailas-cloud/supportgraph/internal/domain"
	"github.com/kailas-cloud/supportgraph/internal/domain/chunk"
	domsim "github.com/kailas-cloud/supportgraph/internal/domain/similarity"
	domsug "github.com/kailas-cloud/supportgraph/internal/domain/suggestion"
	"github.com/kailas-cloud/supportgraph/internal/usecase/similarity"
)

// Generator produces schema-constrained model output into out.
type Generator interface {
	Generate(ctx context.Context, p domain.Prompt, out any) error
}

// Embedder vectorizes texts for a task type.
type Embedder interface {
	EmbedTask(ctx context.Context, text string, task domain.TaskType) (domain.EmbeddingResult, error)
	BatchEmbedTask(ctx context.Context, texts []string, task domain.TaskType) (domain.BatchEmbeddingResult, error)
}

// ChunkStore persists entity chunks.
type ChunkStore interface {
	UpsertMany(ctx context.Context, collection string, recs []chunk.Record) error
	Delete(ctx context.Context, collection string, filter chunk.Filter) (int, error)
}

// SuggestionSink writes derived suggestions.
type SuggestionSink interface {
	Upsert(ctx context.Context, typ domsug.Type, sourceID, relatedID string, result map[string]any) error
	Deactivate(ctx context.Context, typ domsug.Type, sourceID, keepRelatedID string) error
}

// Similarity ranks entities related to a query.
type Similarity interface {
	FindSimilar(ctx context.Context, q similarity.Query, o domsim.Overrides) ([]domsim.Candidate, error)
}
