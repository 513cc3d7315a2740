package similarity

import (
	"context"

	"github.com/kailas-cloud/supportgraph/internal/domain"
	"github.com/kailas-cloud/supportgraph/internal/domain/chunk"
)

// VectorStore searches stored entity chunks.
type VectorStore interface {
	Search(
		ctx context.Context, collection string, vector []float32, filter chunk.Filter, limit int, threshold float64,
	) ([]chunk.Hit, error)
	KeywordSearch(ctx context.Context, collection string, keywords []string, filter chunk.Filter, limit int) ([]chunk.Hit, error)
}

// QueryEmbedder vectorizes query text.
type QueryEmbedder interface {
	EmbedTask(ctx context.Context, text string, task domain.TaskType) (domain.EmbeddingResult, error)
}
