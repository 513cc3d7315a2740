package similarity

import "github.com/kailas-cloud/supportgraph/internal/domain/chunk"

// Candidate is one ranked entity for a similarity query.
type Candidate struct {
	EntityID        string        `json:"entity_id"`
	VectorScore     float64       `json:"vector_score"`
	KeywordScore    float64       `json:"keyword_score"`
	FinalScore      float64       `json:"final_score"`
	ChunkCount      int           `json:"chunk_count,omitempty"`
	ChunkScores     []float64     `json:"chunk_scores,omitempty"`
	MatchRatio      float64       `json:"match_ratio,omitempty"`
	MatchedKeywords []string      `json:"matched_keywords,omitempty"`
	Payload         chunk.Payload `json:"-"`
}
