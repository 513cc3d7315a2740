package supportgraph

import "time"

// JobOptions overrides worker defaults for one job. Zero fields keep the defaults.
type JobOptions struct {
	Concurrency int               `json:"concurrency,omitempty"`
	Similarity  SimilarityOptions `json:"similarity"`
}

// SimilarityOptions tunes related-entity ranking. Nil fields keep the worker
// defaults; a pointer to zero sends an explicit zero.
type SimilarityOptions struct {
	Limit            *int     `json:"limit,omitempty"`
	ScoreThreshold   *float64 `json:"score_threshold,omitempty"`
	VectorWeight     *float64 `json:"vector_weight,omitempty"`
	KeywordWeight    *float64 `json:"keyword_weight,omitempty"`
	KeywordSteepness *float64 `json:"keyword_steepness,omitempty"`
	CutoffScore      *float64 `json:"cutoff_score,omitempty"`
	MinScore         *float64 `json:"min_score,omitempty"`
}

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// JobStatus is the lifecycle state of a job.
type JobStatus string

// Job status constants.
const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Report is the outcome of a synchronous job run.
type Report struct {
	JobID    string            `json:"job_id"`
	Status   JobStatus         `json:"status"`
	Summary  Summary           `json:"summary"`
	Turns    []TurnSummary     `json:"turns"`
	Entities map[string]string `json:"entities"`
	Error    string            `json:"error,omitempty"`
}

// Summary counts entity outcomes of a job.
type Summary struct {
	Total     int           `json:"total"`
	Processed int           `json:"processed"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Errors    []EntityError `json:"errors,omitempty"`
}

// EntityError describes one failed entity.
type EntityError struct {
	Processor string `json:"processor,omitempty"`
	EntityID  string `json:"entity_id"`
	Message   string `json:"message"`
}

// TurnSummary reports the processors of one turn.
type TurnSummary struct {
	Index      int                `json:"index"`
	Processors []ProcessorSummary `json:"processors"`
}

// ProcessorSummary counts one processor's outcomes within a turn.
type ProcessorSummary struct {
	Name       string `json:"name"`
	Processed  int    `json:"processed"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
	DurationMS int64  `json:"duration_ms"`
}

// Job is the persisted record of a job.
type Job struct {
	ID        string        `json:"id"`
	EntityIDs []string      `json:"entity_ids"`
	Options   JobOptions    `json:"options"`
	Status    JobStatus     `json:"status"`
	Turns     []TurnSummary `json:"turns,omitempty"`
	Summary   *Summary      `json:"summary,omitempty"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// SimilarQuery narrows a related-entity search.
type SimilarQuery struct {
	Limit    int
	MinScore float64
	Keywords []string
}

// Candidate is one related entity.
type Candidate struct {
	EntityID        string    `json:"entity_id"`
	VectorScore     float64   `json:"vector_score"`
	KeywordScore    float64   `json:"keyword_score"`
	FinalScore      float64   `json:"final_score"`
	ChunkCount      int       `json:"chunk_count,omitempty"`
	ChunkScores     []float64 `json:"chunk_scores,omitempty"`
	MatchRatio      float64   `json:"match_ratio,omitempty"`
	MatchedKeywords []string  `json:"matched_keywords,omitempty"`
}

// Suggestion is a derived artifact for an entity.
type Suggestion struct {
	Type      string         `json:"type"`
	SourceID  string         `json:"source_id"`
	RelatedID string         `json:"related_id,omitempty"`
	Result    map[string]any `json:"result"`
	Active    bool           `json:"active"`
	Accepted  bool           `json:"accepted"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status string            `json:"status"` // "ok", "degraded", "error"
	Checks map[string]string `json:"checks"` // component -> "ok"/"error"
}
