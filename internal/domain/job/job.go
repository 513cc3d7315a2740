package job

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/supportgraph/internal/domain"
	"github.com/kailas-cloud/supportgraph/internal/domain/similarity"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// DefaultConcurrency bounds in-flight entities per processor.
const DefaultConcurrency = 5

// CanTransition reports whether s may move to next. Transitions are monotonic.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusFailed
	case StatusRunning:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Transition validates a status change.
func Transition(from, to Status) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}
	return nil
}

// Options tunes one job run.
type Options struct {
	Concurrency int                  `json:"concurrency,omitempty"`
	Similarity  similarity.Overrides `json:"similarity"`
}

// WithDefaults fills a zero concurrency and unset similarity fields from base.
func (o Options) WithDefaults(base Options) Options {
	if o.Concurrency <= 0 {
		o.Concurrency = base.Concurrency
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	o.Similarity = o.Similarity.Merge(base.Similarity)
	return o
}

// EntityStatus is the folded outcome of one entity across all turns.
type EntityStatus string

const (
	EntityProcessed EntityStatus = "processed"
	EntitySkipped   EntityStatus = "skipped"
	EntityFailed    EntityStatus = "failed"
)

// ProcessorSummary counts one processor's outcomes within a turn.
type ProcessorSummary struct {
	Name       string `json:"name"`
	Processed  int    `json:"processed"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
	DurationMS int64  `json:"duration_ms"`
}

// TurnSummary records one turn of the plan.
type TurnSummary struct {
	Index      int                `json:"index"`
	Processors []ProcessorSummary `json:"processors"`
}

// EntityError is a diagnostic for a failed (processor, entity) pair.
type EntityError struct {
	Processor string `json:"processor,omitempty"`
	EntityID  string `json:"entity_id"`
	Message   string `json:"message"`
}

// Summary is the externally observed outcome of a job.
type Summary struct {
	Total     int           `json:"total"`
	Processed int           `json:"processed"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Errors    []EntityError `json:"errors,omitempty"`
}

// Job is the durable record of one orchestrator run.
type Job struct {
	ID        uuid.UUID
	EntityIDs []string
	Options   Options
	Status    Status
	Turns     []TurnSummary
	Summary   *Summary
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
