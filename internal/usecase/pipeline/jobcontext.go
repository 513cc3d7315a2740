package pipeline

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kailas-cloud/supportgraph/internal/domain/job"
)

// JobContext is the in-memory store of processor outputs for one job.
// It is safe for concurrent use by the processors of a turn.
type JobContext struct {
	jobID   uuid.UUID
	options job.Options

	mu      sync.RWMutex
	outputs map[string]any
	skipped map[string]struct{}
}

// NewJobContext creates an empty context for a job.
func NewJobContext(jobID uuid.UUID, opts job.Options) *JobContext {
	return &JobContext{
		jobID:   jobID,
		options: opts,
		outputs: make(map[string]any),
		skipped: make(map[string]struct{}),
	}
}

// JobID returns the job the context belongs to.
func (c *JobContext) JobID() uuid.UUID { return c.jobID }

// Options returns the effective job options.
func (c *JobContext) Options() job.Options { return c.options }

func contextKey(processor, entityID string) string {
	return processor + ":" + entityID
}

// SetOutput records the output of processor for entityID.
func (c *JobContext) SetOutput(processor, entityID string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputs[contextKey(processor, entityID)] = value
}

// Output returns the output of processor for entityID.
func (c *JobContext) Output(processor, entityID string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.outputs[contextKey(processor, entityID)]
	return v, ok
}

// AllOutputs returns every output of processor keyed by entity id.
func (c *JobContext) AllOutputs(processor string) map[string]any {
	prefix := processor + ":"
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any)
	for k, v := range c.outputs {
		if id, ok := strings.CutPrefix(k, prefix); ok {
			out[id] = v
		}
	}
	return out
}

// MarkSkipped records that processor was skipped for entityID.
func (c *JobContext) MarkSkipped(processor, entityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skipped[contextKey(processor, entityID)] = struct{}{}
}

// WasSkipped reports whether processor was skipped for entityID.
func (c *JobContext) WasSkipped(processor, entityID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.skipped[contextKey(processor, entityID)]
	return ok
}

// WereAllSkipped reports whether every listed processor was skipped for entityID.
// An empty list is never "all skipped".
func (c *JobContext) WereAllSkipped(processors []string, entityID string) bool {
	if len(processors) == 0 {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range processors {
		if _, ok := c.skipped[contextKey(p, entityID)]; !ok {
			return false
		}
	}
	return true
}

// OutputAs returns a typed upstream output.
func OutputAs[T any](c *JobContext, processor, entityID string) (T, bool) {
	v, ok := c.Output(processor, entityID)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
