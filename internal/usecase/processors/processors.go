// Package processors holds the built-in pipeline processors.
package processors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/supportgraph/internal/domain"
	"github.com/kailas-cloud/supportgraph/internal/logger"
	"github.com/kailas-cloud/supportgraph/internal/retry"
	"github.com/kailas-cloud/supportgraph/internal/usecase/pipeline"
)

// Processor names. They are also the first segment of idempotency keys.
const (
	NameSummarize = "summarize"
	NameEmbed     = "embed"
	NameLabels    = "labels"
	NameStatus    = "status"
	NameRelated   = "related"
	NameDuplicate = "duplicate"
)

// DefaultChunkSize is the transcript chunk size in characters.
const DefaultChunkSize = 2000

// Config tunes the processors.
type Config struct {
	Model     string // part of every LLM-backed hash
	ChunkSize int
	Labels    []string // empty disables the labels processor
	Statuses  []string // empty disables the status processor
}

// Deps wires the processors to their collaborators.
type Deps struct {
	Generator   Generator
	Embedder    Embedder
	Chunks      ChunkStore
	Suggestions SuggestionSink
	Similarity  Similarity
	Retry       retry.Policy
	Config      Config
}

func (d Deps) validate() error {
	var errs []error
	if d.Generator == nil {
		errs = append(errs, errors.New("generator is required"))
	}
	if d.Embedder == nil {
		errs = append(errs, errors.New("embedder is required"))
	}
	if d.Chunks == nil {
		errs = append(errs, errors.New("chunk store is required"))
	}
	if d.Suggestions == nil {
		errs = append(errs, errors.New("suggestion sink is required"))
	}
	if d.Similarity == nil {
		errs = append(errs, errors.New("similarity is required"))
	}
	return errors.Join(errs...)
}

// Register adds every enabled processor to reg.
func Register(reg *pipeline.Registry, d Deps) error {
	if err := d.validate(); err != nil {
		return fmt.Errorf("processors: %w", err)
	}
	if d.Config.ChunkSize <= 0 {
		d.Config.ChunkSize = DefaultChunkSize
	}

	defs := []pipeline.Definition{
		d.summarize(),
		d.embed(),
		d.related(),
		d.duplicate(),
	}
	if len(d.Config.Labels) > 0 {
		defs = append(defs, d.labels())
	}
	if len(d.Config.Statuses) > 0 {
		defs = append(defs, d.status())
	}
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return fmt.Errorf("register %s: %w", def.Name, err)
		}
	}
	return nil
}

// generate calls the model under the retry policy.
func (d Deps) generate(ctx context.Context, p domain.Prompt, out any) error {
	policy := d.Retry
	log := logger.FromContext(ctx)
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Warn("llm retry",
			zap.String("schema", p.Schema),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}
	_, err := retry.Do(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, d.Generator.Generate(ctx, p, out)
	})
	if err != nil {
		return fmt.Errorf("generate %s: %w", p.Schema, err)
	}
	return nil
}

func upstream[T any](jc *pipeline.JobContext, processor, entityID string) (T, error) {
	v, ok := pipeline.OutputAs[T](jc, processor, entityID)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s output for %s: %w", processor, entityID, domain.ErrMissingUpstream)
	}
	return v, nil
}
