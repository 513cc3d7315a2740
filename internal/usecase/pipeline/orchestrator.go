package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/supportgraph/internal/domain/entity"
	"github.com/kailas-cloud/supportgraph/internal/domain/idempotency"
	"github.com/kailas-cloud/supportgraph/internal/domain/job"
	"github.com/kailas-cloud/supportgraph/internal/domain/result"
	"github.com/kailas-cloud/supportgraph/internal/logger"
	"github.com/kailas-cloud/supportgraph/internal/metrics"
)

// DefaultEntityTimeout bounds one processor execution for one entity.
const DefaultEntityTimeout = 2 * time.Minute

var errEntityNotFound = errors.New("entity not found")

// Report is the outcome of one Run.
type Report struct {
	JobID    uuid.UUID                   `json:"job_id"`
	Status   job.Status                  `json:"status"`
	Summary  job.Summary                 `json:"summary"`
	Turns    []job.TurnSummary           `json:"turns"`
	Entities map[string]job.EntityStatus `json:"entities"`
	Error    string                      `json:"error,omitempty"`
}

// Orchestrator runs registered processors over a batch of entities.
type Orchestrator struct {
	registry      *Registry
	entities      EntityFetcher
	jobs          JobRecorder
	idem          IdempotencyStore
	locker        Locker
	defaults      job.Options
	entityTimeout time.Duration
	logger        *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLocker serializes executions per idempotency key.
func WithLocker(l Locker) Option {
	return func(o *Orchestrator) { o.locker = l }
}

// WithDefaults sets the options merged under every job's options.
func WithDefaults(opts job.Options) Option {
	return func(o *Orchestrator) { o.defaults = opts }
}

// WithEntityTimeout overrides DefaultEntityTimeout.
func WithEntityTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.entityTimeout = d
		}
	}
}

// New creates an orchestrator.
func New(
	registry *Registry,
	entities EntityFetcher,
	jobs JobRecorder,
	idem IdempotencyStore,
	log *zap.Logger,
	opts ...Option,
) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	o := &Orchestrator{
		registry:      registry,
		entities:      entities,
		jobs:          jobs,
		idem:          idem,
		entityTimeout: DefaultEntityTimeout,
		logger:        log,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run processes ids through every registered processor, turn by turn.
// The returned error is non-nil only when the job failed as a whole;
// per-entity failures are reported in the summary.
func (o *Orchestrator) Run(ctx context.Context, ids []string, opts job.Options) (*Report, error) {
	opts = opts.WithDefaults(o.defaults)

	jobID, err := o.jobs.Create(ctx, ids, opts)
	if err != nil {
		jobID = uuid.New()
		o.logger.Warn("job record not created, continuing untracked",
			zap.String("job_id", jobID.String()), zap.Error(err))
	}

	log := o.logger.With(zap.String("job_id", jobID.String()))
	ctx = logger.ContextWithLogger(ctx, log)
	o.updateStatus(ctx, jobID, job.StatusRunning, nil)

	report := &Report{JobID: jobID, Status: job.StatusRunning}
	if err := o.run(ctx, ids, opts, report); err != nil {
		report.Status = job.StatusFailed
		report.Error = err.Error()
		o.updateStatus(ctx, jobID, job.StatusFailed, map[string]any{
			"error": report.Error,
			"turns": report.Turns,
		})
		metrics.JobsTotal.WithLabelValues(string(job.StatusFailed)).Inc()
		log.Error("job failed", zap.Error(err))
		return report, fmt.Errorf("job %s: %w", jobID, err)
	}

	report.Status = job.StatusCompleted
	o.updateStatus(ctx, jobID, job.StatusCompleted, map[string]any{
		"summary": report.Summary,
		"turns":   report.Turns,
	})
	metrics.JobsTotal.WithLabelValues(string(job.StatusCompleted)).Inc()
	log.Info("job completed",
		zap.Int("total", report.Summary.Total),
		zap.Int("processed", report.Summary.Processed),
		zap.Int("skipped", report.Summary.Skipped),
		zap.Int("failed", report.Summary.Failed),
	)
	return report, nil
}

func (o *Orchestrator) run(ctx context.Context, ids []string, opts job.Options, report *Report) error {
	turns, err := o.registry.ResolveExecutionOrder()
	if err != nil {
		return fmt.Errorf("resolve execution order: %w", err)
	}

	found, err := o.entities.FetchMany(ctx, ids)
	if err != nil {
		return fmt.Errorf("fetch entities: %w", err)
	}

	f := newFold(ids)
	batch := make([]*entity.Entity, 0, len(f.order))
	for _, id := range f.order {
		e, ok := found[id]
		if !ok || e == nil {
			f.fail(id, errEntityNotFound.Error())
			continue
		}
		batch = append(batch, e)
	}

	jc := NewJobContext(report.JobID, opts)
	plan := o.planRun(ctx, turns, batch)
	for i, turn := range turns {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("turn %d: %w", i, err)
		}
		ts := o.runTurn(ctx, i, turn, batch, jc, plan, f)
		report.Turns = append(report.Turns, ts)
		o.updateStatus(ctx, report.JobID, job.StatusRunning, map[string]any{"turns": report.Turns})
	}

	report.Summary = f.summary()
	report.Entities = f.statuses()
	return nil
}

type processorRun struct {
	name     string
	results  []result.Result
	duration time.Duration
}

func (o *Orchestrator) runTurn(
	ctx context.Context, index int, turn []Definition, batch []*entity.Entity, jc *JobContext, plan *runPlan, f *fold,
) job.TurnSummary {
	start := time.Now()
	runs := make([]processorRun, len(turn))

	var g errgroup.Group
	for i, def := range turn {
		g.Go(func() error {
			pctx := logger.With(ctx, zap.String("processor", def.Name))
			pstart := time.Now()
			runs[i] = processorRun{
				name:     def.Name,
				results:  o.runProcessor(pctx, def, batch, jc, plan),
				duration: time.Since(pstart),
			}
			return nil
		})
	}
	_ = g.Wait() // processors report failures per entity

	ts := job.TurnSummary{Index: index}
	for _, r := range runs {
		ps := job.ProcessorSummary{Name: r.name, DurationMS: r.duration.Milliseconds()}
		for _, res := range r.results {
			f.add(r.name, res)
			switch res.Kind {
			case result.KindSuccess:
				ps.Processed++
			case result.KindSkipped:
				ps.Skipped++
			case result.KindError:
				ps.Failed++
			}
		}
		ts.Processors = append(ts.Processors, ps)
	}
	metrics.TurnDuration.Observe(time.Since(start).Seconds())
	return ts
}

// runProcessor executes def over the batch. Results keep batch order.
func (o *Orchestrator) runProcessor(
	ctx context.Context, def Definition, batch []*entity.Entity, jc *JobContext, plan *runPlan,
) []result.Result {
	log := logger.FromContext(ctx)
	results := make([]result.Result, len(batch))
	done := make([]bool, len(batch))
	forced := make([]bool, len(batch))
	hashes := make([]string, len(batch))

	entries := make([]idempotency.Entry, 0, len(batch))
	for i, e := range batch {
		key := def.IdempotencyKey(e.ID)
		forced[i] = plan.isForced(def.Name, e.ID)
		if !forced[i] && len(def.DependsOn) > 0 && plan.hasRecord(key) && jc.WereAllSkipped(def.DependsOn, e.ID) {
			results[i] = result.NewSkipped(e.ID, result.SkipDependencies)
			done[i] = true
			continue
		}
		h, err := safeHash(def, e, jc)
		if err != nil {
			results[i] = result.NewError(e.ID, fmt.Errorf("hash: %w", err))
			done[i] = true
			metrics.ProcessorResultsTotal.WithLabelValues(def.Name, string(result.KindError)).Inc()
			continue
		}
		hashes[i] = h
		if !forced[i] {
			entries = append(entries, idempotency.Entry{Key: key, Hash: h})
		}
	}

	var unchanged map[string]bool
	if len(entries) > 0 {
		unchanged = o.idem.BatchCheck(ctx, entries)
	}
	for i, e := range batch {
		if !done[i] && !forced[i] && unchanged[def.IdempotencyKey(e.ID)] {
			results[i] = result.NewSkipped(e.ID, result.SkipIdempotent)
			done[i] = true
		}
	}

	pending := make([]int, 0, len(batch))
	for i := range batch {
		if !done[i] {
			pending = append(pending, i)
		}
	}

	size := jc.Options().Concurrency
	if size <= 0 {
		size = job.DefaultConcurrency
	}
	stored := make([]bool, len(batch))
	for lo := 0; lo < len(pending); lo += size {
		hi := min(lo+size, len(pending))
		var g errgroup.Group
		for _, idx := range pending[lo:hi] {
			g.Go(func() error {
				results[idx], stored[idx] = o.executeOne(ctx, def, batch[idx], jc, hashes[idx], forced[idx])
				return nil
			})
		}
		_ = g.Wait()
	}

	toStore := make([]idempotency.Entry, 0, len(pending))
	for i, r := range results {
		switch {
		case r.IsSuccess():
			jc.SetOutput(def.Name, r.EntityID, r.Data)
			if hashes[i] != "" && !stored[i] {
				toStore = append(toStore, idempotency.Entry{Key: def.IdempotencyKey(r.EntityID), Hash: hashes[i]})
			}
		case r.IsSkipped():
			jc.MarkSkipped(def.Name, r.EntityID)
			metrics.ProcessorResultsTotal.WithLabelValues(def.Name, string(r.Kind)).Inc()
		}
	}

	if len(toStore) > 0 {
		if err := o.idem.BatchStore(ctx, toStore); err != nil {
			log.Warn("idempotency store failed", zap.Int("entries", len(toStore)), zap.Error(err))
		}
	}
	return results
}

// executeOne runs def for one entity, turning panics and timeouts into an error result.
//
// With a Locker, the key is held across check, execute and store: a run that
// waited on the lock re-checks the hash and skips when the holder already
// stored it, and a success is stored before the lock is released. stored
// reports that the record was written here.
func (o *Orchestrator) executeOne(
	ctx context.Context, def Definition, e *entity.Entity, jc *JobContext, hash string, forced bool,
) (res result.Result, stored bool) {
	log := logger.FromContext(ctx).With(zap.String("entity_id", e.ID))
	key := def.IdempotencyKey(e.ID)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("processor panicked", zap.Any("panic", r), zap.Stack("stack"))
			res, stored = result.NewError(e.ID, fmt.Errorf("panic: %v", r)), false
		}
		if !res.IsSkipped() {
			metrics.ObserveProcessor(def.Name, string(res.Kind), time.Since(start))
		}
	}()

	if o.locker != nil {
		unlock, err := o.locker.Lock(ctx, key)
		if err != nil {
			return result.NewError(e.ID, fmt.Errorf("acquire lock: %w", err)), false
		}
		defer unlock()

		entry := idempotency.Entry{Key: key, Hash: hash}
		if !forced && o.idem.BatchCheck(ctx, []idempotency.Entry{entry})[key] {
			return result.NewSkipped(e.ID, result.SkipIdempotent), false
		}
		defer func() {
			if res.IsSuccess() {
				if err := o.idem.BatchStore(ctx, []idempotency.Entry{entry}); err != nil {
					log.Warn("idempotency store failed", zap.Error(err))
					return
				}
				stored = true
			}
		}()
	}

	ectx, cancel := context.WithTimeout(logger.ContextWithLogger(ctx, log), o.entityTimeout)
	defer cancel()

	out, err := def.Execute(ectx, e, jc)
	if err != nil {
		log.Warn("processor failed", zap.Error(err))
		return result.NewError(e.ID, err), false
	}
	return result.NewSuccess(e.ID, out), false
}

func safeHash(def Definition, e *entity.Entity, jc *JobContext) (h string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return def.Hash(e, jc)
}

func (o *Orchestrator) updateStatus(ctx context.Context, id uuid.UUID, status job.Status, patch map[string]any) {
	if err := o.jobs.UpdateStatus(ctx, id, status, patch); err != nil {
		logger.FromContext(ctx).Warn("job status not persisted",
			zap.String("status", string(status)), zap.Error(err))
	}
}
