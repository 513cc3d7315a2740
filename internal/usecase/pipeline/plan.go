package pipeline

import (
	"context"

	"github.com/kailas-cloud/supportgraph/internal/domain/entity"
)

// runPlan decides, before the first turn, which (processor, entity) pairs must
// execute even when their hash is unchanged.
//
// Outputs live only in the JobContext of the job that produced them. A
// processor with no stored record for an entity has never succeeded for it,
// so it will execute and needs its dependencies' outputs in this job: those
// dependencies are forced, transitively. A processor may only be
// dependency-skipped when it has a record of its own.
type runPlan struct {
	recorded map[string]bool     // idempotency key -> a record exists
	forced   map[string]struct{} // contextKey(processor, entityID)
}

func (o *Orchestrator) planRun(ctx context.Context, turns [][]Definition, batch []*entity.Entity) *runPlan {
	p := &runPlan{forced: make(map[string]struct{})}
	if len(turns) == 0 || len(batch) == 0 {
		p.recorded = map[string]bool{}
		return p
	}

	keys := make([]string, 0, len(batch)*len(turns))
	for _, turn := range turns {
		for _, def := range turn {
			for _, e := range batch {
				keys = append(keys, def.IdempotencyKey(e.ID))
			}
		}
	}
	p.recorded = o.idem.BatchExists(ctx, keys)

	// Later turns first, so a forced processor forces its own dependencies.
	for i := len(turns) - 1; i >= 0; i-- {
		for _, def := range turns[i] {
			if len(def.DependsOn) == 0 {
				continue
			}
			for _, e := range batch {
				if p.recorded[def.IdempotencyKey(e.ID)] && !p.isForced(def.Name, e.ID) {
					continue
				}
				for _, dep := range def.DependsOn {
					p.forced[contextKey(dep, e.ID)] = struct{}{}
				}
			}
		}
	}
	return p
}

func (p *runPlan) isForced(processor, entityID string) bool {
	if p == nil {
		return false
	}
	_, ok := p.forced[contextKey(processor, entityID)]
	return ok
}

func (p *runPlan) hasRecord(key string) bool {
	return p != nil && p.recorded[key]
}
