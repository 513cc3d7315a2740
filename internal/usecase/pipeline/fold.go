package pipeline

import (
	"github.com/kailas-cloud/supportgraph/internal/domain/job"
	"github.com/kailas-cloud/supportgraph/internal/domain/result"
)

func rank(k result.Kind) int {
	switch k {
	case result.KindSuccess:
		return 3
	case result.KindSkipped:
		return 2
	case result.KindError:
		return 1
	default:
		return 0
	}
}

func statusOf(rank int) job.EntityStatus {
	switch rank {
	case 3:
		return job.EntityProcessed
	case 1:
		return job.EntityFailed
	default:
		return job.EntitySkipped
	}
}

// fold reduces per-processor results to one status per entity.
// The best outcome wins: processed over skipped over failed.
type fold struct {
	order  []string
	ranks  map[string]int
	errors []job.EntityError
}

func newFold(ids []string) *fold {
	f := &fold{ranks: make(map[string]int, len(ids))}
	for _, id := range ids {
		if _, seen := f.ranks[id]; seen {
			continue
		}
		f.ranks[id] = 0
		f.order = append(f.order, id)
	}
	return f
}

// fail marks an entity failed outside of any processor.
func (f *fold) fail(id, msg string) {
	f.ranks[id] = rank(result.KindError)
	f.errors = append(f.errors, job.EntityError{EntityID: id, Message: msg})
}

func (f *fold) add(processor string, r result.Result) {
	if rk := rank(r.Kind); rk > f.ranks[r.EntityID] {
		f.ranks[r.EntityID] = rk
	}
	if r.IsError() {
		f.errors = append(f.errors, job.EntityError{
			Processor: processor,
			EntityID:  r.EntityID,
			Message:   r.Message,
		})
	}
}

func (f *fold) statuses() map[string]job.EntityStatus {
	out := make(map[string]job.EntityStatus, len(f.order))
	for _, id := range f.order {
		out[id] = statusOf(f.ranks[id])
	}
	return out
}

func (f *fold) summary() job.Summary {
	s := job.Summary{Total: len(f.order), Errors: f.errors}
	for _, id := range f.order {
		switch statusOf(f.ranks[id]) {
		case job.EntityProcessed:
			s.Processed++
		case job.EntityFailed:
			s.Failed++
		default:
			s.Skipped++
		}
	}
	return s
}
