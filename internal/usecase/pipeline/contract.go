package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/kailas-cloud/supportgraph/internal/domain/entity"
	"github.com/kailas-cloud/supportgraph/internal/domain/idempotency"
	"github.com/kailas-cloud/supportgraph/internal/domain/job"
)

// EntityFetcher loads entities by id. Missing ids are absent from the map.
type EntityFetcher interface {
	FetchMany(ctx context.Context, ids []string) (map[string]*entity.Entity, error)
}

// JobRecorder persists the job lifecycle.
type JobRecorder interface {
	Create(ctx context.Context, entityIDs []string, opts job.Options) (uuid.UUID, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status job.Status, patch map[string]any) error
}

// IdempotencyStore answers "was this exact input already processed".
// BatchCheck returns true for keys whose stored hash equals the entry hash.
// BatchExists returns true for keys with any stored record. Lookup failures
// must report false in both.
type IdempotencyStore interface {
	BatchCheck(ctx context.Context, entries []idempotency.Entry) map[string]bool
	BatchExists(ctx context.Context, keys []string) map[string]bool
	BatchStore(ctx context.Context, entries []idempotency.Entry) error
}

// Locker serializes work on one key.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}
