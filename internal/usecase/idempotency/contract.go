package idempotency

import (
	"context"

	domidem "github.com/kailas-cloud/supportgraph/internal/domain/idempotency"
)

// Repository persists idempotency records.
type Repository interface {
	Get(ctx context.Context, key string) (domidem.Record, error)
	MGet(ctx context.Context, keys []string) (map[string]domidem.Record, error)
	SetMulti(ctx context.Context, entries []domidem.Entry) error
	Delete(ctx context.Context, keys ...string) error
}
