package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/supportgraph/internal/db"
	"github.com/kailas-cloud/supportgraph/internal/domain"
	domidem "github.com/kailas-cloud/supportgraph/internal/domain/idempotency"
)

// store is the consumer interface for idempotency records (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	SetMulti(ctx context.Context, items []db.KVItem) error
	Del(ctx context.Context, keys ...string) error
}

// Repo persists idempotency records as JSON strings under "<prefix>idem:<key>".
type Repo struct {
	store  store
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// New creates an idempotency repository. A zero ttl keeps records forever.
func New(s store, keyPrefix string, ttl time.Duration) *Repo {
	return &Repo{
		store:  s,
		prefix: keyPrefix + "idem:",
		ttl:    ttl,
		now:    time.Now,
	}
}

// Get returns the record for key or domain.ErrNotFound.
func (r *Repo) Get(ctx context.Context, key string) (domidem.Record, error) {
	data, err := r.store.Get(ctx, r.prefix+key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domidem.Record{}, fmt.Errorf("idempotency %s: %w", key, domain.ErrNotFound)
		}
		return domidem.Record{}, fmt.Errorf("idempotency GET %s: %w", key, err)
	}
	return decode(key, data)
}

// MGet returns the records found for keys in one round trip. Missing keys are absent.
func (r *Repo) MGet(ctx context.Context, keys []string) (map[string]domidem.Record, error) {
	out := make(map[string]domidem.Record, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.prefix + k
	}
	vals, err := r.store.MGet(ctx, full)
	if err != nil {
		return nil, fmt.Errorf("idempotency MGET: %w", err)
	}

	for i, v := range vals {
		if v == nil || i >= len(keys) {
			continue
		}
		rec, err := decode(keys[i], v)
		if err != nil {
			return nil, err
		}
		out[keys[i]] = rec
	}
	return out, nil
}

// SetMulti writes one record per entry, stamped with the current time.
func (r *Repo) SetMulti(ctx context.Context, entries []domidem.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	now := r.now().UTC()
	items := make([]db.KVItem, 0, len(entries))
	for _, e := range entries {
		data, err := json.Marshal(domidem.Record{Hash: e.Hash, UpdatedAt: now})
		if err != nil {
			return fmt.Errorf("marshal idempotency record %s: %w", e.Key, err)
		}
		items = append(items, db.KVItem{Key: r.prefix + e.Key, Value: data, TTL: r.ttl})
	}
	if err := r.store.SetMulti(ctx, items); err != nil {
		return fmt.Errorf("idempotency SET x%d: %w", len(items), err)
	}
	return nil
}

// Delete removes the records for keys.
func (r *Repo) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.prefix + k
	}
	if err := r.store.Del(ctx, full...); err != nil {
		return fmt.Errorf("idempotency DEL: %w", err)
	}
	return nil
}

func decode(key string, data []byte) (domidem.Record, error) {
	var rec domidem.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return domidem.Record{}, fmt.Errorf("decode idempotency record %s: %w", key, err)
	}
	return rec, nil
}
