package vector

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/supportgraph/internal/db"
	"github.com/kailas-cloud/supportgraph/internal/domain"
	"github.com/kailas-cloud/supportgraph/internal/domain/chunk"
	"github.com/kailas-cloud/supportgraph/internal/logger"
)

// FieldVector holds the chunk embedding.
const FieldVector = "vector"

// maxDeleteBatch bounds how many chunks a single Delete can discover.
const maxDeleteBatch = 10000

// store is the consumer interface for the chunk collection (ISP).
type store interface {
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	Del(ctx context.Context, keys ...string) error
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchTags(ctx context.Context, q *db.TagQuery) (*db.SearchResult, error)
}

// Repo stores chunk vectors as hashes under an HNSW index.
type Repo struct {
	store       store
	prefix      string
	dim         int
	hnswM       int
	efConstruct int
}

// New creates a vector repository. dim is the embedding dimension.
func New(s store, keyPrefix string, dim, hnswM, efConstruct int) *Repo {
	return &Repo{
		store:       s,
		prefix:      keyPrefix,
		dim:         dim,
		hnswM:       hnswM,
		efConstruct: efConstruct,
	}
}

// EnsureIndex creates the collection index unless it already exists.
func (r *Repo) EnsureIndex(ctx context.Context, collection string) error {
	name := r.indexName(collection)
	exists, err := r.store.IndexExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check index %s: %w", name, err)
	}
	if exists {
		return nil
	}
	if err := r.store.CreateIndex(ctx, r.indexDefinition(collection)); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return fmt.Errorf("create index %s: %w", name, err)
	}
	return nil
}

func (r *Repo) indexDefinition(collection string) *db.IndexDefinition {
	return &db.IndexDefinition{
		Name:        r.indexName(collection),
		StorageType: db.StorageHash,
		Prefixes:    []string{r.keyPrefix(collection)},
		Fields: []db.IndexField{
			{Name: chunk.FieldKind, Type: db.IndexFieldTag},
			{Name: chunk.FieldEntityID, Type: db.IndexFieldTag},
			{Name: chunk.FieldKeywords, Type: db.IndexFieldTag, TagSeparator: chunk.KeywordSeparator},
			{Name: chunk.FieldSequence, Type: db.IndexFieldNumeric},
			{Name: chunk.FieldCreatedAt, Type: db.IndexFieldNumeric},
			{
				Name:              FieldVector,
				Type:              db.IndexFieldVector,
				VectorAlgo:        db.VectorHNSW,
				VectorDim:         r.dim,
				VectorDistance:    db.DistanceCosine,
				VectorM:           r.hnswM,
				VectorEFConstruct: r.efConstruct,
			},
		},
	}
}

// Upsert writes one chunk.
func (r *Repo) Upsert(ctx context.Context, collection, id string, vec []float32, p chunk.Payload) error {
	return r.UpsertMany(ctx, collection, []chunk.Record{{ID: id, Vector: vec, Payload: p}})
}

// UpsertMany writes chunks in one pipeline. Every payload is validated first.
func (r *Repo) UpsertMany(ctx context.Context, collection string, recs []chunk.Record) error {
	if len(recs) == 0 {
		return nil
	}
	items := make([]db.HashSetItem, 0, len(recs))
	for _, rec := range recs {
		if err := rec.Payload.Validate(); err != nil {
			return fmt.Errorf("chunk %s: %w", rec.ID, err)
		}
		if len(rec.Vector) != r.dim {
			return fmt.Errorf("chunk %s: got %d, want %d: %w",
				rec.ID, len(rec.Vector), r.dim, domain.ErrVectorDimMismatch)
		}
		fields := rec.Payload.Fields()
		fields[FieldVector] = db.EncodeVector(rec.Vector)
		items = append(items, db.HashSetItem{Key: r.key(collection, rec.ID), Fields: fields})
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("upsert %d chunks: %w", len(items), err)
	}
	return nil
}

// Search returns the nearest chunks with their cosine distance. Hits whose
// similarity (1 - distance) is below threshold are dropped.
func (r *Repo) Search(
	ctx context.Context, collection string, vec []float32, filter chunk.Filter, limit int, threshold float64,
) ([]chunk.Hit, error) {
	if len(vec) != r.dim {
		return nil, fmt.Errorf("query vector: got %d, want %d: %w", len(vec), r.dim, domain.ErrVectorDimMismatch)
	}
	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName(collection),
		Filters:      tagFilters(filter),
		Vector:       vec,
		K:            limit,
		ReturnFields: payloadFields(),
	})
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}

	hits := r.decode(ctx, res)
	if threshold <= 0 {
		return hits, nil
	}
	kept := hits[:0]
	for _, h := range hits {
		if 1-h.Distance >= threshold {
			kept = append(kept, h)
		}
	}
	return kept, nil
}

// KeywordSearch returns chunks tagged with any of keywords.
func (r *Repo) KeywordSearch(
	ctx context.Context, collection string, keywords []string, filter chunk.Filter, limit int,
) ([]chunk.Hit, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	filters := append(tagFilters(filter), db.TagFilter{Field: chunk.FieldKeywords, Values: keywords})
	res, err := r.store.SearchTags(ctx, &db.TagQuery{
		IndexName:    r.indexName(collection),
		Filters:      filters,
		Limit:        limit,
		ReturnFields: payloadFields(),
	})
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	return r.decode(ctx, res), nil
}

// Delete removes every chunk matching filter and returns how many were removed.
func (r *Repo) Delete(ctx context.Context, collection string, filter chunk.Filter) (int, error) {
	filters := tagFilters(filter)
	if len(filters) == 0 {
		return 0, errors.New("delete requires a filter")
	}
	res, err := r.store.SearchTags(ctx, &db.TagQuery{
		IndexName:    r.indexName(collection),
		Filters:      filters,
		Limit:        maxDeleteBatch,
		ReturnFields: []string{chunk.FieldEntityID},
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("find chunks: %w", err)
	}
	if len(res.Entries) == 0 {
		return 0, nil
	}
	keys := make([]string, len(res.Entries))
	for i, e := range res.Entries {
		keys[i] = e.Key
	}
	if err := r.store.Del(ctx, keys...); err != nil {
		return 0, fmt.Errorf("delete %d chunks: %w", len(keys), err)
	}
	return len(keys), nil
}

func (r *Repo) decode(ctx context.Context, res *db.SearchResult) []chunk.Hit {
	if res == nil {
		return nil
	}
	hits := make([]chunk.Hit, 0, len(res.Entries))
	for _, e := range res.Entries {
		p, err := chunk.FromFields(e.Fields)
		if err != nil {
			logger.FromContext(ctx).Warn("Skipping malformed chunk", zap.String("key", e.Key), zap.Error(err))
			continue
		}
		hits = append(hits, chunk.Hit{Key: e.Key, Distance: e.Score, Payload: p})
	}
	return hits
}

func tagFilters(f chunk.Filter) []db.TagFilter {
	var out []db.TagFilter
	if f.EntityID != "" {
		out = append(out, db.TagFilter{Field: chunk.FieldEntityID, Values: []string{f.EntityID}})
	}
	if f.ExcludeEntityID != "" {
		out = append(out, db.TagFilter{Field: chunk.FieldEntityID, Values: []string{f.ExcludeEntityID}, Negate: true})
	}
	return out
}

func payloadFields() []string {
	return []string{
		chunk.FieldKind, chunk.FieldEntityID, chunk.FieldChunkIndex, chunk.FieldKeywords,
		chunk.FieldText, chunk.FieldSequence, chunk.FieldCreatedAt,
	}
}

func (r *Repo) indexName(collection string) string {
	return r.prefix + collection + ":idx"
}

func (r *Repo) keyPrefix(collection string) string {
	return r.prefix + collection + ":"
}

func (r *Repo) key(collection, id string) string {
	return r.keyPrefix(collection) + id
}
