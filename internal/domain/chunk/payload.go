// Package chunk defines the payload schema of the entity_chunks vector collection.
package chunk

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/supportgraph/internal/domain"
	"github.com/kailas-cloud/supportgraph/internal/domain/entity"
)

// Collection is the vector collection holding entity chunks.
const Collection = "entity_chunks"

// KindEntityChunk tags payloads written to Collection.
const KindEntityChunk = "entity_chunk"

// Store field names.
const (
	FieldKind       = "kind"
	FieldEntityID   = "entity_id"
	FieldChunkIndex = "chunk_index"
	FieldKeywords   = "keywords"
	FieldText       = "text"
	FieldSequence   = "sequence"
	FieldCreatedAt  = "created_at"
)

// KeywordSeparator joins keywords in the TAG field.
const KeywordSeparator = ","

// Payload is the metadata stored next to a chunk vector.
type Payload struct {
	Kind       string
	EntityID   string
	ChunkIndex int
	Keywords   []string
	Text       string
	Sequence   int64
	CreatedAt  int64 // unix milliseconds
}

// Hit is one search result: the raw store key, cosine distance when the
// search was vector based, and the decoded payload.
type Hit struct {
	Key      string
	Distance float64
	Payload  Payload
}

// Record is one chunk to be written: its store id, vector and payload.
type Record struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Filter narrows a search or delete. Empty fields match everything.
type Filter struct {
	EntityID        string
	ExcludeEntityID string
}

// Ref returns the ordering key of the entity the chunk belongs to.
func (p Payload) Ref() entity.Ref {
	r := entity.Ref{ID: p.EntityID, Sequence: p.Sequence}
	if p.CreatedAt > 0 {
		r.CreatedAt = time.UnixMilli(p.CreatedAt).UTC()
	}
	return r
}

// ID returns the store id of the chunk.
func ID(entityID string, index int) string {
	return entityID + ":" + strconv.Itoa(index)
}

// Validate checks the payload against the collection schema.
func (p Payload) Validate() error {
	if p.Kind != KindEntityChunk {
		return fmt.Errorf("%w: kind %q", domain.ErrInvalidPayload, p.Kind)
	}
	if p.EntityID == "" {
		return fmt.Errorf("%w: empty entity_id", domain.ErrInvalidPayload)
	}
	if p.ChunkIndex < 0 {
		return fmt.Errorf("%w: negative chunk_index", domain.ErrInvalidPayload)
	}
	for _, k := range p.Keywords {
		if k == "" || strings.Contains(k, KeywordSeparator) {
			return fmt.Errorf("%w: keyword %q", domain.ErrInvalidPayload, k)
		}
	}
	return nil
}

// Fields encodes the payload as store fields.
func (p Payload) Fields() map[string]string {
	return map[string]string{
		FieldKind:       p.Kind,
		FieldEntityID:   p.EntityID,
		FieldChunkIndex: strconv.Itoa(p.ChunkIndex),
		FieldKeywords:   strings.Join(p.Keywords, KeywordSeparator),
		FieldText:       p.Text,
		FieldSequence:   strconv.FormatInt(p.Sequence, 10),
		FieldCreatedAt:  strconv.FormatInt(p.CreatedAt, 10),
	}
}

// FromFields decodes and validates store fields.
func FromFields(fields map[string]string) (Payload, error) {
	p := Payload{
		Kind:     fields[FieldKind],
		EntityID: fields[FieldEntityID],
		Text:     fields[FieldText],
	}
	var err error
	if p.ChunkIndex, err = atoiField(fields, FieldChunkIndex); err != nil {
		return Payload{}, err
	}
	seq, err := atoiField(fields, FieldSequence)
	if err != nil {
		return Payload{}, err
	}
	p.Sequence = int64(seq)
	created, err := atoiField(fields, FieldCreatedAt)
	if err != nil {
		return Payload{}, err
	}
	p.CreatedAt = int64(created)
	if kw := fields[FieldKeywords]; kw != "" {
		p.Keywords = strings.Split(kw, KeywordSeparator)
	}
	if err := p.Validate(); err != nil {
		return Payload{}, err
	}
	return p, nil
}

func atoiField(fields map[string]string, name string) (int, error) {
	v, ok := fields[name]
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", domain.ErrInvalidPayload, name, v)
	}
	return n, nil
}
