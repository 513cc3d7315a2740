package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/supportgraph/internal/domain"
	"github.com/kailas-cloud/supportgraph/internal/domain/chunk"
	"github.com/kailas-cloud/supportgraph/internal/domain/entity"
	"github.com/kailas-cloud/supportgraph/internal/domain/job"
	domsim "github.com/kailas-cloud/supportgraph/internal/domain/similarity"
	domsug "github.com/kailas-cloud/supportgraph/internal/domain/suggestion"
	"github.com/kailas-cloud/supportgraph/internal/retry"
	"github.com/kailas-cloud/supportgraph/internal/usecase/pipeline"
	"github.com/kailas-cloud/supportgraph/internal/usecase/similarity"
)

// fakeGenerator answers by schema name with canned JSON. errs are returned
// first, one per call, before the answer.
type fakeGenerator struct {
	mu      sync.Mutex
	answers map[string]string
	errs    map[string][]error
	prompts []domain.Prompt
}

func (g *fakeGenerator) Generate(_ context.Context, p domain.Prompt, out any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, p)
	if errs := g.errs[p.Schema]; len(errs) > 0 {
		g.errs[p.Schema] = errs[1:]
		return errs[0]
	}
	answer, ok := g.answers[p.Schema]
	if !ok {
		return fmt.Errorf("no answer for %s", p.Schema)
	}
	if err := json.Unmarshal([]byte(answer), out); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrMalformedOutput)
	}
	return nil
}

func (g *fakeGenerator) calls(schema string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, p := range g.prompts {
		if p.Schema == schema {
			n++
		}
	}
	return n
}

// fakeEmbedder returns [len(text), task marker] for every text.
type fakeEmbedder struct {
	mu    sync.Mutex
	tasks []domain.TaskType
	err   error
}

func vecFor(text string, task domain.TaskType) []float32 {
	marker := float32(1)
	if task == domain.TaskQuery {
		marker = 2
	}
	return []float32{float32(len(text)), marker}
}

func (e *fakeEmbedder) EmbedTask(_ context.Context, text string, task domain.TaskType) (domain.EmbeddingResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, task)
	if e.err != nil {
		return domain.EmbeddingResult{}, e.err
	}
	return domain.EmbeddingResult{Embedding: vecFor(text, task), TotalTokens: 1}, nil
}

func (e *fakeEmbedder) BatchEmbedTask(_ context.Context, texts []string, task domain.TaskType) (domain.BatchEmbeddingResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, task)
	if e.err != nil {
		return domain.BatchEmbeddingResult{}, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = vecFor(t, task)
	}
	return domain.BatchEmbeddingResult{Embeddings: out, TotalTokens: len(texts)}, nil
}

type fakeChunks struct {
	mu      sync.Mutex
	ops     []string
	records map[string][]chunk.Record // entity id -> chunks
}

func newFakeChunks() *fakeChunks { return &fakeChunks{records: map[string][]chunk.Record{}} }

func (c *fakeChunks) UpsertMany(_ context.Context, collection string, recs []chunk.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = append(c.ops, "upsert:"+collection)
	for _, r := range recs {
		c.records[r.Payload.EntityID] = append(c.records[r.Payload.EntityID], r)
	}
	return nil
}

func (c *fakeChunks) Delete(_ context.Context, collection string, f chunk.Filter) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = append(c.ops, "delete:"+collection)
	n := len(c.records[f.EntityID])
	delete(c.records, f.EntityID)
	return n, nil
}

type upsertCall struct {
	Type      domsug.Type
	SourceID  string
	RelatedID string
	Result    map[string]any
}

type deactivateCall struct {
	Type     domsug.Type
	SourceID string
	Keep     string
}

type fakeSuggestions struct {
	mu          sync.Mutex
	upserts     []upsertCall
	deactivates []deactivateCall
	err         error
}

func (s *fakeSuggestions) Upsert(_ context.Context, typ domsug.Type, sourceID, relatedID string, result map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.upserts = append(s.upserts, upsertCall{typ, sourceID, relatedID, result})
	return nil
}

func (s *fakeSuggestions) Deactivate(_ context.Context, typ domsug.Type, sourceID, keep string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deactivates = append(s.deactivates, deactivateCall{typ, sourceID, keep})
	return nil
}

func (s *fakeSuggestions) byType(typ domsug.Type) []upsertCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []upsertCall
	for _, u := range s.upserts {
		if u.Type == typ {
			out = append(out, u)
		}
	}
	return out
}

type fakeSimilarity struct {
	mu      sync.Mutex
	cands   []domsim.Candidate
	err     error
	queries []similarity.Query
	opts    []domsim.Overrides
}

func (s *fakeSimilarity) FindSimilar(_ context.Context, q similarity.Query, o domsim.Overrides) ([]domsim.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	s.opts = append(s.opts, o)
	return s.cands, s.err
}

type fixture struct {
	gen  *fakeGenerator
	emb  *fakeEmbedder
	chk  *fakeChunks
	sug  *fakeSuggestions
	sim  *fakeSimilarity
	deps Deps
}

const (
	summaryJSON   = `{"title":"Login fails","problem":"SSO loop after update","resolution":"","keywords":["SSO","Login, Loop","sso"]}`
	labelsJSON    = `{"labels":["BUG","unknown","auth"],"reason":"auth bug"}`
	statusJSON    = `{"status":"Pending","reason":"waiting on customer"}`
	duplicateJSON = `{"duplicate":true,"confidence":0.9,"reason":"same SSO loop"}`
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		gen: &fakeGenerator{
			answers: map[string]string{
				"conversation_summary": summaryJSON,
				"label_choice":         labelsJSON,
				"status_choice":        statusJSON,
				"duplicate_verdict":    duplicateJSON,
			},
			errs: map[string][]error{},
		},
		emb: &fakeEmbedder{},
		chk: newFakeChunks(),
		sug: &fakeSuggestions{},
		sim: &fakeSimilarity{},
	}
	policy := retry.DefaultPolicy()
	policy.BaseDelay = time.Millisecond
	policy.MaxDelay = time.Millisecond
	f.deps = Deps{
		Generator:   f.gen,
		Embedder:    f.emb,
		Chunks:      f.chk,
		Suggestions: f.sug,
		Similarity:  f.sim,
		Retry:       policy,
		Config: Config{
			Model:     "test-llm",
			ChunkSize: 40,
			Labels:    []string{"auth", "billing", "bug"},
			Statuses:  []string{"open", "pending", "resolved"},
		},
	}
	return f
}

func testEntity(id string, seq int64) *entity.Entity {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &entity.Entity{
		ID:        id,
		Title:     "Cannot log in",
		Status:    "open",
		Sequence:  seq,
		CreatedAt: base.Add(time.Duration(seq) * time.Hour),
		Messages: []entity.Message{
			{ID: "m1", Author: "customer", Body: "SSO keeps looping back to the login page", CreatedAt: base},
			{ID: "m2", Author: "agent", Body: "Which browser are you using?", CreatedAt: base.Add(time.Minute)},
		},
	}
}

func newJC() *pipeline.JobContext {
	return pipeline.NewJobContext(uuid.New(), job.Options{}.WithDefaults(job.Options{}))
}

// run hashes then executes def, the way the orchestrator does.
func run(t *testing.T, def pipeline.Definition, e *entity.Entity, jc *pipeline.JobContext) (any, error) {
	t.Helper()
	if _, err := def.Hash(e, jc); err != nil {
		return nil, err
	}
	out, err := def.Execute(context.Background(), e, jc)
	if err == nil {
		jc.SetOutput(def.Name, e.ID, out)
	}
	return out, err
}
