package similarity

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/supportgraph/internal/domain"
	"github.com/kailas-cloud/supportgraph/internal/domain/chunk"
	"github.com/kailas-cloud/supportgraph/internal/domain/entity"
	domsim "github.com/kailas-cloud/supportgraph/internal/domain/similarity"
	"github.com/kailas-cloud/supportgraph/internal/logger"
	"github.com/kailas-cloud/supportgraph/internal/metrics"
)

// chunkFanout widens chunk searches so that entities with several matching
// chunks do not crowd out the requested number of entities.
const chunkFanout = 4

// Query describes the entity to find neighbours for.
type Query struct {
	EntityID string
	Vector   []float32
	Text     string
	Keywords []string
}

// Service ranks entities by fused vector and keyword similarity.
type Service struct {
	store      VectorStore
	embed      QueryEmbedder
	collection string
	defaults   domsim.Options
}

// New creates a similarity service over the entity chunk collection.
// Zero defaults mean the built-in tuning.
func New(store VectorStore, embed QueryEmbedder, defaults domsim.Options) *Service {
	if defaults == (domsim.Options{}) {
		defaults = domsim.DefaultOptions()
	}
	return &Service{
		store:      store,
		embed:      embed,
		collection: chunk.Collection,
		defaults:   defaults,
	}
}

// FindSimilar returns ranked candidates for q, with overrides resolved over the
// service defaults. An empty result is not an error.
func (s *Service) FindSimilar(ctx context.Context, q Query, o domsim.Overrides) ([]domsim.Candidate, error) {
	opts := o.Apply(s.defaults)

	vec := q.Vector
	if len(vec) == 0 && q.Text != "" && s.embed != nil {
		res, err := s.embed.EmbedTask(ctx, q.Text, domain.TaskQuery)
		if err != nil {
			return nil, fmt.Errorf("vectorize query: %w", err)
		}
		vec = res.Embedding
	}

	keywords := normalizeKeywords(q.Keywords)
	filter := chunk.Filter{ExcludeEntityID: q.EntityID}
	k := opts.Limit * chunkFanout

	var vecHits, kwHits []chunk.Hit
	g, gctx := errgroup.WithContext(ctx)
	if len(vec) > 0 {
		g.Go(func() error {
			hits, err := s.store.Search(gctx, s.collection, vec, filter, k, opts.ScoreThreshold)
			if err != nil {
				return fmt.Errorf("vector search: %w", err)
			}
			vecHits = hits
			return nil
		})
	}
	if len(keywords) > 0 {
		g.Go(func() error {
			hits, err := s.store.KeywordSearch(gctx, s.collection, keywords, filter, k)
			if err != nil {
				return fmt.Errorf("keyword search: %w", err)
			}
			kwHits = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cands := Score(vecHits, kwHits, keywords, opts)
	ranked := Rank(cands, q.EntityID, opts)
	metrics.SimilarityCandidates.Observe(float64(len(ranked)))
	logger.FromContext(ctx).Debug("similarity ranked",
		zap.String("entity_id", q.EntityID),
		zap.Int("vector_hits", len(vecHits)),
		zap.Int("keyword_hits", len(kwHits)),
		zap.Int("candidates", len(ranked)),
	)
	return ranked, nil
}

type entityAcc struct {
	vecScores []float64
	ratios    []float64
	matched   [][]string
	payload   chunk.Payload
	bestVec   float64
	hasVec    bool
}

// Score groups chunk hits by entity and computes every signal. Candidates are unranked.
func Score(vecHits, kwHits []chunk.Hit, keywords []string, opts domsim.Options) []domsim.Candidate {
	accs := map[string]*entityAcc{}
	var order []string
	get := func(p chunk.Payload) *entityAcc {
		a, ok := accs[p.EntityID]
		if !ok {
			a = &entityAcc{payload: p}
			accs[p.EntityID] = a
			order = append(order, p.EntityID)
		}
		return a
	}

	for _, h := range vecHits {
		a := get(h.Payload)
		score := VectorScore(h.Distance)
		a.vecScores = append(a.vecScores, score)
		if !a.hasVec || score > a.bestVec {
			a.bestVec, a.hasVec, a.payload = score, true, h.Payload
		}
	}

	maxRatio := 0.0
	for _, h := range kwHits {
		ratio, matched := MatchRatio(keywords, h.Payload.Keywords)
		if ratio == 0 {
			continue
		}
		a := get(h.Payload)
		a.ratios = append(a.ratios, ratio)
		a.matched = append(a.matched, matched)
		maxRatio = max(maxRatio, ratio)
	}
	midpoint := AdaptiveMidpoint(maxRatio)

	out := make([]domsim.Candidate, 0, len(order))
	for _, id := range order {
		a := accs[id]
		v := AggregateVector(a.vecScores)
		c := domsim.Candidate{
			EntityID:    id,
			VectorScore: v.Score,
			ChunkCount:  v.Count,
			ChunkScores: v.Scores,
			Payload:     a.payload,
		}
		if len(a.ratios) > 0 {
			kw := AggregateKeyword(a.ratios, a.matched)
			c.MatchRatio = kw.Ratio
			c.MatchedKeywords = kw.Matched
			c.KeywordScore = Sigmoid(kw.Ratio, opts.KeywordSteepness, midpoint)
		}
		c.FinalScore = Fuse(c.VectorScore, c.KeywordScore, opts.VectorWeight, opts.KeywordWeight)
		out = append(out, c)
	}
	return out
}

// SelectOlder returns the best-ranked candidate created strictly before source.
func SelectOlder(cands []domsim.Candidate, source entity.Ref) (domsim.Candidate, bool) {
	for _, c := range cands {
		if c.EntityID == source.ID {
			continue
		}
		if entity.CompareAge(c.Payload.Ref(), source) < 0 {
			return c, true
		}
	}
	return domsim.Candidate{}, false
}

func normalizeKeywords(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, k := range in {
		n := NormalizeKeyword(k)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
