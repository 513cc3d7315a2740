package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/supportgraph/internal/domain"
	domidem "github.com/kailas-cloud/supportgraph/internal/domain/idempotency"
	"github.com/kailas-cloud/supportgraph/internal/metrics"
)

// Service decides whether a processor input was already handled.
// Lookup failures degrade to "not seen" so work is repeated rather than lost.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// New creates an idempotency service.
func New(repo Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger}
}

// Check reports whether key was stored with exactly hash.
func (s *Service) Check(ctx context.Context, key, hash string) bool {
	rec, err := s.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.IdempotencyChecksTotal.WithLabelValues("miss").Inc()
			return false
		}
		metrics.IdempotencyChecksTotal.WithLabelValues("error").Inc()
		s.logger.Warn("Idempotency lookup failed", zap.String("key", key), zap.Error(err))
		return false
	}
	hit := rec.Hash == hash
	s.count(hit)
	return hit
}

// Store records hash for key.
func (s *Service) Store(ctx context.Context, key, hash string) error {
	return s.BatchStore(ctx, []domidem.Entry{{Key: key, Hash: hash}})
}

// BatchCheck checks all entries in one round trip. Every key is present in the result.
func (s *Service) BatchCheck(ctx context.Context, entries []domidem.Entry) map[string]bool {
	out := make(map[string]bool, len(entries))
	if len(entries) == 0 {
		return out
	}
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
		out[e.Key] = false
	}

	recs, err := s.repo.MGet(ctx, keys)
	if err != nil {
		metrics.IdempotencyChecksTotal.WithLabelValues("error").Add(float64(len(entries)))
		s.logger.Warn("Idempotency batch lookup failed", zap.Int("keys", len(keys)), zap.Error(err))
		return out
	}
	for _, e := range entries {
		rec, ok := recs[e.Key]
		hit := ok && rec.Hash == e.Hash
		out[e.Key] = hit
		s.count(hit)
	}
	return out
}

// BatchExists reports which keys have any stored record, whatever its hash.
func (s *Service) BatchExists(ctx context.Context, keys []string) map[string]bool {
	out := make(map[string]bool, len(keys))
	if len(keys) == 0 {
		return out
	}
	recs, err := s.repo.MGet(ctx, keys)
	if err != nil {
		s.logger.Warn("Idempotency existence lookup failed", zap.Int("keys", len(keys)), zap.Error(err))
		return out
	}
	for _, k := range keys {
		_, ok := recs[k]
		out[k] = ok
	}
	return out
}

// BatchStore writes all entries in one round trip.
func (s *Service) BatchStore(ctx context.Context, entries []domidem.Entry) error {
	if err := s.repo.SetMulti(ctx, entries); err != nil {
		return fmt.Errorf("store idempotency records: %w", err)
	}
	return nil
}

// Invalidate forgets key so the next run re-executes.
func (s *Service) Invalidate(ctx context.Context, key string) error {
	if err := s.repo.Delete(ctx, key); err != nil {
		return fmt.Errorf("invalidate %s: %w", key, err)
	}
	return nil
}

func (s *Service) count(hit bool) {
	if hit {
		metrics.IdempotencyChecksTotal.WithLabelValues("hit").Inc()
		return
	}
	metrics.IdempotencyChecksTotal.WithLabelValues("miss").Inc()
}

// ContentHash digests parts as one JSON array. Map keys are sorted by
// encoding/json; callers sort slices whose order carries no meaning.
func ContentHash(parts ...any) (string, error) {
	data, err := json.Marshal(parts)
	if err != nil {
		return "", fmt.Errorf("content hash: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
