package idempotency

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/supportgraph/internal/domain"
	domidem "github.com/kailas-cloud/supportgraph/internal/domain/idempotency"
)

type mockRepo struct {
	records map[string]domidem.Record
	getErr  error
	setErr  error
	delErr  error
	deleted []string
}

func newMockRepo() *mockRepo { return &mockRepo{records: map[string]domidem.Record{}} }

func (m *mockRepo) Get(_ context.Context, key string) (domidem.Record, error) {
	if m.getErr != nil {
		return domidem.Record{}, m.getErr
	}
	r, ok := m.records[key]
	if !ok {
		return domidem.Record{}, domain.ErrNotFound
	}
	return r, nil
}

func (m *mockRepo) MGet(_ context.Context, keys []string) (map[string]domidem.Record, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	out := map[string]domidem.Record{}
	for _, k := range keys {
		if r, ok := m.records[k]; ok {
			out[k] = r
		}
	}
	return out, nil
}

func (m *mockRepo) SetMulti(_ context.Context, entries []domidem.Entry) error {
	if m.setErr != nil {
		return m.setErr
	}
	for _, e := range entries {
		m.records[e.Key] = domidem.Record{Hash: e.Hash}
	}
	return nil
}

func (m *mockRepo) Delete(_ context.Context, keys ...string) error {
	m.deleted = append(m.deleted, keys...)
	for _, k := range keys {
		delete(m.records, k)
	}
	return m.delErr
}

func TestService_CheckAndStore(t *testing.T) {
	s := New(newMockRepo(), nil)
	ctx := context.Background()

	if s.Check(ctx, "summarize:1", "h1") {
		t.Error("unseen key must not skip")
	}
	if err := s.Store(ctx, "summarize:1", "h1"); err != nil {
		t.Fatal(err)
	}
	if !s.Check(ctx, "summarize:1", "h1") {
		t.Error("same hash must skip")
	}
	if s.Check(ctx, "summarize:1", "h2") {
		t.Error("changed hash must not skip")
	}
}

func TestService_BatchCheck(t *testing.T) {
	repo := newMockRepo()
	repo.records["a"] = domidem.Record{Hash: "1"}
	repo.records["b"] = domidem.Record{Hash: "old"}
	s := New(repo, nil)

	got := s.BatchCheck(context.Background(), []domidem.Entry{
		{Key: "a", Hash: "1"},
		{Key: "b", Hash: "new"},
		{Key: "c", Hash: "x"},
	})
	if !got["a"] || got["b"] || got["c"] {
		t.Errorf("BatchCheck = %v", got)
	}
	if _, ok := got["c"]; !ok {
		t.Error("every key must be present in the result")
	}
}

func TestService_BatchExists(t *testing.T) {
	repo := newMockRepo()
	repo.records["embed:1"] = domidem.Record{Hash: "stale"}
	s := New(repo, nil)

	got := s.BatchExists(context.Background(), []string{"embed:1", "embed:2"})
	if !got["embed:1"] || got["embed:2"] {
		t.Errorf("BatchExists = %v", got)
	}

	repo.getErr = errors.New("connection refused")
	if s.BatchExists(context.Background(), []string{"embed:1"})["embed:1"] {
		t.Error("BatchExists must degrade to false")
	}
}

func TestService_LookupFailureDoesNotSkip(t *testing.T) {
	repo := newMockRepo()
	repo.records["a"] = domidem.Record{Hash: "1"}
	repo.getErr = errors.New("connection refused")
	s := New(repo, nil)

	if s.Check(context.Background(), "a", "1") {
		t.Error("Check must degrade to false")
	}
	got := s.BatchCheck(context.Background(), []domidem.Entry{{Key: "a", Hash: "1"}})
	if got["a"] {
		t.Error("BatchCheck must degrade to false")
	}
}

func TestService_StoreAndInvalidateErrors(t *testing.T) {
	repo := newMockRepo()
	repo.setErr = errors.New("readonly")
	repo.delErr = errors.New("readonly")
	s := New(repo, nil)

	if err := s.BatchStore(context.Background(), []domidem.Entry{{Key: "a", Hash: "1"}}); err == nil {
		t.Error("expected store error")
	}
	if err := s.Invalidate(context.Background(), "a"); err == nil {
		t.Error("expected invalidate error")
	}
}

func TestService_Invalidate(t *testing.T) {
	repo := newMockRepo()
	s := New(repo, nil)
	_ = s.Store(context.Background(), "a", "1")
	if err := s.Invalidate(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if s.Check(context.Background(), "a", "1") {
		t.Error("invalidated key must not skip")
	}
}

func TestContentHash(t *testing.T) {
	h1, err := ContentHash("title", map[string]int{"b": 2, "a": 1}, []string{"x"})
	if err != nil {
		t.Fatal(err)
	}
	h2, _ := ContentHash("title", map[string]int{"a": 1, "b": 2}, []string{"x"})
	if h1 != h2 {
		t.Error("map key order must not change the hash")
	}
	h3, _ := ContentHash("title2", map[string]int{"a": 1, "b": 2}, []string{"x"})
	if h1 == h3 {
		t.Error("different content must change the hash")
	}
	if len(h1) != 64 {
		t.Errorf("expected hex sha256, got %q", h1)
	}
	if _, err := ContentHash(func() {}); err == nil {
		t.Error("expected error for unencodable value")
	}
}
