package processors

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/kailas-cloud/supportgraph/internal/domain"
	"github.com/kailas-cloud/supportgraph/internal/domain/chunk"
)

func TestEmbed(t *testing.T) {
	f := newFixture(t)
	jc := newJC()
	e := testEntity("e1", 7)
	if _, err := run(t, f.deps.summarize(), e, jc); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, f.deps.embed(), e, jc)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	emb := out.(Embedded)

	recs := f.chk.records["e1"]
	if len(recs) != emb.Chunks || len(recs) < 2 {
		t.Fatalf("expected summary and transcript chunks, got %d (output %d)", len(recs), emb.Chunks)
	}
	for i, r := range recs {
		if r.ID != chunk.ID("e1", i) || r.Payload.ChunkIndex != i {
			t.Errorf("chunk %d: id %q index %d", i, r.ID, r.Payload.ChunkIndex)
		}
		if err := r.Payload.Validate(); err != nil {
			t.Errorf("chunk %d: %v", i, err)
		}
		if r.Payload.Sequence != 7 || r.Payload.CreatedAt != e.CreatedAt.UnixMilli() {
			t.Errorf("chunk %d: ordering fields not copied: %+v", i, r.Payload)
		}
		if r.Vector[1] != 1 {
			t.Errorf("chunk %d must be embedded as a document", i)
		}
	}
	if !slices.Equal(recs[0].Payload.Keywords, []string{"sso", "login loop"}) {
		t.Errorf("summary chunk keywords = %v", recs[0].Payload.Keywords)
	}
	if !strings.HasPrefix(recs[0].Payload.Text, "Login fails") {
		t.Errorf("first chunk must be the summary, got %q", recs[0].Payload.Text)
	}

	if !slices.Equal(f.chk.ops, []string{"delete:" + chunk.Collection, "upsert:" + chunk.Collection}) {
		t.Errorf("stale chunks must be deleted before upsert, ops %v", f.chk.ops)
	}
	if len(emb.Vector) != 2 || emb.Vector[1] != 2 {
		t.Errorf("output vector must be query-embedded, got %v", emb.Vector)
	}
	if !slices.Contains(f.emb.tasks, domain.TaskQuery) || !slices.Contains(f.emb.tasks, domain.TaskDocument) {
		t.Errorf("expected document and query embeddings, got %v", f.emb.tasks)
	}
}

func TestEmbed_MissingUpstream(t *testing.T) {
	f := newFixture(t)
	_, err := f.deps.embed().Hash(testEntity("e1", 1), newJC())
	if !errors.Is(err, domain.ErrMissingUpstream) {
		t.Fatalf("expected ErrMissingUpstream, got %v", err)
	}
}

func TestEmbed_ProviderError(t *testing.T) {
	f := newFixture(t)
	jc := newJC()
	e := testEntity("e1", 1)
	if _, err := run(t, f.deps.summarize(), e, jc); err != nil {
		t.Fatal(err)
	}
	f.emb.err = domain.ErrProviderUnavailable

	if _, err := run(t, f.deps.embed(), e, jc); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if len(f.chk.ops) != 0 {
		t.Errorf("store must not be touched when embedding fails, ops %v", f.chk.ops)
	}
}

func TestBuildChunks(t *testing.T) {
	s := Summary{Title: "Refund", Problem: "double charge", Keywords: []string{"refund", "invoice"}}
	transcript := "customer: I need a refund\nagent: sending the invoice now\n" + strings.Repeat("x", 25)

	got := buildChunks(s, transcript, 30)
	if len(got) != 4 {
		t.Fatalf("expected 4 chunks, got %d: %+v", len(got), got)
	}
	if !slices.Equal(got[0].Keywords, []string{"refund", "invoice"}) {
		t.Errorf("summary chunk keywords = %v", got[0].Keywords)
	}
	if !slices.Equal(got[1].Keywords, []string{"refund"}) {
		t.Errorf("chunk 1 keywords = %v", got[1].Keywords)
	}
	if !slices.Equal(got[2].Keywords, []string{"invoice"}) {
		t.Errorf("chunk 2 keywords = %v", got[2].Keywords)
	}
	if got[3].Keywords != nil {
		t.Errorf("chunk 3 keywords = %v", got[3].Keywords)
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name string
		text string
		size int
		want []string
	}{
		{"packs short lines", "a\nb\nc", 3, []string{"a\nb", "c"}},
		{"splits long line", "abcdefg", 3, []string{"abc", "def", "g"}},
		{"drops blanks", "\n\n  \n", 5, nil},
		{"runes not bytes", "ééé", 2, []string{"éé", "é"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitLines(tt.text, tt.size); !slices.Equal(got, tt.want) {
				t.Errorf("splitLines = %q, want %q", got, tt.want)
			}
		})
	}
}
