package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/kailas-cloud/supportgraph/internal/domain"
	"github.com/kailas-cloud/supportgraph/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	os.Exit(m.Run())
}

type embeddingRow struct {
	Index  int
	Vector []float32
}

// embeddingsServer answers /embeddings with rows and records the decoded request.
func embeddingsServer(t *testing.T, status int, rows []embeddingRow, tokens int, sent *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", got)
		}
		raw, _ := io.ReadAll(r.Body)
		if sent != nil {
			if err := json.Unmarshal(raw, sent); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "embedding refused"}})
			return
		}
		data := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			data = append(data, map[string]any{"object": "embedding", "index": row.Index, "embedding": row.Vector})
		}
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "test-embed",
			"data":   data,
			"usage":  map[string]any{"prompt_tokens": tokens, "total_tokens": tokens},
		})
	}))
}

func testEmbedder(baseURL string) *Embedder {
	return NewEmbedder(&Config{
		APIKey:     "test-key",
		BaseURL:    baseURL,
		Model:      "test-embed",
		Dimensions: 3,
		User:       "supportgraph",
		Provider:   "test",
	})
}

func TestEmbedder_EmbedSendsRequestShape(t *testing.T) {
	var sent map[string]any
	server := embeddingsServer(t, http.StatusOK, []embeddingRow{{0, []float32{0.5, 0.25, 0.125}}}, 7, &sent)
	defer server.Close()

	res, err := testEmbedder(server.URL).Embed(context.Background(), "SSO loops back to login")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(res.Embedding) != 3 || res.Embedding[2] != 0.125 {
		t.Errorf("embedding: got %v", res.Embedding)
	}
	if res.PromptTokens != 7 || res.TotalTokens != 7 {
		t.Errorf("usage: got %d/%d", res.PromptTokens, res.TotalTokens)
	}

	if sent["model"] != "test-embed" || sent["user"] != "supportgraph" || sent["encoding_format"] != "float" {
		t.Errorf("request fields: %v", sent)
	}
	if sent["dimensions"] != float64(3) {
		t.Errorf("dimensions must be forwarded, got %v", sent["dimensions"])
	}
	if in, _ := sent["input"].([]any); len(in) != 1 || in[0] != "SSO loops back to login" {
		t.Errorf("input: got %v", sent["input"])
	}
}

func TestEmbedder_BatchEmbed(t *testing.T) {
	tests := []struct {
		name    string
		texts   []string
		rows    []embeddingRow
		want    [][]float32
		wantErr bool
	}{
		{
			name:  "index decides placement",
			texts: []string{"first", "second"},
			rows:  []embeddingRow{{1, []float32{2}}, {0, []float32{1}}},
			want:  [][]float32{{1}, {2}},
		},
		{
			name:    "fewer rows than inputs",
			texts:   []string{"a", "b"},
			rows:    []embeddingRow{{0, []float32{1}}},
			wantErr: true,
		},
		{
			name:    "repeated index",
			texts:   []string{"a", "b"},
			rows:    []embeddingRow{{0, []float32{1}}, {0, []float32{2}}},
			wantErr: true,
		},
		{
			name:    "index out of range",
			texts:   []string{"a"},
			rows:    []embeddingRow{{4, []float32{1}}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := embeddingsServer(t, http.StatusOK, tt.rows, 11, nil)
			defer server.Close()

			res, err := testEmbedder(server.URL).BatchEmbed(context.Background(), tt.texts)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrEmbeddingProviderError) {
					t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("BatchEmbed: %v", err)
			}
			if len(res.Embeddings) != len(tt.want) {
				t.Fatalf("got %d embeddings, want %d", len(res.Embeddings), len(tt.want))
			}
			for i := range tt.want {
				if res.Embeddings[i][0] != tt.want[i][0] {
					t.Errorf("embedding %d: got %v, want %v", i, res.Embeddings[i], tt.want[i])
				}
			}
			if res.TotalTokens != 11 {
				t.Errorf("total tokens: got %d", res.TotalTokens)
			}
		})
	}
}

func TestEmbedder_BatchEmbedEmptyMakesNoCall(t *testing.T) {
	res, err := testEmbedder("http://127.0.0.1:1").BatchEmbed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Embeddings != nil {
		t.Errorf("expected no embeddings, got %v", res.Embeddings)
	}
}

func TestEmbedder_ProviderErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusBadGateway, domain.ErrProviderUnavailable},
		{http.StatusRequestTimeout, domain.ErrProviderUnavailable},
		{http.StatusBadRequest, domain.ErrEmbeddingProviderError},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := embeddingsServer(t, tt.status, nil, 0, nil)
			defer server.Close()

			_, err := testEmbedder(server.URL).Embed(context.Background(), "hello")
			if !errors.Is(err, tt.want) {
				t.Fatalf("status %d: expected %v, got %v", tt.status, tt.want, err)
			}
		})
	}
}

func TestEmbedder_RateLimiterHonoursContext(t *testing.T) {
	emb := NewEmbedder(&Config{BaseURL: "http://127.0.0.1:1", Model: "m", RequestsPerSecond: 0.001})
	emb.limiter.Allow()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := emb.Embed(ctx, "hello"); err == nil {
		t.Fatal("expected limiter error on a cancelled context")
	}
}
