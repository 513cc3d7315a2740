package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/supportgraph/internal/domain"
	"github.com/kailas-cloud/supportgraph/internal/metrics"
)

type verdict struct {
	Duplicate bool   `json:"duplicate"`
	Reason    string `json:"reason"`
}

func chatServer(t *testing.T, status int, content string, inspect func(body map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if inspect != nil {
			inspect(body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "boom"}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":    "cmpl-1",
			"model": "test-llm",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17},
		})
	}))
}

func TestGenerator_Generate(t *testing.T) {
	var sent map[string]any
	server := chatServer(t, http.StatusOK, `{"duplicate": true, "reason": "same crash"}`, func(b map[string]any) { sent = b })
	defer server.Close()

	g := NewGenerator(&GeneratorConfig{APIKey: "k", BaseURL: server.URL, Model: "test-llm"})
	before := testutil.ToFloat64(metrics.LLMRequestsTotal.WithLabelValues("test-llm", "duplicate_verdict", "success"))

	var out verdict
	err := g.Generate(context.Background(), domain.Prompt{
		Schema: "duplicate_verdict",
		System: "You compare tickets.",
		User:   "A vs B",
	}, &out)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !out.Duplicate || out.Reason != "same crash" {
		t.Errorf("unexpected output %+v", out)
	}

	rf, _ := sent["response_format"].(map[string]any)
	if rf["type"] != "json_schema" {
		t.Errorf("expected json_schema response format, got %v", rf["type"])
	}
	js, _ := rf["json_schema"].(map[string]any)
	if js["name"] != "duplicate_verdict" || js["strict"] != true {
		t.Errorf("unexpected json_schema block %v", js)
	}
	msgs, _ := sent["messages"].([]any)
	if len(msgs) != 2 {
		t.Errorf("expected system and user messages, got %d", len(msgs))
	}

	after := testutil.ToFloat64(metrics.LLMRequestsTotal.WithLabelValues("test-llm", "duplicate_verdict", "success"))
	if after-before != 1 {
		t.Errorf("expected success counter +1, got %v", after-before)
	}
}

func TestGenerator_MalformedOutput(t *testing.T) {
	server := chatServer(t, http.StatusOK, `not json`, nil)
	defer server.Close()

	g := NewGenerator(&GeneratorConfig{APIKey: "k", BaseURL: server.URL, Model: "test-llm"})
	var out verdict
	err := g.Generate(context.Background(), domain.Prompt{Schema: "duplicate_verdict"}, &out)
	if !errors.Is(err, domain.ErrMalformedOutput) {
		t.Fatalf("expected ErrMalformedOutput, got %v", err)
	}
}

func TestGenerator_ProviderErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusServiceUnavailable, domain.ErrProviderUnavailable},
	}
	for _, tt := range tests {
		server := chatServer(t, tt.status, "", nil)
		g := NewGenerator(&GeneratorConfig{APIKey: "k", BaseURL: server.URL, Model: "test-llm"})
		var out verdict
		err := g.Generate(context.Background(), domain.Prompt{Schema: "x"}, &out)
		server.Close()
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: expected %v, got %v", tt.status, tt.want, err)
		}
	}
}

func TestGenerator_RejectsNonStructOutput(t *testing.T) {
	g := NewGenerator(&GeneratorConfig{APIKey: "k", BaseURL: "http://unused", Model: "m"})
	var s string
	if err := g.Generate(context.Background(), domain.Prompt{Schema: "x"}, &s); err == nil {
		t.Fatal("expected error for non-struct output")
	}
	if err := g.Generate(context.Background(), domain.Prompt{Schema: "x"}, verdict{}); err == nil {
		t.Fatal("expected error for non-pointer output")
	}
}

func TestGenerator_SchemaCached(t *testing.T) {
	g := NewGenerator(&GeneratorConfig{APIKey: "k", BaseURL: "http://unused", Model: "m"})
	a, err := g.schemaFor(&verdict{})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := g.schemaFor(&verdict{})
	if a != b {
		t.Error("expected cached schema definition")
	}
	if len(a.Required) != 2 {
		t.Errorf("expected both fields required, got %v", a.Required)
	}
}
