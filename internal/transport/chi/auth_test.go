package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	logpkg "github.com/kailas-cloud/supportgraph/internal/logger"
)

const jobPath = "/jobs/0b8f6c1e-3f0a-4a53-9c55-8f8f2a6f2c11"

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestBearerAuth(t *testing.T) {
	tests := []struct {
		name   string
		keys   []string
		path   string
		header string
		want   int
	}{
		{"no keys disables auth", nil, jobPath, "", http.StatusOK},
		{"blank keys disable auth", []string{"", ""}, jobPath, "", http.StatusOK},
		{"missing header", []string{"secret"}, jobPath, "", http.StatusUnauthorized},
		{"basic scheme", []string{"secret"}, jobPath, "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"bearer without token", []string{"secret"}, jobPath, "Bearer ", http.StatusUnauthorized},
		{"wrong key", []string{"secret"}, jobPath, "Bearer wrong-key", http.StatusUnauthorized},
		{"valid key", []string{"secret"}, jobPath, "Bearer secret", http.StatusOK},
		{"scheme is case-insensitive", []string{"secret"}, jobPath, "bearer secret", http.StatusOK},
		{"second key", []string{"key1", "key2"}, jobPath, "Bearer key2", http.StatusOK},
		{"health exempt", []string{"secret"}, "/health", "", http.StatusOK},
		{"metrics exempt", []string{"secret"}, "/metrics", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := BearerAuthMiddleware(tt.keys)(okHandler())
			req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Fatalf("status: got %d, want %d", rr.Code, tt.want)
			}
			if tt.want != http.StatusUnauthorized {
				return
			}
			if rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("expected WWW-Authenticate challenge")
			}
			var errResp ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if errResp.Code != CodeUnauthorized {
				t.Errorf("error code: got %s, want %s", errResp.Code, CodeUnauthorized)
			}
		})
	}
}

func TestBearerAuth_LogsKeyFingerprint(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := BearerAuthMiddleware([]string{"secret"})(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		logpkg.FromContext(r.Context()).Info("handled")
	}))

	req := httptest.NewRequest(http.MethodGet, jobPath, http.NoBody)
	req = req.WithContext(logpkg.ContextWithLogger(context.Background(), zap.New(core)))
	req.Header.Set("Authorization", "Bearer secret")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fp, _ := entries[0].ContextMap()["api_key"].(string)
	if len(fp) != 8 || fp == "secret" {
		t.Errorf("expected 8-char key fingerprint, got %q", fp)
	}
}
