package processors

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/kailas-cloud/supportgraph/internal/domain/chunk"
	"github.com/kailas-cloud/supportgraph/internal/domain/entity"
	"github.com/kailas-cloud/supportgraph/internal/usecase/idempotency"
	"github.com/kailas-cloud/supportgraph/internal/usecase/pipeline"
	"github.com/kailas-cloud/supportgraph/internal/usecase/similarity"
)

const maxKeywords = 10

// Summary is the summarize output.
type Summary struct {
	Title      string   `json:"title"`
	Problem    string   `json:"problem"`
	Resolution string   `json:"resolution"`
	Keywords   []string `json:"keywords"`
}

// Text renders the summary for prompts and the summary chunk.
func (s Summary) Text() string {
	var b strings.Builder
	b.WriteString(s.Title)
	if s.Problem != "" {
		b.WriteString("\nProblem: ")
		b.WriteString(s.Problem)
	}
	if s.Resolution != "" {
		b.WriteString("\nResolution: ")
		b.WriteString(s.Resolution)
	}
	return strings.TrimSpace(b.String())
}

func (d Deps) summarize() pipeline.Definition {
	return pipeline.Definition{
		Name: NameSummarize,
		Hash: func(e *entity.Entity, _ *pipeline.JobContext) (string, error) {
			return idempotency.ContentHash(summarizePromptVersion, d.Config.Model, e.Title, e.Transcript())
		},
		Execute: func(ctx context.Context, e *entity.Entity, _ *pipeline.JobContext) (any, error) {
			if strings.TrimSpace(e.Title) == "" && e.Transcript() == "" {
				return nil, fmt.Errorf("entity %s has no content", e.ID)
			}
			var s Summary
			if err := d.generate(ctx, summarizePrompt(e), &s); err != nil {
				return nil, err
			}
			s.Title = strings.TrimSpace(s.Title)
			s.Problem = strings.TrimSpace(s.Problem)
			s.Resolution = strings.TrimSpace(s.Resolution)
			s.Keywords = cleanKeywords(s.Keywords)
			return s, nil
		},
	}
}

// cleanKeywords normalizes, drops separators and duplicates, and caps the list.
func cleanKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, k := range in {
		k = similarity.NormalizeKeyword(strings.Join(strings.Fields(strings.ReplaceAll(k, chunk.KeywordSeparator, " ")), " "))
		if k == "" || slices.Contains(out, k) {
			continue
		}
		out = append(out, k)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}
