package domain

import (
	"context"
	"fmt"
	"strings"
)

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes multiple texts in a single API call.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// TaskType tells the provider how the vector will be used.
type TaskType string

const (
	// TaskDocument embeds content that will be stored and searched against.
	TaskDocument TaskType = "document"
	// TaskQuery embeds content used to search.
	TaskQuery TaskType = "query"
)

// EmbeddingResult carries the embedding vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult carries multiple embedding vectors and aggregate token usage.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// BatchFallback calls Embed once per text for providers without a native batch endpoint.
func BatchFallback(ctx context.Context, e Embedder, texts []string) (BatchEmbeddingResult, error) {
	embeddings := make([][]float32, len(texts))
	var totalPrompt, totalTokens int

	for i, text := range texts {
		res, err := e.Embed(ctx, text)
		if err != nil {
			return BatchEmbeddingResult{}, fmt.Errorf("fallback embed [%d]: %w", i, err)
		}
		embeddings[i] = res.Embedding
		totalPrompt += res.PromptTokens
		totalTokens += res.TotalTokens
	}

	return BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: totalPrompt,
		TotalTokens:  totalTokens,
	}, nil
}

// InstructionEmbedder is a domain decorator that prepends instruction text before embedding.
type InstructionEmbedder struct {
	inner       Embedder
	instruction string
}

// NewInstructionEmbedder creates a decorator that prepends instruction text.
func NewInstructionEmbedder(inner Embedder, instruction string) *InstructionEmbedder {
	return &InstructionEmbedder{inner: inner, instruction: instruction}
}

// Embed prepends instruction and delegates to inner embedder.
func (e *InstructionEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	result, err := e.inner.Embed(ctx, e.instruction+text)
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("instruction embed: %w", err)
	}
	return result, nil
}

// BatchEmbed prepends instruction to each text and delegates to inner BatchEmbedder.
func (e *InstructionEmbedder) BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error) {
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = e.instruction + t
	}

	if be, ok := e.inner.(BatchEmbedder); ok {
		res, err := be.BatchEmbed(ctx, prefixed)
		if err != nil {
			return BatchEmbeddingResult{}, fmt.Errorf("instruction batch embed: %w", err)
		}
		return res, nil
	}

	res, err := BatchFallback(ctx, e.inner, prefixed)
	if err != nil {
		return BatchEmbeddingResult{}, fmt.Errorf("instruction batch embed fallback: %w", err)
	}
	return res, nil
}

// TaskEmbedder routes a text to the instruction embedder registered for its task type.
// Empty input yields an empty result without calling the provider.
type TaskEmbedder struct {
	byTask map[TaskType]*InstructionEmbedder
}

// NewTaskEmbedder wires one instruction per task type on top of inner.
func NewTaskEmbedder(inner Embedder, instructions map[TaskType]string) *TaskEmbedder {
	byTask := make(map[TaskType]*InstructionEmbedder, len(instructions))
	for task, instr := range instructions {
		byTask[task] = NewInstructionEmbedder(inner, instr)
	}
	if _, ok := byTask[TaskDocument]; !ok {
		byTask[TaskDocument] = NewInstructionEmbedder(inner, "")
	}
	if _, ok := byTask[TaskQuery]; !ok {
		byTask[TaskQuery] = NewInstructionEmbedder(inner, "")
	}
	return &TaskEmbedder{byTask: byTask}
}

// EmbedTask embeds text for the given task.
func (e *TaskEmbedder) EmbedTask(ctx context.Context, text string, task TaskType) (EmbeddingResult, error) {
	if strings.TrimSpace(text) == "" {
		return EmbeddingResult{}, nil
	}
	emb, err := e.route(task)
	if err != nil {
		return EmbeddingResult{}, err
	}
	return emb.Embed(ctx, text)
}

// BatchEmbedTask embeds texts for the given task. Blank texts keep a nil slot.
func (e *TaskEmbedder) BatchEmbedTask(ctx context.Context, texts []string, task TaskType) (BatchEmbeddingResult, error) {
	emb, err := e.route(task)
	if err != nil {
		return BatchEmbeddingResult{}, err
	}

	idx := make([]int, 0, len(texts))
	nonEmpty := make([]string, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			continue
		}
		idx = append(idx, i)
		nonEmpty = append(nonEmpty, t)
	}
	out := BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	if len(nonEmpty) == 0 {
		return out, nil
	}

	res, err := emb.BatchEmbed(ctx, nonEmpty)
	if err != nil {
		return BatchEmbeddingResult{}, err
	}
	if len(res.Embeddings) != len(nonEmpty) {
		return BatchEmbeddingResult{}, fmt.Errorf("%w: expected %d embeddings, got %d",
			ErrEmbeddingProviderError, len(nonEmpty), len(res.Embeddings))
	}
	for j, i := range idx {
		out.Embeddings[i] = res.Embeddings[j]
	}
	out.PromptTokens = res.PromptTokens
	out.TotalTokens = res.TotalTokens
	return out, nil
}

func (e *TaskEmbedder) route(task TaskType) (*InstructionEmbedder, error) {
	emb, ok := e.byTask[task]
	if !ok {
		return nil, fmt.Errorf("unknown embedding task %q", task)
	}
	return emb, nil
}
