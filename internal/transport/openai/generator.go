package openai

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/supportgraph/internal/domain"
	"github.com/kailas-cloud/supportgraph/internal/metrics"
)

// GeneratorConfig holds the chat-completion provider settings.
type GeneratorConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	Temperature       float32
	RequestsPerSecond float64
	Timeout           time.Duration
	Logger            *zap.Logger
}

// Generator produces JSON answers constrained by a schema derived from the output type.
type Generator struct {
	client      *openai.Client
	limiter     *rate.Limiter
	model       string
	temperature float32
	schemas     sync.Map // reflect.Type -> *jsonschema.Definition
	logger      *zap.Logger
}

// NewGenerator creates an OpenAI-compatible structured generator.
func NewGenerator(cfg *GeneratorConfig) *Generator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		client:      newClient(cfg.APIKey, cfg.BaseURL, cfg.Timeout),
		limiter:     newLimiter(cfg.RequestsPerSecond),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		logger:      logger,
	}
}

// Generate fills out, a pointer to a struct, from the model's answer to p.
// Answers that do not decode against the schema wrap domain.ErrMalformedOutput.
func (g *Generator) Generate(ctx context.Context, p domain.Prompt, out any) error {
	schema, err := g.schemaFor(out)
	if err != nil {
		return err
	}
	if err := wait(ctx, g.limiter); err != nil {
		return err
	}

	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, Content: p.User},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   p.Schema,
				Schema: schema,
				Strict: true,
			},
		},
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		err = parseAPIError("llm", err, domain.ErrProviderUnavailable)
		metrics.LLMRequestsTotal.WithLabelValues(g.model, p.Schema, errorType(err)).Inc()
		return err
	}
	metrics.LLMRequestDuration.WithLabelValues(g.model, p.Schema).Observe(duration.Seconds())
	metrics.LLMTokensTotal.WithLabelValues(g.model, "prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.LLMTokensTotal.WithLabelValues(g.model, "completion").Add(float64(resp.Usage.CompletionTokens))

	if len(resp.Choices) == 0 {
		metrics.LLMRequestsTotal.WithLabelValues(g.model, p.Schema, "malformed").Inc()
		return fmt.Errorf("%s: empty choices: %w", p.Schema, domain.ErrMalformedOutput)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := schema.Unmarshal(content, out); err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(g.model, p.Schema, "malformed").Inc()
		g.logger.Debug("Malformed model output",
			zap.String("schema", p.Schema),
			zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
			zap.Error(err),
		)
		return fmt.Errorf("%s: %v: %w", p.Schema, err, domain.ErrMalformedOutput)
	}

	metrics.LLMRequestsTotal.WithLabelValues(g.model, p.Schema, "success").Inc()
	g.logger.Debug("LLM request completed",
		zap.String("schema", p.Schema),
		zap.Duration("duration", duration),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return nil
}

func (g *Generator) schemaFor(out any) (*jsonschema.Definition, error) {
	t := reflect.TypeOf(out)
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("generate: out must be a pointer to struct, got %T", out)
	}
	if s, ok := g.schemas.Load(t); ok {
		return s.(*jsonschema.Definition), nil
	}
	s, err := jsonschema.GenerateSchemaForType(reflect.New(t.Elem()).Elem().Interface())
	if err != nil {
		return nil, fmt.Errorf("generate schema for %T: %w", out, err)
	}
	g.schemas.Store(t, s)
	return s, nil
}

// HealthCheck verifies API availability via ListModels.
func (g *Generator) HealthCheck(ctx context.Context) error {
	if _, err := g.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}
