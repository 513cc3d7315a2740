package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/supportgraph/internal/config"
	dbRedis "github.com/kailas-cloud/supportgraph/internal/db/redis"
	"github.com/kailas-cloud/supportgraph/internal/domain"
	"github.com/kailas-cloud/supportgraph/internal/domain/chunk"
	domjob "github.com/kailas-cloud/supportgraph/internal/domain/job"
	domsim "github.com/kailas-cloud/supportgraph/internal/domain/similarity"
	logpkg "github.com/kailas-cloud/supportgraph/internal/logger"
	"github.com/kailas-cloud/supportgraph/internal/metrics"
	"github.com/kailas-cloud/supportgraph/internal/repository/embcache"
	entityrepo "github.com/kailas-cloud/supportgraph/internal/repository/entity"
	idemrepo "github.com/kailas-cloud/supportgraph/internal/repository/idempotency"
	jobrepo "github.com/kailas-cloud/supportgraph/internal/repository/job"
	"github.com/kailas-cloud/supportgraph/internal/repository/postgres"
	suggestionrepo "github.com/kailas-cloud/supportgraph/internal/repository/suggestion"
	vectorrepo "github.com/kailas-cloud/supportgraph/internal/repository/vector"
	"github.com/kailas-cloud/supportgraph/internal/retry"
	amqpTransport "github.com/kailas-cloud/supportgraph/internal/transport/amqp"
	chiTransport "github.com/kailas-cloud/supportgraph/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/supportgraph/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/supportgraph/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/supportgraph/internal/usecase/health"
	idempotencyuc "github.com/kailas-cloud/supportgraph/internal/usecase/idempotency"
	"github.com/kailas-cloud/supportgraph/internal/usecase/pipeline"
	"github.com/kailas-cloud/supportgraph/internal/usecase/processors"
	similarityuc "github.com/kailas-cloud/supportgraph/internal/usecase/similarity"
	"github.com/kailas-cloud/supportgraph/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting supportgraph worker",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("build_date", version.Date),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("redis_addrs", cfg.Database.Addrs),
		zap.Bool("amqp_enabled", cfg.AMQP.URL != ""),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Worker stopped with error", zap.Error(err))
	}
	logger.Info("Worker stopped gracefully")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.HTTP.Port == 0 && cfg.AMQP.URL == "" {
		return errors.New("nothing to serve: both http.port and amqp.url are disabled")
	}

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()
	metrics.RegisterHTTPMetrics()

	// Redis: idempotency, vectors, embedding cache.
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
	})
	if err != nil {
		return fmt.Errorf("create redis store: %w", err)
	}
	defer store.Close()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		return fmt.Errorf("redis not ready: %w", err)
	}
	logger.Info("Connected to redis")

	// Postgres: entities, jobs, suggestions.
	pool, err := postgres.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		return err
	}
	logger.Info("Connected to postgres")

	vectors := vectorrepo.New(store, cfg.Database.KeyPrefix, cfg.Embedding.Dimensions,
		cfg.Database.HNSWM, cfg.Database.HNSWEFConstruct)
	if err := vectors.EnsureIndex(ctx, chunk.Collection); err != nil {
		return fmt.Errorf("ensure vector index: %w", err)
	}

	policy := retryPolicy(cfg.Retry)

	baseEmbedder := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:            cfg.Embedding.APIKey,
		BaseURL:           cfg.Embedding.BaseURL,
		Model:             cfg.Embedding.Model,
		Dimensions:        cfg.Embedding.Dimensions,
		Provider:          "openai",
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Timeout:           time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
		Logger:            logger,
	})
	embedder := buildEmbedder(baseEmbedder, store, cfg, policy, logger)

	generator := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		APIKey:            cfg.LLM.APIKey,
		BaseURL:           cfg.LLM.BaseURL,
		Model:             cfg.LLM.Model,
		Temperature:       cfg.LLM.Temperature,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		Timeout:           time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		Logger:            logger,
	})

	entities := entityrepo.New(pool)
	jobs := jobrepo.New(pool)
	suggestions := suggestionrepo.New(pool)
	idem := idempotencyuc.New(
		idemrepo.New(store, cfg.Database.KeyPrefix, time.Duration(cfg.Database.IdempotencyTTLH)*time.Hour),
		logger,
	)

	simDefaults := similarityDefaults(cfg.Similarity)
	similarity := similarityuc.New(vectors, embedder, simDefaults)

	registry := pipeline.NewRegistry()
	err = processors.Register(registry, processors.Deps{
		Generator:   generator,
		Embedder:    embedder,
		Chunks:      vectors,
		Suggestions: suggestions,
		Similarity:  similarity,
		Retry:       policy,
		Config: processors.Config{
			Model:     cfg.LLM.Model,
			ChunkSize: cfg.Pipeline.ChunkSize,
			Labels:    cfg.Pipeline.Labels,
			Statuses:  cfg.Pipeline.Statuses,
		},
	})
	if err != nil {
		return fmt.Errorf("register processors: %w", err)
	}

	orchOpts := []pipeline.Option{
		pipeline.WithDefaults(domjob.Options{
			Concurrency: cfg.Pipeline.Concurrency,
			Similarity:  simDefaults.Overrides(),
		}),
		pipeline.WithEntityTimeout(time.Duration(cfg.Pipeline.EntityTimeoutSec) * time.Second),
	}
	if cfg.Pipeline.AdvisoryLocks {
		orchOpts = append(orchOpts, pipeline.WithLocker(pipeline.NewKeyLocker()))
	}
	orchestrator := pipeline.New(registry, entities, jobs, idem, logger, orchOpts...)

	checks := []healthuc.Check{
		healthuc.Store("redis", store, true),
		healthuc.Store("postgres", pool, true),
		healthuc.Provider("embedding", baseEmbedder, false),
		healthuc.Provider("llm", generator, false),
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.AMQP.URL != "" {
		conn, err := amqpTransport.Dial(cfg.AMQP.URL, logger)
		if err != nil {
			return fmt.Errorf("connect amqp: %w", err)
		}
		defer func() {
			if err := conn.Close(); err != nil {
				logger.Warn("Failed to close amqp connection", zap.Error(err))
			}
		}()
		if err := amqpTransport.DeclareTopology(conn, cfg.AMQP.Queue); err != nil {
			return fmt.Errorf("declare amqp topology: %w", err)
		}
		checks = append(checks, healthuc.Store("amqp", conn, false))

		consumer := amqpTransport.NewConsumer(conn, amqpTransport.ConsumerConfig{
			Queue:    cfg.AMQP.Queue,
			Prefetch: cfg.AMQP.Prefetch,
			Handler:  amqpTransport.NewJobHandler(orchestrator),
		}, logger)
		g.Go(func() error {
			if err := consumer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("amqp consumer: %w", err)
			}
			return nil
		})
	}

	if cfg.HTTP.Port > 0 {
		server := chiTransport.NewServer(chiTransport.Deps{
			Jobs:        orchestrator,
			JobStore:    jobs,
			Entities:    entities,
			Similarity:  similarity,
			Suggestions: suggestions,
			Health:      healthuc.New(checks...),
		}, logger)

		srv := &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
			Handler:      chiTransport.NewRouter(server, cfg.Auth.APIKeys, logger),
			ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
			WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
		}

		g.Go(func() error {
			logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("Shutting down HTTP server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(),
				time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("http shutdown: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Task instructions.
func buildEmbedder(
	base domain.Embedder,
	store *dbRedis.Store,
	cfg config.Config,
	policy retry.Policy,
	logger *zap.Logger,
) *domain.TaskEmbedder {
	var embedder domain.Embedder = embcache.New(
		base, store, cfg.Database.KeyPrefix, cfg.Embedding.Model,
		time.Duration(cfg.Database.EmbedCacheTTLH)*time.Hour,
		metrics.EmbeddingCacheTotal, logger,
	)

	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, "openai", cfg.Embedding.Model, policy, logger)

	// Instructions are outermost so the cache key includes them.
	return domain.NewTaskEmbedder(embedder, map[domain.TaskType]string{
		domain.TaskDocument: cfg.Embedding.DocumentInstruction,
		domain.TaskQuery:    cfg.Embedding.QueryInstruction,
	})
}

func retryPolicy(c config.RetryConfig) retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = c.MaxAttempts
	p.BaseDelay = time.Duration(c.BaseDelayMS) * time.Millisecond
	p.MaxDelay = time.Duration(c.MaxDelayMS) * time.Millisecond
	p.Multiplier = c.Multiplier
	p.RateLimitMultiplier = c.RateLimitMultiplier
	return p
}

func similarityDefaults(c config.SimilarityConfig) domsim.Options {
	return domsim.Overrides{
		Limit:            c.Limit,
		ScoreThreshold:   c.ScoreThreshold,
		VectorWeight:     c.VectorWeight,
		KeywordWeight:    c.KeywordWeight,
		KeywordSteepness: c.KeywordSteepness,
		CutoffScore:      c.CutoffScore,
		MinScore:         c.MinScore,
	}.Apply(domsim.DefaultOptions())
}
