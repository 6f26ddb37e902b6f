package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"filings-rag-be/internal/config"
	"filings-rag-be/internal/controller"
	"filings-rag-be/internal/pkg/logger"
	"filings-rag-be/internal/pkg/metrics"
	"filings-rag-be/internal/repository/contract"
	"filings-rag-be/internal/repository/implementation"
	"filings-rag-be/internal/service"
	"filings-rag-be/pkg/database"
	"filings-rag-be/pkg/embedding"
	"filings-rag-be/pkg/embedding/jina"
	"filings-rag-be/pkg/graph"
	"filings-rag-be/pkg/llm/factory"
	"filings-rag-be/pkg/memory"
	"filings-rag-be/pkg/rag/judge"
	"filings-rag-be/pkg/rag/port"
	"filings-rag-be/pkg/rag/workflow"
	"filings-rag-be/pkg/retrieval"
	"filings-rag-be/pkg/session"
	"filings-rag-be/pkg/websearch"

	pktNats "filings-rag-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	module             = "bootstrap"
	generatorMaxTokens = 1024
	redisSessionTTL    = 30 * 24 * time.Hour
)

type Container struct {
	Logger  logger.ILogger
	Metrics *metrics.Metrics

	Registry        *session.Registry
	QueryService    service.IQueryService
	QueryController controller.IQueryController

	// Background services, started by main.
	ConsumerService service.IConsumerService

	Embedder embedding.EmbeddingProvider

	// Optional infrastructure; nil when not configured.
	DB            *gorm.DB
	ChunkRepo     contract.FilingChunkRepository
	NatsPublisher *pktNats.Publisher

	closers []func()
}

// NewContainer wires every component from cfg. Optional infrastructure (NATS,
// async persistence) degrades to a warning when unavailable; the retrieval
// database and the model backends are required.
func NewContainer(ctx context.Context, cfg *config.Config, sysLogger logger.ILogger) (*Container, error) {
	if sysLogger == nil {
		sysLogger = logger.NewNopLogger()
	}
	c := &Container{Logger: sysLogger, Metrics: metrics.New()}

	// 1. Model backends
	embedder, err := newEmbeddingProvider(cfg)
	if err != nil {
		return nil, err
	}
	c.Embedder = embedder
	sysLogger.Info(module, "embedding provider ready", map[string]interface{}{
		"provider":   cfg.Ai.EmbeddingProvider,
		"model":      cfg.Ai.EmbeddingModel,
		"dimensions": embedder.Dimensions(),
	})

	llmProvider, err := factory.NewLLMProvider(factory.Config{
		Provider: cfg.Ai.LLMProvider,
		Model:    cfg.Ai.LLMModel,
		BaseURL:  llmBaseURL(cfg),
		APIKey:   llmAPIKey(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("init llm provider: %w", err)
	}
	sysLogger.Info(module, "llm provider ready", map[string]interface{}{
		"provider": cfg.Ai.LLMProvider,
		"model":    cfg.Ai.LLMModel,
	})

	// 2. Retrieval
	if cfg.Database.Connection == "" {
		return nil, errors.New("DB_CONNECTION_STRING is required for retrieval")
	}
	pool, err := retrieval.NewPool(ctx, cfg.Database.Connection)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, pool.Close)
	retriever, err := retrieval.NewPgvectorRetriever(pool, embedder)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(cfg.Database.Connection, database.DefaultOptions())
	if err != nil {
		c.Close()
		return nil, err
	}
	c.DB = db
	c.ChunkRepo = implementation.NewFilingChunkRepository(db)

	web := websearch.NewTavilyClient(cfg.Keys.Tavily, websearch.WithRate(cfg.Ai.WebSearchRate, 2))

	// 3. Session persistence
	persister, err := c.newPersister(ctx, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}

	// 4. Events
	regOpts := []session.Option{
		session.WithPersister(persister),
		session.WithLogger(sysLogger),
	}
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
		if err != nil {
			sysLogger.Warn(module, "nats publisher unavailable, events disabled", map[string]interface{}{"error": err.Error()})
		} else {
			c.NatsPublisher = natsPub
			c.closers = append(c.closers, natsPub.Close)
			regOpts = append(regOpts, session.WithEventPublisher(natsPub))
		}
	}

	// 5. Registry
	deps := workflow.Deps{
		Retriever: retriever,
		Judge:     judge.New(llmProvider),
		Generator: judge.NewGenerator(llmProvider, generatorMaxTokens),
		Web:       web,
		Logger:    sysLogger,
		Settings:  workflowSettings(cfg.RAG),
	}
	registry, err := session.NewRegistry(sessionConfig(cfg.RAG), NewBuilder(deps), regOpts...)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Registry = registry
	c.Metrics.TrackActiveSessions(registry.ActiveCount)

	c.QueryService = service.NewQueryService(registry, c.Metrics, sysLogger)
	c.QueryController = controller.NewQueryController(c.QueryService, sysLogger)

	return c, nil
}

// NewBuilder returns a session builder that compiles a workflow over each
// session's own memory.
func NewBuilder(deps workflow.Deps, opts ...graph.Option) session.Builder {
	return func(store *memory.Store) (*workflow.Workflow, error) {
		d := deps
		d.Memory = store
		return workflow.Build(d, opts...)
	}
}

func (c *Container) newPersister(ctx context.Context, cfg *config.Config) (session.Persister, error) {
	var target session.Persister
	switch cfg.RAG.Persistence {
	case config.PersistenceNone:
		return session.NopPersister{}, nil
	case config.PersistenceFile:
		fp, err := session.NewFilePersister(cfg.RAG.SessionDir)
		if err != nil {
			return nil, err
		}
		target = fp
	case config.PersistenceRedis:
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			c.Logger.Warn(module, "redis url not parseable, using it as an address", map[string]interface{}{"error": err.Error()})
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb := redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		c.closers = append(c.closers, func() { _ = rdb.Close() })
		target = session.NewRedisPersister(rdb, redisSessionTTL)
	case config.PersistencePostgres:
		target = implementation.NewSessionSnapshotRepository(c.DB)
	default:
		return nil, fmt.Errorf("unknown persistence %q", cfg.RAG.Persistence)
	}

	if !cfg.RAG.AsyncPersist {
		return target, nil
	}

	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermill.NewStdLogger(false, false))
	c.closers = append(c.closers, func() { _ = pubSub.Close() })
	c.ConsumerService = service.NewConsumerService(pubSub, cfg.Keys.SnapshotTopic, target, c.Logger)
	return session.NewAsyncPersister(target, pubSub, cfg.Keys.SnapshotTopic), nil
}

// Close releases infrastructure in reverse order of acquisition.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

func newEmbeddingProvider(cfg *config.Config) (embedding.EmbeddingProvider, error) {
	switch cfg.Ai.EmbeddingProvider {
	case "ollama", "":
		return embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.EmbeddingModel, cfg.Ai.EmbeddingDimensions), nil
	case "jina":
		if cfg.Keys.Jina == "" {
			return nil, errors.New("JINA_API_KEY is required for the jina embedding provider")
		}
		return jina.NewJinaProvider(cfg.Keys.Jina, "", cfg.Ai.EmbeddingModel, cfg.Ai.EmbeddingDimensions), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Ai.EmbeddingProvider)
	}
}

func llmBaseURL(cfg *config.Config) string {
	if cfg.Ai.LLMBaseURL != "" {
		return cfg.Ai.LLMBaseURL
	}
	if cfg.Ai.LLMProvider == "ollama" {
		return cfg.Ai.OllamaBaseURL
	}
	return ""
}

func llmAPIKey(cfg *config.Config) string {
	switch cfg.Ai.LLMProvider {
	case "anthropic":
		return cfg.Keys.Anthropic
	case "openai":
		return cfg.Keys.OpenAI
	}
	return ""
}

func workflowSettings(rag config.RAGConfig) workflow.Settings {
	return workflow.Settings{
		MaxRetries:      rag.MaxRetries,
		StepCeiling:     rag.StepCeiling,
		ScantThreshold:  rag.ScantThreshold,
		CrossRefMinimum: rag.CrossRefMinimum,
		TopK:            rag.TopK,
		WebResults:      rag.WebResults,
		CacheContext:    rag.ContextWindow,
		UseLLMRouter:    rag.LLMRouter,
	}
}

func sessionConfig(rag config.RAGConfig) session.Config {
	cfg := session.DefaultConfig()
	cfg.Memory = memory.Config{
		CacheTTL:     rag.CacheTTL,
		MaxCacheSize: rag.MaxCacheSize,
		HistoryMax:   rag.HistoryMax,
	}
	cfg.AutosaveEvery = rag.AutosaveEvery
	cfg.IdleTimeout = rag.SessionIdle
	cfg.RequestTimeout = rag.RequestTimeout
	return cfg
}

// Compile-time checks.
var (
	_ port.Retriever   = (*retrieval.PgvectorRetriever)(nil)
	_ port.WebSearcher = (*websearch.TavilyClient)(nil)
)
