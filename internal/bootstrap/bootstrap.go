package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mosarlab/graphrag/internal/config"
	"github.com/mosarlab/graphrag/internal/core/cypher"
	"github.com/mosarlab/graphrag/internal/core/entity"
	"github.com/mosarlab/graphrag/internal/core/ports"
	"github.com/mosarlab/graphrag/internal/core/routing"
	"github.com/mosarlab/graphrag/internal/core/usecase"
	"github.com/mosarlab/graphrag/internal/infrastructure/cache"
	catalogfile "github.com/mosarlab/graphrag/internal/infrastructure/catalog/file"
	"github.com/mosarlab/graphrag/internal/infrastructure/graph/neo4j"
	"github.com/mosarlab/graphrag/internal/infrastructure/llm/openai"
	"github.com/mosarlab/graphrag/internal/infrastructure/queue/nats"
	"github.com/mosarlab/graphrag/internal/infrastructure/repository/postgres"
	"github.com/mosarlab/graphrag/internal/infrastructure/resilience"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Workflow ports.QueryService
	Graph    ports.GraphStore
	Queue    ports.QuestionQueue
	Cache    *cache.Memory
	History  *postgres.HistoryRepository

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	history := postgres.NewHistoryRepository(db)
	if err := history.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	graph, err := neo4j.New(cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, neo4j.Options{
		Database:           cfg.Neo4jDatabase,
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect neo4j: %w", err)
	}

	model := openai.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, openai.Options{
		ChatModel:          cfg.OpenAIChatModel,
		EmbedModel:         cfg.OpenAIEmbedModel,
		EmbedDimension:     cfg.OpenAIEmbedDimension,
		ResilienceExecutor: executor,
		Logger:             logger,
	})

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init question queue: %w", err)
	}

	catalog := catalogfile.Load(cfg.CatalogPath, logger)
	resolver := entity.NewResolver(catalog, logger)
	router := routing.NewRouter(resolver, logger)

	schema := cypher.NewSchemaDescriber(graph, logger)
	validator := cypher.NewValidator(graph, logger)
	generator := cypher.NewGenerator(model, schema, validator, logger)

	extractor := usecase.NewEntityExtractor(model, resolver, logger)
	synth := usecase.NewSynthesizer(model, logger)

	resultCache := cache.NewMemory(cache.Options{
		AnswerSize:  cfg.CacheAnswerSize,
		PassageSize: cfg.CachePassageSize,
		RowSize:     cfg.CacheRowSize,
		TTL:         time.Duration(cfg.CacheTTLSeconds) * time.Second,
		Logger:      logger,
	})

	workflow := usecase.NewWorkflow(usecase.WorkflowDeps{
		Router:    router,
		Generator: generator,
		Extractor: extractor,
		Synth:     synth,
		Graph:     graph,
		Embedder:  model,
		Cache:     resultCache,
		History:   history,
		Logger:    logger,
	})

	return &App{
		Config:   cfg,
		Logger:   logger,
		Workflow: workflow,
		Graph:    graph,
		Queue:    queue,
		Cache:    resultCache,
		History:  history,

		closeFn: func() {
			queue.Close()
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = graph.Close(closeCtx)
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
