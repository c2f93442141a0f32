package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	httpadapter "github.com/docqa-platform/retrieval/internal/adapters/http"
	"github.com/docqa-platform/retrieval/internal/config"
	"github.com/docqa-platform/retrieval/internal/core/domain"
	"github.com/docqa-platform/retrieval/internal/core/ports"
	"github.com/docqa-platform/retrieval/internal/core/usecase"
	"github.com/docqa-platform/retrieval/internal/infrastructure/llm/ollama"
	natsqueue "github.com/docqa-platform/retrieval/internal/infrastructure/queue/nats"
	"github.com/docqa-platform/retrieval/internal/infrastructure/repository/postgres"
	"github.com/docqa-platform/retrieval/internal/infrastructure/resilience"
	"github.com/docqa-platform/retrieval/internal/infrastructure/vector/qdrant"
	"github.com/docqa-platform/retrieval/internal/observability/logging"
	"github.com/docqa-platform/retrieval/internal/observability/metrics"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	RetrieveUC ports.Retriever
	Handler    http.Handler

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.NewJSONLogger("retrieval", cfg.LogLevel)
	slog.SetDefault(logger)

	executor := resilience.NewExecutor(resilience.DefaultConfig(), logging.WithComponent(logger, "resilience"))

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	glossaryRepo := postgres.NewGlossaryRepository(db)
	if err := glossaryRepo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	glossary := loadGlossary(ctx, cfg, glossaryRepo, logger)

	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)

	llm := ollama.New(cfg.LLMURL, cfg.LLMJudgeModel, cfg.LLMEmbedModel, executor)
	embedder := ollama.NewEmbedder(llm)
	judge := ollama.NewJudge(llm)

	var judgeLimiter *rate.Limiter
	if cfg.JudgeRatePerSecond > 0 {
		judgeLimiter = rate.NewLimiter(rate.Limit(cfg.JudgeRatePerSecond), cfg.JudgeRatePerSecond)
	}
	reranker := usecase.NewReranker(judge, judgeLimiter, logging.WithComponent(logger, "reranker"))

	var audit ports.AuditPublisher
	var publisher *natsqueue.Publisher
	if cfg.AuditEnabled {
		publisher, err = natsqueue.New(cfg.NATSURL, cfg.NATSAuditSubject, natsqueue.Options{
			ResilienceExecutor: executor,
			Logger:             logging.WithComponent(logger, "audit"),
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init audit publisher: %w", err)
		}
		audit = publisher
	}

	retrieveUC, err := usecase.NewRetrieveUseCase(
		vectorDB,
		embedder,
		reranker,
		audit,
		glossary,
		usecase.TokenBudget{
			TotalContext:    cfg.TotalContextTokens,
			SystemPrompt:    cfg.SystemPromptTokens,
			ResponseReserve: cfg.ResponseReserveTokens,
		},
		usecase.Options{
			MaxGroups:         cfg.MaxACLGroups,
			SearchTimeout:     cfg.SearchTimeout(),
			SearchParallelism: cfg.SearchParallelism,
			MaxNeighbors:      cfg.StitchMaxNeighbors,
			Rerank: domain.RerankConfig{
				Strategy: domain.RerankStrategy(cfg.RerankStrategy),
				UseMMR:   cfg.RerankUseMMR,
			},
		},
		logger,
	)
	if err != nil {
		if publisher != nil {
			publisher.Close()
		}
		_ = db.Close()
		return nil, fmt.Errorf("init retrieve use case: %w", err)
	}

	serverMetrics := metrics.NewServerMetrics("retrieval")
	var httpLimiter *rate.Limiter
	if cfg.HTTPRatePerSecond > 0 {
		httpLimiter = rate.NewLimiter(rate.Limit(cfg.HTTPRatePerSecond), cfg.HTTPRateBurst)
	}
	router := httpadapter.NewRouter(retrieveUC, serverMetrics, httpLimiter)

	return &App{
		Config:     cfg,
		Logger:     logger,
		RetrieveUC: retrieveUC,
		Handler:    router.Handler(),
		closeFn: func() {
			if publisher != nil {
				publisher.Close()
			}
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// loadGlossary layers the glossary sources: compiled-in defaults, then
// database terms, then file overrides. Either dynamic source failing degrades
// to the layers below it rather than blocking startup.
func loadGlossary(ctx context.Context, cfg config.Config, repo ports.GlossaryStore, logger *slog.Logger) map[string]string {
	glossary := usecase.DefaultGlossary()

	dbTerms, err := repo.LoadGlossary(ctx)
	if err != nil {
		logger.Warn("glossary_db_load_failed", "error", err)
	}
	for term, expansion := range dbTerms {
		glossary[term] = expansion
	}

	if cfg.GlossaryFile != "" {
		fileTerms, err := config.LoadGlossaryFile(cfg.GlossaryFile)
		if err != nil {
			logger.Warn("glossary_file_load_failed", "path", cfg.GlossaryFile, "error", err)
		}
		for term, expansion := range fileTerms {
			glossary[term] = expansion
		}
	}

	logger.Info("glossary_loaded", "terms", len(glossary))
	return glossary
}
