package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docqa-platform/retrieval/internal/core/domain"
	"github.com/docqa-platform/retrieval/internal/core/ports"
)

// Options are the request-independent pipeline knobs.
type Options struct {
	MaxGroups         int
	SearchTimeout     time.Duration
	SearchParallelism int
	MaxNeighbors      int
	Rerank            domain.RerankConfig
}

func (o Options) normalize(logger *slog.Logger) Options {
	if o.MaxGroups <= 0 {
		o.MaxGroups = DefaultMaxACLGroups
	}
	o.SearchTimeout = searchWarnTimeout(o.SearchTimeout, logger)
	if o.SearchParallelism <= 0 {
		o.SearchParallelism = 8
	}
	if o.MaxNeighbors < 0 {
		o.MaxNeighbors = 0
	}
	return o
}

// RetrieveUseCase is the retrieval pipeline: intent routing, query expansion,
// ACL-filtered hybrid search, reranking, neighbor stitching and token-budget
// bounded context assembly. It holds no mutable state; one instance serves
// concurrent requests.
type RetrieveUseCase struct {
	index    ports.SearchIndex
	embedder ports.Embedder
	reranker *Reranker
	audit    ports.AuditPublisher
	glossary map[string]string
	budget   TokenBudget
	opts     Options
	logger   *slog.Logger
}

func NewRetrieveUseCase(
	index ports.SearchIndex,
	embedder ports.Embedder,
	reranker *Reranker,
	audit ports.AuditPublisher,
	glossary map[string]string,
	budget TokenBudget,
	opts Options,
	logger *slog.Logger,
) (*RetrieveUseCase, error) {
	if err := budget.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if len(glossary) == 0 {
		glossary = DefaultGlossary()
	}
	return &RetrieveUseCase{
		index:    index,
		embedder: embedder,
		reranker: reranker,
		audit:    audit,
		glossary: glossary,
		budget:   budget,
		opts:     opts.normalize(logger),
		logger:   logger,
	}, nil
}

// Retrieve runs the full pipeline for one query. Per-call failures inside a
// stage are absorbed with safe defaults and surfaced as warnings; only total
// index failure or caller cancellation is returned as an error.
func (uc *RetrieveUseCase) Retrieve(
	ctx context.Context,
	query string,
	user domain.UserContext,
	conversationBudgetTokens int,
) (*domain.RetrievalResult, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", fmt.Errorf("query is required"))
	}
	if strings.TrimSpace(user.UserID) == "" || strings.TrimSpace(user.TenantID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", fmt.Errorf("user_id and tenant_id are required"))
	}
	if conversationBudgetTokens < 0 {
		conversationBudgetTokens = 0
	}

	intent, confidence := ClassifyIntent(query)
	cfg := ConfigForIntent(intent)
	queries := ExpandQuery(query, intent, uc.glossary)

	filter, warnings, err := BuildACLFilter(user, nil, uc.opts.MaxGroups)
	if err != nil {
		return nil, err
	}

	candidates, searchWarnings, err := uc.hybridSearch(ctx, queries, cfg, intent, filter)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, searchWarnings...)

	rerankCfg := uc.opts.Rerank
	rerankCfg.FinalTopK = cfg.FinalTopK
	rerankCfg.MinRelevanceScore = cfg.MinRelevanceScore
	rerankCfg.TableAware = intent == domain.IntentTableLookup || intent == domain.IntentCompareValues

	ranked, scores, rerankWarnings, err := uc.reranker.Rerank(ctx, query, candidates, rerankCfg)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	warnings = append(warnings, rerankWarnings...)

	available := uc.budget.Available(EstimateTokens(query), conversationBudgetTokens)
	selected := selectWithinBudget(ranked, available)
	augmented := uc.stitchNeighbors(ctx, selected, filter, available)
	assembled, contextTokens := formatContext(augmented)

	result := &domain.RetrievalResult{
		Chunks:           augmented,
		Scores:           scores,
		AssembledContext: assembled,
		Intent:           intent,
		IntentConfidence: confidence,
		QueriesUsed:      queries,
		Warnings:         warnings,
		ContextTokens:    contextTokens,
	}

	uc.publishAudit(ctx, query, user, result, time.Since(start))

	uc.logger.Info("retrieve_completed",
		"intent", string(intent),
		"queries", len(queries),
		"candidates", len(candidates),
		"returned", len(augmented),
		"context_tokens", contextTokens,
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	return result, nil
}

// publishAudit emits the compliance event. Best-effort: a publish failure is
// logged and never fails the request.
func (uc *RetrieveUseCase) publishAudit(ctx context.Context, query string, user domain.UserContext, result *domain.RetrievalResult, took time.Duration) {
	if uc.audit == nil {
		return
	}

	chunkIDs := make([]string, 0, len(result.Chunks))
	for _, chunk := range result.Chunks {
		chunkIDs = append(chunkIDs, chunk.ID)
	}
	sum := sha256.Sum256([]byte(query))

	event := domain.AuditEvent{
		ID:         uuid.NewString(),
		RequestID:  domain.RequestIDFromContext(ctx),
		UserID:     user.UserID,
		TenantID:   user.TenantID,
		QueryHash:  hex.EncodeToString(sum[:]),
		Intent:     result.Intent,
		ChunkIDs:   chunkIDs,
		Warnings:   result.Warnings,
		DurationMS: float64(took.Microseconds()) / 1000.0,
		CreatedAt:  time.Now().UTC(),
	}
	if err := uc.audit.PublishRetrievalAudit(ctx, event); err != nil {
		uc.logger.Warn("audit_publish_failed", "error", err)
	}
}
