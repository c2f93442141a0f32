package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/docqa-platform/retrieval/internal/core/domain"
	"github.com/docqa-platform/retrieval/internal/core/ports"
)

// Reranker rescores retrieval candidates with an LLM judge. Judge calls run
// in batches with bounded concurrency and a shared rate limiter; a failed or
// malformed call yields a neutral midpoint score for that chunk only.
type Reranker struct {
	judge   ports.Judge
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewReranker(judge ports.Judge, limiter *rate.Limiter, logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{judge: judge, limiter: limiter, logger: logger}
}

// Rerank scores every candidate under cfg.Strategy, drops chunks below the
// relevance floor, and selects at most cfg.FinalTopK by combined score,
// either score-sorted or MMR when cfg.UseMMR is set. Neutral fallback scores
// bypass the floor so a judge outage never drops a candidate on its own.
// The returned chunk list parallels the returned scores; warnings cover every
// fallback-scored candidate whether or not it survives selection.
func (r *Reranker) Rerank(
	ctx context.Context,
	query string,
	candidates []domain.RetrievedChunk,
	cfg domain.RerankConfig,
) ([]domain.RetrievedChunk, []domain.ChunkScore, []string, error) {
	if len(candidates) == 0 {
		return nil, nil, nil, nil
	}
	cfg = normalizeRerankConfig(cfg)

	var tableColumns []string
	if cfg.TableAware {
		tableColumns = r.relevantTableColumns(ctx, query, candidates)
	}

	scores := make([]domain.ChunkScore, len(candidates))
	batch := cfg.BatchSize

	for start := 0; start < len(candidates); start += batch {
		end := start + batch
		if end > len(candidates) {
			end = len(candidates)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(batch)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				scores[i] = r.scoreCandidate(gctx, query, candidates[i], cfg, tableColumns)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, nil, err
		}
	}

	var warnings []string
	for _, s := range scores {
		if s.JudgeFallback {
			warnings = append(warnings, "judge fallback applied to chunk "+s.ChunkID)
		}
	}

	type scored struct {
		chunk domain.RetrievedChunk
		score domain.ChunkScore
	}
	kept := make([]scored, 0, len(candidates))
	for i, s := range scores {
		if !s.JudgeFallback && s.CombinedScore < cfg.MinRelevanceScore {
			continue
		}
		chunk := candidates[i]
		chunk.RerankScore = s.RelevanceScore
		chunk.SupportScore = s.SupportScore
		chunk.CombinedScore = s.CombinedScore
		kept = append(kept, scored{chunk: chunk, score: s})
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].score.CombinedScore != kept[j].score.CombinedScore {
			return kept[i].score.CombinedScore > kept[j].score.CombinedScore
		}
		return kept[i].chunk.ID < kept[j].chunk.ID
	})

	var order []int
	if cfg.UseMMR {
		chunks := make([]domain.RetrievedChunk, len(kept))
		combined := make([]float64, len(kept))
		for i, k := range kept {
			chunks[i] = k.chunk
			combined[i] = k.score.CombinedScore
		}
		order = selectMMR(chunks, combined, cfg.FinalTopK, cfg.MMRDiversityWeight)
	} else {
		limit := cfg.FinalTopK
		if limit > len(kept) {
			limit = len(kept)
		}
		for i := 0; i < limit; i++ {
			order = append(order, i)
		}
	}

	outChunks := make([]domain.RetrievedChunk, 0, len(order))
	outScores := make([]domain.ChunkScore, 0, len(order))
	for _, idx := range order {
		outChunks = append(outChunks, kept[idx].chunk)
		outScores = append(outScores, kept[idx].score)
	}
	return outChunks, outScores, warnings, nil
}

func normalizeRerankConfig(cfg domain.RerankConfig) domain.RerankConfig {
	def := domain.DefaultRerankConfig()
	if cfg.Strategy == "" {
		cfg.Strategy = def.Strategy
	}
	if cfg.RelevanceWeight <= 0 {
		cfg.RelevanceWeight = def.RelevanceWeight
	}
	if cfg.SupportWeight < 0 {
		cfg.SupportWeight = 0
	}
	if cfg.Strategy != domain.RerankRelevanceOnly && cfg.SupportWeight == 0 {
		cfg.SupportWeight = def.SupportWeight
	}
	if cfg.EvidenceBonus <= 0 {
		cfg.EvidenceBonus = def.EvidenceBonus
	}
	if cfg.FinalTopK <= 0 {
		cfg.FinalTopK = def.FinalTopK
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MMRDiversityWeight <= 0 {
		cfg.MMRDiversityWeight = def.MMRDiversityWeight
	}
	return cfg
}

// scoreCandidate runs the per-strategy judge calls for one chunk. Every
// failure path lands in neutralScore so the batch always completes.
func (r *Reranker) scoreCandidate(
	ctx context.Context,
	query string,
	chunk domain.RetrievedChunk,
	cfg domain.RerankConfig,
	tableColumns []string,
) domain.ChunkScore {
	relevance, reasoning, err := r.judgeRelevance(ctx, query, chunk)
	if err != nil {
		r.logger.Warn("judge_relevance_failed", "chunk_id", chunk.ID, "error", err)
		return r.neutralScore(chunk, cfg, tableColumns, err)
	}

	score := domain.ChunkScore{
		ChunkID:        chunk.ID,
		RelevanceScore: relevance,
	}

	if cfg.Strategy == domain.RerankRelevanceWithSupport || cfg.Strategy == domain.RerankFullAnalysis {
		support, evidence, excerpt, supportErr := r.judgeSupport(ctx, query, chunk)
		if supportErr != nil {
			r.logger.Warn("judge_support_failed", "chunk_id", chunk.ID, "error", supportErr)
			score.Reasoning = "support check error: " + supportErr.Error()
		} else {
			score.SupportScore = support
			score.HasExplicitEvidence = evidence
			score.Evidence = excerpt
		}
	}

	if cfg.Strategy == domain.RerankFullAnalysis {
		if analysis, analysisErr := r.judgeAnalysis(ctx, query, chunk); analysisErr == nil {
			reasoning = analysis
		}
	}
	if score.Reasoning == "" {
		score.Reasoning = reasoning
	}

	score.CombinedScore = combineScores(score, cfg, tableColumnMatch(chunk, tableColumns))
	return score
}

// neutralScore is the explicit fallback for a failed judge call: the midpoint
// of the relevance scale, flagged in the reasoning, so the chunk is neither
// unfairly promoted nor silently dropped.
func (r *Reranker) neutralScore(chunk domain.RetrievedChunk, cfg domain.RerankConfig, tableColumns []string, cause error) domain.ChunkScore {
	score := domain.ChunkScore{
		ChunkID:        chunk.ID,
		RelevanceScore: domain.RelevanceScaleMax / 2,
		Reasoning:      "judge error, neutral default applied: " + cause.Error(),
		JudgeFallback:  true,
	}
	score.CombinedScore = combineScores(score, cfg, tableColumnMatch(chunk, tableColumns))
	return score
}

// combineScores fuses relevance, support, the explicit-evidence bonus and the
// table-column bonus into a single [0,1] score. The weighted sum is divided
// by the maximum attainable weight so an evidence-bearing chunk always
// strictly outranks an otherwise identical one without evidence.
func combineScores(score domain.ChunkScore, cfg domain.RerankConfig, columnsMatch bool) float64 {
	const tableColumnBonus = 0.15

	normalized := score.RelevanceScore / domain.RelevanceScaleMax
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}

	if cfg.Strategy == domain.RerankRelevanceOnly {
		return normalized
	}

	support := score.SupportScore
	if support < 0 {
		support = 0
	}
	if support > 1 {
		support = 1
	}

	numerator := cfg.RelevanceWeight*normalized + cfg.SupportWeight*support
	denominator := cfg.RelevanceWeight + cfg.SupportWeight + cfg.EvidenceBonus
	if cfg.TableAware {
		denominator += tableColumnBonus
	}
	if score.HasExplicitEvidence {
		numerator += cfg.EvidenceBonus
	}
	if columnsMatch {
		numerator += tableColumnBonus
	}
	if denominator <= 0 {
		return normalized
	}
	return numerator / denominator
}

func tableColumnMatch(chunk domain.RetrievedChunk, columns []string) bool {
	if len(columns) == 0 || len(chunk.TableHeaders) == 0 {
		return false
	}
	for _, header := range chunk.TableHeaders {
		for _, col := range columns {
			if strings.EqualFold(strings.TrimSpace(header), strings.TrimSpace(col)) {
				return true
			}
		}
	}
	return false
}

func (r *Reranker) judgeRelevance(ctx context.Context, query string, chunk domain.RetrievedChunk) (float64, string, error) {
	raw, err := r.judgeCall(ctx, buildRelevancePrompt(query, chunk))
	if err != nil {
		return 0, "", err
	}
	var parsed struct {
		Relevance float64 `json:"relevance"`
		Reasoning string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return 0, "", fmt.Errorf("parse relevance response: %w", err)
	}
	if parsed.Relevance < 0 {
		parsed.Relevance = 0
	}
	if parsed.Relevance > domain.RelevanceScaleMax {
		parsed.Relevance = domain.RelevanceScaleMax
	}
	return parsed.Relevance, parsed.Reasoning, nil
}

func (r *Reranker) judgeSupport(ctx context.Context, query string, chunk domain.RetrievedChunk) (float64, bool, string, error) {
	raw, err := r.judgeCall(ctx, buildSupportPrompt(query, chunk))
	if err != nil {
		return 0, false, "", err
	}
	var parsed struct {
		Support             float64 `json:"support"`
		HasExplicitEvidence bool    `json:"has_explicit_evidence"`
		Evidence            string  `json:"evidence"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return 0, false, "", fmt.Errorf("parse support response: %w", err)
	}
	if parsed.Support < 0 {
		parsed.Support = 0
	}
	if parsed.Support > 1 {
		parsed.Support = 1
	}
	return parsed.Support, parsed.HasExplicitEvidence, parsed.Evidence, nil
}

func (r *Reranker) judgeAnalysis(ctx context.Context, query string, chunk domain.RetrievedChunk) (string, error) {
	raw, err := r.judgeCall(ctx, buildAnalysisPrompt(query, chunk))
	if err != nil {
		return "", err
	}
	var parsed struct {
		Analysis string `json:"analysis"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return "", fmt.Errorf("parse analysis response: %w", err)
	}
	return parsed.Analysis, nil
}

// relevantTableColumns asks the judge which table columns matter for the
// query. Errors degrade to no column boost.
func (r *Reranker) relevantTableColumns(ctx context.Context, query string, candidates []domain.RetrievedChunk) []string {
	hasTables := false
	for _, c := range candidates {
		if c.ChunkType == domain.ChunkTypeTable {
			hasTables = true
			break
		}
	}
	if !hasTables {
		return nil
	}

	raw, err := r.judgeCall(ctx, buildColumnPrompt(query))
	if err != nil {
		r.logger.Warn("judge_columns_failed", "error", err)
		return nil
	}
	var parsed struct {
		Columns []string `json:"columns"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		r.logger.Warn("judge_columns_unparseable", "error", err)
		return nil
	}
	return parsed.Columns
}

func (r *Reranker) judgeCall(ctx context.Context, prompt string) (string, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	return r.judge.Score(ctx, prompt)
}

// selectMMR greedily picks the index maximizing relevance minus the weighted
// maximum lexical similarity to already-selected chunks. Returns at most
// topK indices, each at most once.
func selectMMR(chunks []domain.RetrievedChunk, combined []float64, topK int, diversityWeight float64) []int {
	if topK > len(chunks) {
		topK = len(chunks)
	}
	tokenSets := make([]map[string]struct{}, len(chunks))
	for i, c := range chunks {
		tokenSets[i] = toTokenSet(c.Content)
	}

	selected := make([]int, 0, topK)
	used := make([]bool, len(chunks))
	for len(selected) < topK {
		best := -1
		bestScore := 0.0
		for i := range chunks {
			if used[i] {
				continue
			}
			maxSim := 0.0
			for _, j := range selected {
				if sim := jaccard(tokenSets[i], tokenSets[j]); sim > maxSim {
					maxSim = sim
				}
			}
			score := combined[i] - diversityWeight*maxSim
			if best == -1 || score > bestScore {
				best = i
				bestScore = score
			}
		}
		if best == -1 {
			break
		}
		used[best] = true
		selected = append(selected, best)
	}
	return selected
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for token := range a {
		if _, ok := b[token]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}
	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		default:
			if b.Len() > 0 {
				tokens = append(tokens, b.String())
				b.Reset()
			}
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
