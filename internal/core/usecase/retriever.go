package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docqa-platform/retrieval/internal/core/domain"
)

const (
	modalityVector  = "vector"
	modalityKeyword = "keyword"
)

// rankedList is one ranked result list from a single search call: one
// modality for one expanded query variant.
type rankedList struct {
	modality string
	query    string
	chunks   []domain.RetrievedChunk
}

// hybridSearch fans out a vector and a keyword search per expanded query,
// fuses the surviving ranked lists with weighted reciprocal-rank fusion, and
// applies structure-aware boosting. A failed or timed-out call contributes an
// empty list; only total failure across all calls is an error.
func (uc *RetrieveUseCase) hybridSearch(
	ctx context.Context,
	queries []string,
	cfg domain.RetrievalConfig,
	intent domain.QueryIntent,
	filter string,
) ([]domain.RetrievedChunk, []string, error) {
	perQueryK := cfg.MaxChunksToRerank
	if perQueryK <= 0 {
		perQueryK = domain.DefaultRetrievalConfig().MaxChunksToRerank
	}

	total := len(queries) * 2
	lists := make([]rankedList, total)
	failures := make([]error, total)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.opts.SearchParallelism)

	for qi, query := range queries {
		qi, query := qi, query
		slot := qi * 2
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, uc.opts.SearchTimeout)
			defer cancel()

			chunks, err := uc.vectorBranch(callCtx, query, filter, perQueryK)
			if err != nil {
				failures[slot] = fmt.Errorf("vector search %q: %w", query, err)
				return nil
			}
			lists[slot] = rankedList{modality: modalityVector, query: query, chunks: chunks}
			return nil
		})
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, uc.opts.SearchTimeout)
			defer cancel()

			chunks, err := uc.index.KeywordSearch(callCtx, query, filter, perQueryK)
			if err != nil {
				failures[slot+1] = fmt.Errorf("keyword search %q: %w", query, err)
				return nil
			}
			lists[slot+1] = rankedList{modality: modalityKeyword, query: query, chunks: chunks}
			return nil
		})
	}
	// Branch errors are captured per slot, never returned, so one slow or
	// failed call cannot cancel its siblings.
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var warnings []string
	failed := 0
	for _, err := range failures {
		if err != nil {
			failed++
			uc.logger.Warn("search_call_failed", "error", err)
			warnings = append(warnings, "partial index failure: "+err.Error())
		}
	}
	if failed == total {
		return nil, warnings, domain.WrapError(domain.ErrIndexUnavailable, "hybrid search", fmt.Errorf("all %d search calls failed", total))
	}

	fused := fuseRankedLists(lists, cfg)
	boosted := applyStructureBoost(fused, cfg, intent)
	return truncateCandidates(boosted, cfg.MaxChunksToRerank), warnings, nil
}

// vectorBranch embeds one query variant and runs the vector search. An
// embedding failure counts as a failure of this branch only.
func (uc *RetrieveUseCase) vectorBranch(ctx context.Context, query, filter string, k int) ([]domain.RetrievedChunk, error) {
	embedding, err := uc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return uc.index.VectorSearch(ctx, embedding, filter, k)
}

// fuseRankedLists accumulates weighted reciprocal-rank contributions per
// chunk across every ranked list. RRF combines the non-comparable cosine and
// BM25 scales without normalization and degrades gracefully when one modality
// returns nothing for a variant.
func fuseRankedLists(lists []rankedList, cfg domain.RetrievalConfig) []domain.RetrievedChunk {
	rrfK := cfg.RRFK
	if rrfK <= 0 {
		rrfK = 60
	}

	acc := make(map[string]domain.RetrievedChunk)
	for _, list := range lists {
		weight := cfg.VectorWeight
		if list.modality == modalityKeyword {
			weight = cfg.BM25Weight
		}
		for rank, chunk := range list.chunks {
			merged := mergeChunkAnnotations(acc[chunk.ID], chunk, list.modality)
			merged.RRFScore += weight / float64(rrfK+rank+1)
			acc[chunk.ID] = merged
		}
	}

	out := make([]domain.RetrievedChunk, 0, len(acc))
	for _, chunk := range acc {
		out = append(out, chunk)
	}
	return out
}

// mergeChunkAnnotations folds a new sighting of a chunk into the accumulated
// candidate, keeping the best per-modality raw score and the richer payload.
func mergeChunkAnnotations(current, incoming domain.RetrievedChunk, modality string) domain.RetrievedChunk {
	if current.ID == "" {
		current = incoming
		current.VectorScore = 0
		current.BM25Score = 0
		current.RRFScore = 0
	}
	if current.Content == "" && incoming.Content != "" {
		current.Content = incoming.Content
	}
	switch modality {
	case modalityVector:
		if incoming.VectorScore > current.VectorScore {
			current.VectorScore = incoming.VectorScore
		}
	case modalityKeyword:
		if incoming.BM25Score > current.BM25Score {
			current.BM25Score = incoming.BM25Score
		}
	}
	return current
}

// applyStructureBoost sets final_score = rrf_score x boost. Table chunks are
// boosted under table and compare intents, figure captions under figure
// intent; everything else passes through unchanged.
func applyStructureBoost(chunks []domain.RetrievedChunk, cfg domain.RetrievalConfig, intent domain.QueryIntent) []domain.RetrievedChunk {
	for i := range chunks {
		boost := 1.0
		switch {
		case chunks[i].ChunkType == domain.ChunkTypeTable &&
			(intent == domain.IntentTableLookup || intent == domain.IntentCompareValues):
			boost = cfg.TableBoost
		case chunks[i].ChunkType == domain.ChunkTypeImageCaption &&
			intent == domain.IntentFigureUnderstanding:
			boost = cfg.FigureBoost
		}
		if boost <= 0 {
			boost = 1.0
		}
		chunks[i].FinalScore = chunks[i].RRFScore * boost
	}
	return chunks
}

// truncateCandidates orders by final score descending with deterministic
// tie-breaks (reading order, then id) and keeps at most limit candidates.
func truncateCandidates(chunks []domain.RetrievedChunk, limit int) []domain.RetrievedChunk {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].FinalScore != chunks[j].FinalScore {
			return chunks[i].FinalScore > chunks[j].FinalScore
		}
		if chunks[i].ReadingOrder != chunks[j].ReadingOrder {
			return chunks[i].ReadingOrder < chunks[j].ReadingOrder
		}
		return chunks[i].ID < chunks[j].ID
	})
	if limit > 0 && len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return chunks
}

// searchWarnTimeout guards against a zero timeout sneaking in from config.
func searchWarnTimeout(d time.Duration, logger *slog.Logger) time.Duration {
	if d <= 0 {
		logger.Warn("search_timeout_not_set_using_default")
		return 5 * time.Second
	}
	return d
}
