package usecase

import (
	"context"

	"github.com/docqa-platform/retrieval/internal/core/domain"
)

// stitchNeighbors pulls adjacent chunks (same document, neighboring reading
// order) in next to each selected chunk, useful when a table or procedure is
// split across chunk boundaries. Neighbors are fetched through the same ACL
// filter as the original search, so stitching can never widen access.
//
// The running token total is checked before every fetch; once the budget is
// exhausted no further neighbors are requested. Returns the augmented list
// with neighbors placed directly after their anchor.
func (uc *RetrieveUseCase) stitchNeighbors(
	ctx context.Context,
	selected []domain.RetrievedChunk,
	filter string,
	maxTotalTokens int,
) []domain.RetrievedChunk {
	maxNeighbors := uc.opts.MaxNeighbors
	if maxNeighbors <= 0 || len(selected) == 0 {
		return selected
	}

	running := 0
	present := make(map[string]struct{}, len(selected))
	for _, chunk := range selected {
		running += chunk.TokenCount
		present[chunk.ID] = struct{}{}
	}

	out := make([]domain.RetrievedChunk, 0, len(selected)*2)
	for _, anchor := range selected {
		out = append(out, anchor)

		// Alternate after/before positions, nearest first.
		offsets := make([]int, 0, maxNeighbors)
		for step := 1; len(offsets) < maxNeighbors; step++ {
			offsets = append(offsets, step)
			if len(offsets) < maxNeighbors {
				offsets = append(offsets, -step)
			}
		}

		for _, offset := range offsets {
			if running >= maxTotalTokens {
				return out
			}
			position := anchor.ReadingOrder + offset
			if position < 0 {
				continue
			}

			neighbor, err := uc.index.GetChunkByPosition(ctx, anchor.DocID, position, filter)
			if err != nil {
				uc.logger.Warn("neighbor_fetch_failed", "doc_id", anchor.DocID, "reading_order", position, "error", err)
				continue
			}
			if neighbor == nil {
				continue
			}
			if _, dup := present[neighbor.ID]; dup {
				continue
			}
			if running+neighbor.TokenCount > maxTotalTokens {
				continue
			}

			running += neighbor.TokenCount
			present[neighbor.ID] = struct{}{}
			out = append(out, domain.RetrievedChunk{Chunk: *neighbor, Stitched: true})
		}
	}
	return out
}
