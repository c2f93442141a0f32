package usecase

import (
	"context"
	"testing"

	"github.com/docqa-platform/retrieval/internal/core/domain"
)

func neighborChunk(docID string, readingOrder, tokens int) domain.Chunk {
	return domain.Chunk{
		ID:           domain.ChunkID(docID, 1, 1, domain.ChunkTypeText, readingOrder),
		DocID:        docID,
		ChunkType:    domain.ChunkTypeText,
		Content:      "neighbor content",
		ReadingOrder: readingOrder,
		TokenCount:   tokens,
		TenantID:     "tenant-acme",
		IsActive:     true,
	}
}

func TestStitchNeighborsPlacesNeighborsAfterAnchor(t *testing.T) {
	index := &fakeIndex{
		neighbors: map[string]map[int]domain.Chunk{
			"doc-1": {
				4: neighborChunk("doc-1", 4, 30),
				6: neighborChunk("doc-1", 6, 30),
			},
		},
	}
	uc := newTestUseCase(t, index, &fakeJudge{}, nil, testBudget(), Options{MaxNeighbors: 2})

	anchor := testChunk("c-anchor", "doc-1", domain.ChunkTypeTable, 5, 100, "anchor")
	out := uc.stitchNeighbors(context.Background(), []domain.RetrievedChunk{anchor}, "{}", 1000)

	if len(out) != 3 {
		t.Fatalf("expected anchor plus 2 neighbors, got %d", len(out))
	}
	if out[0].ID != "c-anchor" || out[0].Stitched {
		t.Fatalf("anchor must lead and stay unmarked: %+v", out[0])
	}
	for _, chunk := range out[1:] {
		if !chunk.Stitched {
			t.Fatalf("neighbor not marked as stitched: %+v", chunk)
		}
	}
	// Nearest-first: reading order 6 (after) before 4 (before).
	if out[1].ReadingOrder != 6 || out[2].ReadingOrder != 4 {
		t.Fatalf("expected nearest-first order 6 then 4, got %d then %d", out[1].ReadingOrder, out[2].ReadingOrder)
	}
}

func TestStitchNeighborsRespectsTokenBudget(t *testing.T) {
	index := &fakeIndex{
		neighbors: map[string]map[int]domain.Chunk{
			"doc-1": {
				4: neighborChunk("doc-1", 4, 500),
				6: neighborChunk("doc-1", 6, 40),
			},
		},
	}
	uc := newTestUseCase(t, index, &fakeJudge{}, nil, testBudget(), Options{MaxNeighbors: 2})

	anchor := testChunk("c-anchor", "doc-1", domain.ChunkTypeText, 5, 100, "anchor")
	out := uc.stitchNeighbors(context.Background(), []domain.RetrievedChunk{anchor}, "{}", 150)

	total := 0
	for _, chunk := range out {
		total += chunk.TokenCount
	}
	if total > 150 {
		t.Fatalf("stitching exceeded the budget: %d tokens", total)
	}
	// The 40-token neighbor fits, the 500-token one is skipped.
	if len(out) != 2 || out[1].ReadingOrder != 6 {
		t.Fatalf("expected only the small neighbor stitched, got %+v", out)
	}
}

func TestStitchNeighborsStopsFetchingWhenBudgetExhausted(t *testing.T) {
	index := &fakeIndex{
		neighbors: map[string]map[int]domain.Chunk{
			"doc-1": {4: neighborChunk("doc-1", 4, 10), 6: neighborChunk("doc-1", 6, 10)},
		},
	}
	uc := newTestUseCase(t, index, &fakeJudge{}, nil, testBudget(), Options{MaxNeighbors: 2})

	anchor := testChunk("c-anchor", "doc-1", domain.ChunkTypeText, 5, 100, "anchor")
	out := uc.stitchNeighbors(context.Background(), []domain.RetrievedChunk{anchor}, "{}", 100)

	if len(out) != 1 {
		t.Fatalf("expected no neighbors on an exhausted budget, got %d chunks", len(out))
	}
	if len(index.seenFilters) != 0 {
		t.Fatalf("expected zero fetches on an exhausted budget, got %d", len(index.seenFilters))
	}
}

func TestStitchNeighborsDeduplicatesSelectedChunks(t *testing.T) {
	duplicate := neighborChunk("doc-1", 6, 30)
	index := &fakeIndex{
		neighbors: map[string]map[int]domain.Chunk{"doc-1": {6: duplicate}},
	}
	uc := newTestUseCase(t, index, &fakeJudge{}, nil, testBudget(), Options{MaxNeighbors: 2})

	anchor := testChunk("c-anchor", "doc-1", domain.ChunkTypeText, 5, 100, "anchor")
	selectedNeighbor := domain.RetrievedChunk{Chunk: duplicate}
	out := uc.stitchNeighbors(context.Background(), []domain.RetrievedChunk{anchor, selectedNeighbor}, "{}", 1000)

	count := 0
	for _, chunk := range out {
		if chunk.ID == duplicate.ID {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("duplicate chunk stitched %d times", count)
	}
}

func TestStitchNeighborsUsesCallerFilter(t *testing.T) {
	index := &fakeIndex{
		neighbors: map[string]map[int]domain.Chunk{"doc-1": {6: neighborChunk("doc-1", 6, 30)}},
	}
	uc := newTestUseCase(t, index, &fakeJudge{}, nil, testBudget(), Options{MaxNeighbors: 1})

	anchor := testChunk("c-anchor", "doc-1", domain.ChunkTypeText, 5, 100, "anchor")
	filter := `{"must":[{"key":"tenant_id"}]}`
	uc.stitchNeighbors(context.Background(), []domain.RetrievedChunk{anchor}, filter, 1000)

	if len(index.seenFilters) == 0 {
		t.Fatal("no neighbor fetches recorded")
	}
	for _, seen := range index.seenFilters {
		if seen != filter {
			t.Fatalf("neighbor fetch bypassed the ACL filter: %q", seen)
		}
	}
}

func TestStitchNeighborsDisabledByDefault(t *testing.T) {
	index := &fakeIndex{
		neighbors: map[string]map[int]domain.Chunk{"doc-1": {6: neighborChunk("doc-1", 6, 30)}},
	}
	uc := newTestUseCase(t, index, &fakeJudge{}, nil, testBudget(), Options{})

	anchor := testChunk("c-anchor", "doc-1", domain.ChunkTypeText, 5, 100, "anchor")
	out := uc.stitchNeighbors(context.Background(), []domain.RetrievedChunk{anchor}, "{}", 1000)
	if len(out) != 1 {
		t.Fatalf("expected stitching off with zero MaxNeighbors, got %d chunks", len(out))
	}
}
