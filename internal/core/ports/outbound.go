package ports

import (
	"context"

	"github.com/docqa-platform/retrieval/internal/core/domain"
)

// SearchIndex is the external vector/keyword index. The filter argument is an
// opaque boolean-expression string produced by the ACL filter builder; the
// index applies it before ranking so unauthorized chunks are never returned.
type SearchIndex interface {
	VectorSearch(ctx context.Context, embedding []float32, filter string, k int) ([]domain.RetrievedChunk, error)
	KeywordSearch(ctx context.Context, text string, filter string, k int) ([]domain.RetrievedChunk, error)
	GetChunkByPosition(ctx context.Context, docID string, readingOrder int, filter string) (*domain.Chunk, error)
}

// Embedder builds query vectors, fixed dimensionality per deployment.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Judge is the LLM scoring endpoint used by the cross-encoder reranker. The
// response is expected to be JSON but not guaranteed; callers must absorb
// malformed output.
type Judge interface {
	Score(ctx context.Context, prompt string) (string, error)
}

// GlossaryStore loads the abbreviation glossary used by query expansion.
type GlossaryStore interface {
	LoadGlossary(ctx context.Context) (map[string]string, error)
}

// AuditPublisher emits per-request retrieval audit events for the compliance
// collaborator. Implementations must be best-effort; a publish failure is
// logged, never surfaced.
type AuditPublisher interface {
	PublishRetrievalAudit(ctx context.Context, event domain.AuditEvent) error
}
