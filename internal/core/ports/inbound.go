package ports

import (
	"context"

	"github.com/docqa-platform/retrieval/internal/core/domain"
)

// Retriever is the inbound contract for the retrieval pipeline: security
// trimmed, relevance ranked, token-budget bounded context for one query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, user domain.UserContext, conversationBudgetTokens int) (*domain.RetrievalResult, error)
}
