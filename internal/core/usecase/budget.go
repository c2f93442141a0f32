package usecase

import (
	"fmt"
	"strings"

	"github.com/docqa-platform/retrieval/internal/core/domain"
)

// TokenBudget fixes how the context window is split between the system
// prompt, the model's response reserve, and retrieved context. The split is
// validated once at startup; a split that can never leave room for context
// is a configuration error, not a per-request condition.
type TokenBudget struct {
	TotalContext    int
	SystemPrompt    int
	ResponseReserve int
}

func (b TokenBudget) Validate() error {
	if b.TotalContext <= 0 {
		return domain.WrapError(domain.ErrConfiguration, "token budget", fmt.Errorf("total context must be positive, got %d", b.TotalContext))
	}
	if b.SystemPrompt < 0 || b.ResponseReserve < 0 {
		return domain.WrapError(domain.ErrConfiguration, "token budget", fmt.Errorf("reserved budgets must be non-negative"))
	}
	if b.TotalContext-b.SystemPrompt-b.ResponseReserve <= 0 {
		return domain.WrapError(domain.ErrConfiguration, "token budget", fmt.Errorf(
			"system prompt (%d) + response reserve (%d) leave no room in context window (%d)",
			b.SystemPrompt, b.ResponseReserve, b.TotalContext))
	}
	return nil
}

// Available returns the tokens left for retrieved chunks after the query and
// conversation history are accounted for. Never negative.
func (b TokenBudget) Available(queryTokens, historyTokens int) int {
	available := b.TotalContext - b.SystemPrompt - b.ResponseReserve - queryTokens - historyTokens
	if available < 0 {
		return 0
	}
	return available
}

// EstimateTokens approximates token usage for budget accounting of query and
// history text. Four characters per token is the usual rough cut for English
// prose; chunk token counts come from ingestion and are exact.
func EstimateTokens(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}

// selectWithinBudget admits chunks in rank order, stopping at the first chunk
// that would exceed the budget. Ranking order is authoritative: a later chunk
// is never admitted ahead of an earlier one even if it would fit.
func selectWithinBudget(chunks []domain.RetrievedChunk, availableTokens int) []domain.RetrievedChunk {
	out := make([]domain.RetrievedChunk, 0, len(chunks))
	running := 0
	for _, chunk := range chunks {
		if running+chunk.TokenCount > availableTokens {
			break
		}
		running += chunk.TokenCount
		out = append(out, chunk)
	}
	return out
}

// formatContext renders the selected chunks as numbered, citation-ready
// sources, preserving their rank order. Returns the rendered context and the
// token total of the included chunks.
func formatContext(chunks []domain.RetrievedChunk) (string, int) {
	var b strings.Builder
	tokens := 0
	for i, chunk := range chunks {
		heading := strings.Join(chunk.SectionPath, " > ")
		if heading == "" {
			heading = chunk.DocID
		}
		fmt.Fprintf(&b, "Source %d: %s (pages %d-%d)\n", i+1, heading, chunk.PageStart, chunk.PageEnd)

		content := chunk.Content
		if chunk.ChunkType == domain.ChunkTypeTable && chunk.TableMarkdown != "" {
			content = chunk.TableMarkdown
		}
		b.WriteString(strings.TrimSpace(content))
		b.WriteString("\n\n")
		tokens += chunk.TokenCount
	}
	return strings.TrimRight(b.String(), "\n"), tokens
}
