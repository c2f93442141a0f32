package usecase

import (
	"strings"

	"github.com/docqa-platform/retrieval/internal/core/domain"
)

const maxJudgeSnippet = 2000

func chunkSnippet(chunk domain.RetrievedChunk) string {
	content := chunk.Content
	if chunk.ChunkType == domain.ChunkTypeTable && chunk.TableMarkdown != "" {
		content = chunk.TableMarkdown
	}
	if len(content) > maxJudgeSnippet {
		content = content[:maxJudgeSnippet]
	}
	return content
}

func buildRelevancePrompt(query string, chunk domain.RetrievedChunk) string {
	return `You grade how relevant a document fragment is to a question.
Return strict JSON object with keys:
relevance (number from 0 to 3, 0 = unrelated, 3 = directly answers), reasoning (short string).
No markdown, no extra keys.

Question:
` + query + `

Fragment:
` + chunkSnippet(chunk)
}

func buildSupportPrompt(query string, chunk domain.RetrievedChunk) string {
	return `You check whether a document fragment contains explicit evidence answering a question.
Return strict JSON object with keys:
support (number from 0 to 1), has_explicit_evidence (boolean), evidence (the exact supporting excerpt, or empty string).
No markdown, no extra keys.

Question:
` + query + `

Fragment:
` + chunkSnippet(chunk)
}

func buildAnalysisPrompt(query string, chunk domain.RetrievedChunk) string {
	return `You explain, for an audit trail, why a document fragment does or does not answer a question.
Return strict JSON object with keys:
analysis (string, at most three sentences).
No markdown, no extra keys.

Question:
` + query + `

Fragment:
` + chunkSnippet(chunk)
}

func buildColumnPrompt(query string) string {
	return `You name which table column headers would be relevant to answer a question.
Return strict JSON object with keys:
columns (array of strings, the likely column header names).
No markdown, no extra keys.

Question:
` + query
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
