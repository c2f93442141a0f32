package domain

import "time"

// RetrievalResult is what the retrieval core hands to the answer-generation
// and citation-extraction collaborators.
type RetrievalResult struct {
	Chunks           []RetrievedChunk `json:"chunks"`
	Scores           []ChunkScore     `json:"scores"`
	AssembledContext string           `json:"assembled_context"`
	Intent           QueryIntent      `json:"intent"`
	IntentConfidence float64          `json:"intent_confidence"`
	QueriesUsed      []string         `json:"queries_used"`
	Warnings         []string         `json:"warnings,omitempty"`
	ContextTokens    int              `json:"context_tokens"`
}

// AuditEvent is the per-request record published for the compliance
// collaborator. Publishing is best-effort and never fails the request.
type AuditEvent struct {
	ID         string      `json:"id"`
	RequestID  string      `json:"request_id,omitempty"`
	UserID     string      `json:"user_id"`
	TenantID   string      `json:"tenant_id"`
	QueryHash  string      `json:"query_hash"`
	Intent     QueryIntent `json:"intent"`
	ChunkIDs   []string    `json:"chunk_ids"`
	Warnings   []string    `json:"warnings,omitempty"`
	DurationMS float64     `json:"duration_ms"`
	CreatedAt  time.Time   `json:"created_at"`
}
