package domain

import "fmt"

// ChunkType tags the structural kind of a document fragment.
type ChunkType string

const (
	ChunkTypeText         ChunkType = "text"
	ChunkTypeTable        ChunkType = "table"
	ChunkTypeImageCaption ChunkType = "image_caption"
	ChunkTypeCode         ChunkType = "code"
)

// Chunk is a bounded fragment of a source document as persisted by ingestion.
// Its ID is deterministic so that citations never drift across reprocessing
// of an unchanged document.
type Chunk struct {
	ID            string    `json:"id"`
	DocID         string    `json:"doc_id"`
	ChunkType     ChunkType `json:"chunk_type"`
	Content       string    `json:"content"`
	TableMarkdown string    `json:"table_markdown,omitempty"`
	SectionPath   []string  `json:"section_path,omitempty"`
	PageStart     int       `json:"page_start"`
	PageEnd       int       `json:"page_end"`
	ReadingOrder  int       `json:"reading_order"`
	TableHeaders  []string  `json:"table_headers,omitempty"`
	FigureRef     string    `json:"figure_ref,omitempty"`
	TokenCount    int       `json:"token_count"`

	TenantID    string   `json:"tenant_id"`
	ACLGroups   []string `json:"acl_groups,omitempty"`
	Sensitivity int      `json:"sensitivity"`
	IsActive    bool     `json:"is_active"`
}

// ChunkID derives the stable identifier for a chunk. The same physical chunk
// always yields the same ID across pipeline runs and reprocessing.
func ChunkID(docID string, pageStart, pageEnd int, chunkType ChunkType, ordinal int) string {
	return fmt.Sprintf("%s:p%d-%d:%s:%d", docID, pageStart, pageEnd, chunkType, ordinal)
}

// RetrievedChunk is a Chunk annotated with per-stage scores. It is owned by a
// single request's pipeline execution and mutated additively as it moves
// through fusion, boosting and reranking.
type RetrievedChunk struct {
	Chunk

	VectorScore float64 `json:"vector_score"`
	BM25Score   float64 `json:"bm25_score"`
	RRFScore    float64 `json:"rrf_score"`
	FinalScore  float64 `json:"final_score"`

	RerankScore   float64 `json:"rerank_score,omitempty"`
	SupportScore  float64 `json:"support_score,omitempty"`
	CombinedScore float64 `json:"combined_score,omitempty"`

	// Stitched marks neighbor chunks pulled in for context rather than
	// retrieved by search.
	Stitched bool `json:"stitched,omitempty"`
}
