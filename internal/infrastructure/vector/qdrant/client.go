package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docqa-platform/retrieval/internal/core/domain"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "sparse"
)

// Client is the qdrant-backed search index. Dense and sparse vectors live in
// one collection under named vectors; the keyword modality searches the sparse
// vector built by the hashed BM25 encoder.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) VectorSearch(ctx context.Context, embedding []float32, filter string, k int) ([]domain.RetrievedChunk, error) {
	reqBody := map[string]any{
		"vector": map[string]any{
			"name":   denseVectorName,
			"vector": embedding,
		},
		"limit":        k,
		"with_payload": true,
	}
	if err := attachFilter(reqBody, filter); err != nil {
		return nil, err
	}
	return c.search(ctx, reqBody, func(chunk *domain.RetrievedChunk, score float64) {
		chunk.VectorScore = score
	})
}

func (c *Client) KeywordSearch(ctx context.Context, text string, filter string, k int) ([]domain.RetrievedChunk, error) {
	sparse := encodeSparseQuery(text)
	if len(sparse.Indices) == 0 {
		return nil, nil
	}

	reqBody := map[string]any{
		"vector": map[string]any{
			"name":   sparseVectorName,
			"vector": sparse,
		},
		"limit":        k,
		"with_payload": true,
	}
	if err := attachFilter(reqBody, filter); err != nil {
		return nil, err
	}
	return c.search(ctx, reqBody, func(chunk *domain.RetrievedChunk, score float64) {
		chunk.BM25Score = score
	})
}

// GetChunkByPosition scrolls for the chunk at the given reading order within a
// document. The caller's access filter is merged in so a neighbor outside the
// user's clearance is simply not found. Returns nil when no chunk exists.
func (c *Client) GetChunkByPosition(ctx context.Context, docID string, readingOrder int, filter string) (*domain.Chunk, error) {
	must := []map[string]any{
		{"key": "doc_id", "match": map[string]any{"value": docID}},
		{"key": "reading_order", "match": map[string]any{"value": readingOrder}},
	}
	merged := map[string]any{"must": must}
	if filter != "" {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(filter), &parsed); err != nil {
			return nil, fmt.Errorf("parse access filter: %w", err)
		}
		if extra, ok := parsed["must"].([]any); ok {
			merged["must"] = append(anySlice(must), extra...)
		}
	}

	reqBody := map[string]any{
		"filter":       merged,
		"limit":        1,
		"with_payload": true,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal scroll body: %w", err)
	}

	var scrollResp struct {
		Result struct {
			Points []struct {
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	if err := c.post(ctx, "/points/scroll", body, &scrollResp, "scroll"); err != nil {
		return nil, err
	}
	if len(scrollResp.Result.Points) == 0 {
		return nil, nil
	}

	chunk, err := decodePayload(scrollResp.Result.Points[0].Payload)
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

func (c *Client) search(ctx context.Context, reqBody map[string]any, setScore func(*domain.RetrievedChunk, float64)) ([]domain.RetrievedChunk, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := c.post(ctx, "/points/search", body, &searchResp, "search"); err != nil {
		return nil, err
	}

	out := make([]domain.RetrievedChunk, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		chunk, err := decodePayload(r.Payload)
		if err != nil {
			return nil, err
		}
		retrieved := domain.RetrievedChunk{Chunk: chunk}
		setScore(&retrieved, r.Score)
		out = append(out, retrieved)
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte, out any, operation string) error {
	url := fmt.Sprintf("%s/collections/%s%s", c.baseURL, c.collection, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if trimmed := strings.TrimSpace(string(msg)); trimmed != "" {
			return fmt.Errorf("qdrant %s status: %s: %s", operation, resp.Status, trimmed)
		}
		return fmt.Errorf("qdrant %s status: %s", operation, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

// attachFilter parses the opaque access-filter expression and attaches it to
// the request. An unparseable filter fails closed rather than searching wide.
func attachFilter(reqBody map[string]any, filter string) error {
	if filter == "" {
		return nil
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(filter), &parsed); err != nil {
		return fmt.Errorf("parse access filter: %w", err)
	}
	reqBody["filter"] = parsed
	return nil
}

// decodePayload maps a point payload onto the chunk schema via its JSON tags.
func decodePayload(payload map[string]any) (domain.Chunk, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.Chunk{}, fmt.Errorf("marshal payload: %w", err)
	}
	var chunk domain.Chunk
	if err := json.Unmarshal(raw, &chunk); err != nil {
		return domain.Chunk{}, fmt.Errorf("decode chunk payload: %w", err)
	}
	return chunk, nil
}

func anySlice(in []map[string]any) []any {
	out := make([]any, 0, len(in))
	for _, v := range in {
		out = append(out, v)
	}
	return out
}
