package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/docqa-platform/retrieval/internal/infrastructure/resilience"
)

// Client talks to an ollama-compatible endpoint for query embedding and judge
// scoring. All calls go through the shared resilience executor; retry and
// breaker behavior is classified per error, so a cancelled request is never
// retried and a 4xx never trips the breaker.
type Client struct {
	baseURL    string
	judgeModel string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, judgeModel, embedModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		judgeModel: judgeModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": e.client.embedModel,
		"input": []string{text},
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := e.client.call(ctx, "llm.embed", func(ctx context.Context) error {
		return e.client.postJSON(ctx, "/api/embed", request, &response, "embed")
	})
	if err != nil {
		return nil, err
	}
	if len(response.Embeddings) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return response.Embeddings[0], nil
}

// Judge scores reranker prompts. Responses are requested in JSON mode but the
// raw text is returned as-is; the caller owns parsing and fallback.
type Judge struct {
	client *Client
}

func NewJudge(client *Client) *Judge {
	return &Judge{client: client}
}

func (j *Judge) Score(ctx context.Context, prompt string) (string, error) {
	request := map[string]any{
		"model":  j.client.judgeModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	}

	var response struct {
		Response string `json:"response"`
	}
	err := j.client.call(ctx, "llm.judge", func(ctx context.Context) error {
		return j.client.postJSON(ctx, "/api/generate", request, &response, "judge")
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func (c *Client) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return wrapTemporaryIfNeeded(operation, fn(ctx))
	}
	return wrapTemporaryIfNeeded(operation, c.executor.Execute(ctx, operation, fn, classifyModelError))
}
