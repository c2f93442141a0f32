package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/docqa-platform/retrieval/internal/core/domain"
	"github.com/docqa-platform/retrieval/internal/core/ports"
	"github.com/docqa-platform/retrieval/internal/observability/metrics"
)

const serviceName = "retrieval"

type Router struct {
	retriever ports.Retriever
	metrics   *metrics.ServerMetrics
	limiter   *rate.Limiter
}

func NewRouter(retriever ports.Retriever, serverMetrics *metrics.ServerMetrics, limiter *rate.Limiter) *Router {
	return &Router{
		retriever: retriever,
		metrics:   serverMetrics,
		limiter:   limiter,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.Handle("/metrics", rt.metrics.Handler())
	mux.HandleFunc("/v1/retrieve", rt.retrieve)

	var handler http.Handler = mux
	handler = rateLimitMiddleware(rt.limiter, handler)
	handler = rt.metrics.Middleware(serviceName, handler)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type retrieveRequest struct {
	Query string `json:"query"`
	User  struct {
		UserID         string   `json:"user_id"`
		TenantID       string   `json:"tenant_id"`
		Groups         []string `json:"groups"`
		Roles          []string `json:"roles"`
		Department     string   `json:"department"`
		Region         string   `json:"region"`
		ClearanceLevel int      `json:"clearance_level"`
	} `json:"user"`
	ConversationBudgetTokens int `json:"conversation_budget_tokens"`
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	user := domain.UserContext{
		UserID:         req.User.UserID,
		TenantID:       req.User.TenantID,
		Groups:         req.User.Groups,
		Roles:          req.User.Roles,
		Department:     req.User.Department,
		Region:         req.User.Region,
		ClearanceLevel: req.User.ClearanceLevel,
	}

	start := time.Now()
	result, err := rt.retriever.Retrieve(r.Context(), req.Query, user, req.ConversationBudgetTokens)
	if err != nil {
		rt.metrics.RecordRetrieval(serviceName, "", "error", 0, 0, time.Since(start))
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	rt.metrics.RecordRetrieval(serviceName, string(result.Intent), "ok",
		len(result.Chunks), result.ContextTokens, time.Since(start))
	rt.metrics.RecordWarnings(serviceName, len(result.Warnings))
	rt.metrics.RecordJudgeFallbacks(serviceName, countJudgeFallbacks(result.Warnings))

	writeJSON(w, http.StatusOK, result)
}

func countJudgeFallbacks(warnings []string) int {
	count := 0
	for _, w := range warnings {
		if strings.HasPrefix(w, "judge fallback") {
			count++
		}
	}
	return count
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
