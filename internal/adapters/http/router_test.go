package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/time/rate"

	"github.com/docqa-platform/retrieval/internal/core/domain"
	"github.com/docqa-platform/retrieval/internal/observability/metrics"
)

type stubRetriever struct {
	result *domain.RetrievalResult
	err    error

	gotQuery  string
	gotUser   domain.UserContext
	gotBudget int
	gotReqID  string
}

func (s *stubRetriever) Retrieve(ctx context.Context, query string, user domain.UserContext, budget int) (*domain.RetrievalResult, error) {
	s.gotQuery = query
	s.gotUser = user
	s.gotBudget = budget
	s.gotReqID = domain.RequestIDFromContext(ctx)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newTestRouter(stub *stubRetriever, limiter *rate.Limiter) http.Handler {
	return NewRouter(stub, metrics.NewServerMetrics(serviceName), limiter).Handler()
}

func retrieveBody() string {
	return `{
		"query": "what is the cost of tier 3 support",
		"user": {"user_id": "u-1", "tenant_id": "t-1", "groups": ["eng"], "clearance_level": 2},
		"conversation_budget_tokens": 300
	}`
}

func TestRetrieveEndpointReturnsResult(t *testing.T) {
	stub := &stubRetriever{result: &domain.RetrievalResult{
		Intent:           domain.IntentTableLookup,
		AssembledContext: "Source 1: pricing (pages 2-2)",
		ContextTokens:    42,
	}}
	handler := newTestRouter(stub, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/retrieve", strings.NewReader(retrieveBody())))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result domain.RetrievalResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Intent != domain.IntentTableLookup || result.ContextTokens != 42 {
		t.Fatalf("unexpected result %+v", result)
	}

	if stub.gotQuery != "what is the cost of tier 3 support" {
		t.Fatalf("query not forwarded: %q", stub.gotQuery)
	}
	if stub.gotUser.TenantID != "t-1" || stub.gotUser.ClearanceLevel != 2 {
		t.Fatalf("user context not forwarded: %+v", stub.gotUser)
	}
	if stub.gotBudget != 300 {
		t.Fatalf("budget not forwarded: %d", stub.gotBudget)
	}
}

func TestRetrieveEndpointPropagatesRequestID(t *testing.T) {
	stub := &stubRetriever{result: &domain.RetrievalResult{}}
	handler := newTestRouter(stub, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/retrieve", strings.NewReader(retrieveBody()))
	req.Header.Set(requestIDHeader, "req-abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if stub.gotReqID != "req-abc" {
		t.Fatalf("request id not propagated into context: %q", stub.gotReqID)
	}
	if rec.Header().Get(requestIDHeader) != "req-abc" {
		t.Fatalf("request id not echoed: %q", rec.Header().Get(requestIDHeader))
	}
}

func TestRetrieveEndpointGeneratesRequestID(t *testing.T) {
	stub := &stubRetriever{result: &domain.RetrievalResult{}}
	handler := newTestRouter(stub, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/retrieve", strings.NewReader(retrieveBody())))

	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected a generated request id header")
	}
}

func TestRetrieveEndpointErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.WrapError(domain.ErrInvalidInput, "retrieve", context.DeadlineExceeded), http.StatusBadRequest},
		{domain.WrapError(domain.ErrIndexUnavailable, "hybrid search", context.DeadlineExceeded), http.StatusServiceUnavailable},
		{domain.WrapError(domain.ErrTemporary, "llm.judge", context.DeadlineExceeded), http.StatusServiceUnavailable},
		{domain.WrapError(domain.ErrConfiguration, "token budget", context.DeadlineExceeded), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		handler := newTestRouter(&stubRetriever{err: tc.err}, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/retrieve", strings.NewReader(retrieveBody())))
		if rec.Code != tc.want {
			t.Fatalf("error %v: expected %d, got %d", tc.err, tc.want, rec.Code)
		}
	}
}

func TestRetrieveEndpointRejectsBadRequests(t *testing.T) {
	handler := newTestRouter(&stubRetriever{result: &domain.RetrievalResult{}}, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/retrieve", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/retrieve", strings.NewReader("{not json")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid json, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/retrieve", strings.NewReader(`{"query":"  "}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank query, got %d", rec.Code)
	}
}

func TestRateLimitShedsExcessLoad(t *testing.T) {
	stub := &stubRetriever{result: &domain.RetrievalResult{}}
	handler := newTestRouter(stub, rate.NewLimiter(rate.Limit(1), 1))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/retrieve", strings.NewReader(retrieveBody())))
	if rec.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/retrieve", strings.NewReader(retrieveBody())))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be shed, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	handler := newTestRouter(&stubRetriever{result: &domain.RetrievalResult{}}, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	handler := newTestRouter(&stubRetriever{result: &domain.RetrievalResult{}}, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
