package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mosarlab/graphrag/internal/config"
	"github.com/mosarlab/graphrag/internal/core/domain"
	"github.com/mosarlab/graphrag/internal/infrastructure/cache"
	"github.com/mosarlab/graphrag/internal/observability/metrics"
)

type fakeQueryService struct {
	answer    *domain.Answer
	err       error
	events    []domain.StreamEvent
	streamErr error
	questions []string
}

func (f *fakeQueryService) Query(_ context.Context, question string) (*domain.Answer, error) {
	f.questions = append(f.questions, question)
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

func (f *fakeQueryService) QueryStream(_ context.Context, question string) (<-chan domain.StreamEvent, error) {
	f.questions = append(f.questions, question)
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	events := make(chan domain.StreamEvent, len(f.events))
	for _, event := range f.events {
		events <- event
	}
	close(events)
	return events, nil
}

type fakeGraphStore struct {
	rows    []domain.GraphRow
	err     error
	queries []string
}

func (f *fakeGraphStore) ExecuteRead(_ context.Context, query string, _ map[string]any) ([]domain.GraphRow, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

func (f *fakeGraphStore) VectorQuery(context.Context, string, int, []float32) ([]domain.GraphRow, error) {
	return nil, nil
}

func (f *fakeGraphStore) Explain(context.Context, string) error {
	return nil
}

type fakeHistoryReader struct {
	records []domain.AnswerRecord
	err     error
}

func (f *fakeHistoryReader) ListRecent(_ context.Context, _ int) ([]domain.AnswerRecord, error) {
	return f.records, f.err
}

func newTestHandler(cfg config.Config) http.Handler {
	service := &fakeQueryService{
		answer: &domain.Answer{Text: "ok", Citations: []domain.Citation{}},
	}
	rt := NewRouter(service, &fakeGraphStore{}, RouterOptions{
		RateLimitRPS:     cfg.APIRateLimitRPS,
		RateLimitBurst:   cfg.APIRateLimitBurst,
		MaxInFlight:      cfg.APIMaxInFlight,
		BackpressureWait: time.Duration(cfg.APIBackpressureWaitMS) * time.Millisecond,
	})
	return rt.Handler()
}

func TestHealthzReportsOK(t *testing.T) {
	handler := newTestHandler(config.Config{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id header")
	}
}

func TestQueryReturnsAnswer(t *testing.T) {
	service := &fakeQueryService{
		answer: &domain.Answer{
			Text:      "FuncR_S110 requires launch lock survival.",
			Citations: []domain.Citation{{Type: domain.CitationRequirement, ID: "FuncR_S110", Source: "SRD"}},
			Metadata:  domain.AnswerMetadata{QueryPath: domain.PathTemplate, Language: "en"},
		},
	}
	rt := NewRouter(service, &fakeGraphStore{}, RouterOptions{})

	body := strings.NewReader(`{"question": "What is FuncR_S110?"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/query", body)
	res := httptest.NewRecorder()
	rt.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var answer domain.Answer
	if err := json.NewDecoder(res.Body).Decode(&answer); err != nil {
		t.Fatalf("decode answer: %v", err)
	}
	if answer.Text != service.answer.Text {
		t.Fatalf("unexpected answer text %q", answer.Text)
	}
	if len(answer.Citations) != 1 || answer.Citations[0].ID != "FuncR_S110" {
		t.Fatalf("unexpected citations %+v", answer.Citations)
	}
	if len(service.questions) != 1 || service.questions[0] != "What is FuncR_S110?" {
		t.Fatalf("service received questions %v", service.questions)
	}
}

func TestQueryRecordsMetricsAndCacheGauges(t *testing.T) {
	resultCache := cache.NewMemory(cache.Options{})
	serverMetrics := metrics.NewHTTPServerMetrics("test")
	service := &fakeQueryService{
		answer: &domain.Answer{
			Text:      "WM attaches via HOTDOCK.",
			Citations: []domain.Citation{{Type: domain.CitationComponent, ID: "WM", Source: "MOSAR System"}},
			Metadata: domain.AnswerMetadata{
				QueryPath:        domain.PathHybrid,
				FallbackReason:   "template query returned no rows",
				ProcessingTimeMS: 12.5,
				Language:         "en",
			},
		},
	}
	rt := NewRouter(service, &fakeGraphStore{}, RouterOptions{
		ServiceName: "test",
		Cache:       resultCache,
		Metrics:     serverMetrics,
	})
	handler := rt.Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"question": "How does WM attach?"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	metricsReq := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	metricsRes := httptest.NewRecorder()
	handler.ServeHTTP(metricsRes, metricsReq)
	if metricsRes.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics endpoint, got %d", metricsRes.Code)
	}

	body := metricsRes.Body.String()
	for _, series := range []string{
		`graphrag_query_total{path="hybrid",service="test"} 1`,
		`graphrag_query_fallback_total{service="test"} 1`,
		`graphrag_cache_answer_lookups_total{outcome="miss",service="test"} 1`,
		`graphrag_cache_evictions{service="test"} 0`,
		`graphrag_cache_entries{service="test"} 0`,
	} {
		if !strings.Contains(body, series) {
			t.Fatalf("expected series %q in metrics output:\n%s", series, body)
		}
	}
}

func TestQueryRejectsBadRequests(t *testing.T) {
	rt := NewRouter(&fakeQueryService{}, &fakeGraphStore{}, RouterOptions{})
	handler := rt.Handler()

	cases := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{"question": `},
		{name: "blank question", body: `{"question": "   "}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(tc.body))
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			if res.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", res.Code)
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/query", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", res.Code)
	}
}

func TestQueryMapsServiceErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "invalid input",
			err:        fmt.Errorf("query: %w", domain.ErrInvalidInput),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "temporary failure",
			err:        domain.WrapError(domain.ErrTemporary, "neo4j read", errors.New("connection refused")),
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "unknown failure",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rt := NewRouter(&fakeQueryService{err: tc.err}, &fakeGraphStore{}, RouterOptions{})
			req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"question": "q"}`))
			res := httptest.NewRecorder()
			rt.Handler().ServeHTTP(res, req)
			if res.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, res.Code)
			}
		})
	}
}

func TestQueryStreamWritesSSEFrames(t *testing.T) {
	done := &domain.Answer{
		Text:     "R-ICU routes the CAN bus.",
		Metadata: domain.AnswerMetadata{QueryPath: domain.PathVector, Language: "en"},
	}
	service := &fakeQueryService{
		events: []domain.StreamEvent{
			{Status: "Routing query..."},
			{Chunk: "R-ICU routes "},
			{Chunk: "the CAN bus."},
			{Done: done},
		},
	}
	rt := NewRouter(service, &fakeGraphStore{}, RouterOptions{})

	req := httptest.NewRequest(http.MethodPost, "/v1/query/stream", strings.NewReader(`{"question": "What does R-ICU do?"}`))
	res := httptest.NewRecorder()
	rt.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if got := res.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("expected SSE content type, got %q", got)
	}

	body := res.Body.String()
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Fatalf("expected terminal DONE frame, got %q", body)
	}
	frames := strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n")
	if len(frames) != len(service.events)+1 {
		t.Fatalf("expected %d frames, got %d: %q", len(service.events)+1, len(frames), body)
	}
	for _, frame := range frames {
		if !strings.HasPrefix(frame, "data: ") {
			t.Fatalf("frame missing data prefix: %q", frame)
		}
	}

	var first domain.StreamEvent
	if err := json.Unmarshal([]byte(strings.TrimPrefix(frames[0], "data: ")), &first); err != nil {
		t.Fatalf("decode first frame: %v", err)
	}
	if first.Status != "Routing query..." {
		t.Fatalf("unexpected first frame %+v", first)
	}
	var last domain.StreamEvent
	if err := json.Unmarshal([]byte(strings.TrimPrefix(frames[len(frames)-2], "data: ")), &last); err != nil {
		t.Fatalf("decode done frame: %v", err)
	}
	if last.Done == nil || last.Done.Text != done.Text {
		t.Fatalf("unexpected done frame %+v", last)
	}
}

func TestQueryStreamMapsSetupErrors(t *testing.T) {
	rt := NewRouter(&fakeQueryService{streamErr: fmt.Errorf("stream: %w", domain.ErrInvalidInput)}, &fakeGraphStore{}, RouterOptions{})

	req := httptest.NewRequest(http.MethodPost, "/v1/query/stream", strings.NewReader(`{"question": "q"}`))
	res := httptest.NewRecorder()
	rt.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestCoverageStatsRunsTemplate(t *testing.T) {
	graph := &fakeGraphStore{
		rows: []domain.GraphRow{{
			"total_requirements":    int64(120),
			"verified_requirements": int64(90),
			"coverage_percentage":   75.0,
		}},
	}
	rt := NewRouter(&fakeQueryService{}, graph, RouterOptions{})

	req := httptest.NewRequest(http.MethodGet, "/v1/stats/coverage", nil)
	res := httptest.NewRecorder()
	rt.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if len(graph.queries) != 1 || !strings.Contains(graph.queries[0], "coverage_percentage") {
		t.Fatalf("unexpected queries %v", graph.queries)
	}
	var resp struct {
		Rows  []map[string]any `json:"rows"`
		Count int              `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 1 || len(resp.Rows) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestProtocolStatsRequiresName(t *testing.T) {
	rt := NewRouter(&fakeQueryService{}, &fakeGraphStore{}, RouterOptions{})

	req := httptest.NewRequest(http.MethodGet, "/v1/stats/protocols/", nil)
	res := httptest.NewRecorder()
	rt.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing protocol, got %d", res.Code)
	}
}

func TestComponentSectionsPassesNameToTemplate(t *testing.T) {
	graph := &fakeGraphStore{}
	rt := NewRouter(&fakeQueryService{}, graph, RouterOptions{})

	req := httptest.NewRequest(http.MethodGet, "/v1/stats/components/R-ICU?limit=3", nil)
	res := httptest.NewRecorder()
	rt.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if len(graph.queries) != 1 || !strings.Contains(graph.queries[0], "MENTIONS") {
		t.Fatalf("unexpected queries %v", graph.queries)
	}
}

func TestCacheStatsWithoutCacheIs404(t *testing.T) {
	rt := NewRouter(&fakeQueryService{}, &fakeGraphStore{}, RouterOptions{})

	req := httptest.NewRequest(http.MethodGet, "/v1/cache/stats", nil)
	res := httptest.NewRecorder()
	rt.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when cache disabled, got %d", res.Code)
	}
}

func TestRecentHistoryListsRecords(t *testing.T) {
	history := &fakeHistoryReader{
		records: []domain.AnswerRecord{
			{ID: "a1", Question: "What is FuncR_S110?", QueryPath: domain.PathTemplate},
		},
	}
	rt := NewRouter(&fakeQueryService{}, &fakeGraphStore{}, RouterOptions{History: history})

	req := httptest.NewRequest(http.MethodGet, "/v1/history?limit=10", nil)
	res := httptest.NewRecorder()
	rt.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var resp struct {
		Records []domain.AnswerRecord `json:"records"`
		Count   int                   `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 1 || resp.Records[0].ID != "a1" {
		t.Fatalf("unexpected response %+v", resp)
	}
}
