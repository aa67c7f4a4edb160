// Package httpadapter exposes the question-answering service over HTTP:
// a JSON query endpoint, an SSE streaming variant, and read-only stats
// endpoints backed by the template library.
package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mosarlab/graphrag/internal/core/cypher"
	"github.com/mosarlab/graphrag/internal/core/domain"
	"github.com/mosarlab/graphrag/internal/core/ports"
	"github.com/mosarlab/graphrag/internal/infrastructure/cache"
	"github.com/mosarlab/graphrag/internal/observability/metrics"
)

// HistoryReader lists recently answered questions.
type HistoryReader interface {
	ListRecent(ctx context.Context, limit int) ([]domain.AnswerRecord, error)
}

type RouterOptions struct {
	ServiceName      string
	Cache            *cache.Memory
	History          HistoryReader
	Metrics          *metrics.HTTPServerMetrics
	Logger           *slog.Logger
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxInFlight      int
	BackpressureWait time.Duration
}

type Router struct {
	service   ports.QueryService
	graph     ports.GraphStore
	templates cypher.Templates
	options   RouterOptions
	logger    *slog.Logger
}

func NewRouter(service ports.QueryService, graph ports.GraphStore, options RouterOptions) *Router {
	if options.ServiceName == "" {
		options.ServiceName = "api"
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		service: service,
		graph:   graph,
		options: options,
		logger:  logger,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/query", rt.query)
	mux.HandleFunc("/v1/query/stream", rt.queryStream)
	mux.HandleFunc("/v1/stats/coverage", rt.coverageStats)
	mux.HandleFunc("/v1/stats/unverified", rt.unverifiedStats)
	mux.HandleFunc("/v1/stats/protocols/", rt.protocolStats)
	mux.HandleFunc("/v1/stats/components/", rt.componentSections)
	mux.HandleFunc("/v1/cache/stats", rt.cacheStats)
	mux.HandleFunc("/v1/history", rt.recentHistory)
	if rt.options.Metrics != nil {
		mux.Handle("/metrics", rt.options.Metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.options.Metrics != nil {
		handler = rt.options.Metrics.Middleware(rt.options.ServiceName, handler)
	}
	if rt.options.MaxInFlight > 0 {
		handler = backpressureMiddleware(handler, rt.options.MaxInFlight, rt.options.BackpressureWait)
	}
	if rt.options.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.options.RateLimitRPS, rt.options.RateLimitBurst)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type queryRequest struct {
	Question string `json:"question"`
}

func (rt *Router) query(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQueryRequest(w, r)
	if !ok {
		return
	}

	answer, err := rt.service.Query(r.Context(), req.Question)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	rt.observeAnswer(answer)
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) queryStream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQueryRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming is not supported by response writer"})
		return
	}

	events, err := rt.service.QueryStream(r.Context(), req.Question)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			rt.logger.Error("marshal stream event", "error", err)
			continue
		}
		if _, err := w.Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
			return
		}
		flusher.Flush()
		if event.Done != nil {
			rt.observeAnswer(event.Done)
		}
	}

	if _, err := w.Write([]byte("data: [DONE]\n\n")); err != nil {
		return
	}
	flusher.Flush()
}

func decodeQueryRequest(w http.ResponseWriter, r *http.Request) (queryRequest, bool) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return queryRequest{}, false
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return queryRequest{}, false
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return queryRequest{}, false
	}
	return req, true
}

func (rt *Router) observeAnswer(answer *domain.Answer) {
	m := rt.options.Metrics
	if m == nil || answer == nil {
		return
	}

	meta := answer.Metadata
	duration := time.Duration(meta.ProcessingTimeMS * float64(time.Millisecond))
	m.RecordCacheLookup(rt.options.ServiceName, meta.CacheHit)
	m.RecordQueryObservation(rt.options.ServiceName, string(meta.QueryPath), len(answer.Citations), duration, len(answer.Citations) == 0)
	if meta.FallbackReason != "" {
		m.RecordFallback(rt.options.ServiceName)
	}
	if rt.options.Cache != nil {
		stats := rt.options.Cache.Stats()
		m.SetCacheGauges(rt.options.ServiceName, stats.Evictions, stats.Entries)
	}
}

func (rt *Router) coverageStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	rt.runTemplate(w, r, rt.templates.TestCoverage())
}

func (rt *Router) unverifiedStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	requirementType := strings.TrimSpace(r.URL.Query().Get("type"))
	rt.runTemplate(w, r, rt.templates.UnverifiedRequirements(requirementType))
}

func (rt *Router) protocolStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/v1/stats/protocols/")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "protocol name is required"})
		return
	}
	rt.runTemplate(w, r, rt.templates.ProtocolRequirements(name))
}

func (rt *Router) componentSections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	componentID := strings.TrimPrefix(r.URL.Path, "/v1/stats/components/")
	if componentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "component id is required"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rt.runTemplate(w, r, rt.templates.SectionsMentioningComponent(componentID, limit))
}

func (rt *Router) runTemplate(w http.ResponseWriter, r *http.Request, query cypher.Query) {
	rows, err := rt.graph.ExecuteRead(r.Context(), query.Text, query.Params)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows, "count": len(rows)})
}

func (rt *Router) cacheStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if rt.options.Cache == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "cache is disabled"})
		return
	}
	writeJSON(w, http.StatusOK, rt.options.Cache.Stats())
}

func (rt *Router) recentHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if rt.options.History == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "history is disabled"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := rt.options.History.ListRecent(r.Context(), limit)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
