package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mosarlab/graphrag/internal/core/cypher"
	"github.com/mosarlab/graphrag/internal/core/domain"
	"github.com/mosarlab/graphrag/internal/core/ports"
	"github.com/mosarlab/graphrag/internal/core/routing"
)

const (
	vectorIndexName = "section_embeddings"
	vectorSearchK   = 10

	// Generated queries below this confidence are discarded in favor of
	// the deterministic pattern rules.
	dynamicConfidenceFloor = 0.5
)

// Workflow is the retrieval orchestrator: a fixed state machine of
// ROUTE → {TEMPLATE_QUERY | SEMANTIC_SEARCH} → … → SYNTHESIZE with one
// legal fallback transition, Template→Hybrid. One instance serves many
// concurrent questions; all mutable state lives in the per-question
// QueryState.
type Workflow struct {
	router    *routing.Router
	templates cypher.Templates
	generator *cypher.Generator
	extractor *EntityExtractor
	synth     *Synthesizer
	graph     ports.GraphStore
	embedder  ports.Embedder
	cache     ports.ResultCache  // optional
	history   ports.HistoryStore // optional
	logger    *slog.Logger
}

// WorkflowDeps carries the orchestrator's collaborators. Cache and
// history are optional; everything else is required.
type WorkflowDeps struct {
	Router    *routing.Router
	Generator *cypher.Generator
	Extractor *EntityExtractor
	Synth     *Synthesizer
	Graph     ports.GraphStore
	Embedder  ports.Embedder
	Cache     ports.ResultCache
	History   ports.HistoryStore
	Logger    *slog.Logger
}

func NewWorkflow(deps WorkflowDeps) *Workflow {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{
		router:    deps.Router,
		generator: deps.Generator,
		extractor: deps.Extractor,
		synth:     deps.Synth,
		graph:     deps.Graph,
		embedder:  deps.Embedder,
		cache:     deps.Cache,
		history:   deps.History,
		logger:    logger,
	}
}

// Query runs the full pipeline for one question. The caller always
// receives a well-formed answer; stage failures surface through
// metadata.error and the not-found template, never as a returned error
// (only empty input is rejected outright).
func (w *Workflow) Query(ctx context.Context, question string) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("query: empty question: %w", domain.ErrInvalidInput)
	}

	if w.cache != nil {
		if cached, ok := w.cache.GetAnswer(question); ok {
			w.logger.Info("answer cache hit", "question", question)
			hit := *cached
			hit.Metadata.CacheHit = true
			return &hit, nil
		}
	}

	start := time.Now()
	state := w.newState(question)
	w.run(ctx, state)
	w.synth.Synthesize(ctx, state)
	state.ProcessingMS = float64(time.Since(start).Microseconds()) / 1000.0

	answer := buildAnswer(state)
	if w.cache != nil && state.Error == "" {
		w.cache.SetAnswer(question, answer)
	}
	w.recordHistory(ctx, state)

	w.logger.Info("query completed",
		"path", state.Routing.Path,
		"confidence", state.Routing.Confidence,
		"rows", len(state.GraphRows),
		"duration_ms", state.ProcessingMS)
	return answer, nil
}

// newState routes the question and seeds the execution state.
func (w *Workflow) newState(question string) *domain.QueryState {
	state := &domain.QueryState{
		Question: question,
		Language: DetectLanguage(question),
	}
	state.Routing = w.router.Route(question)
	return state
}

// run executes the retrieval stages up to (not including) synthesis.
func (w *Workflow) run(ctx context.Context, state *domain.QueryState) {
	if state.Routing.Path == domain.PathTemplate {
		w.runTemplateQuery(ctx, state)
		if !w.templateSucceeded(state) {
			w.fallBackToHybrid(state)
		}
	}

	switch state.Routing.Path {
	case domain.PathHybrid:
		w.runSemanticSearch(ctx, state)
		state.ExtractedEntities = w.extractor.Extract(ctx, state.Question, state.Passages)
		w.runDynamicQuery(ctx, state)
	case domain.PathVector:
		w.runSemanticSearch(ctx, state)
	}
}

func (w *Workflow) templateSucceeded(state *domain.QueryState) bool {
	return state.TemplateMissing == "" && len(state.GraphRows) > 0
}

// fallBackToHybrid performs the single legal path downgrade and records
// why. Both "no template" and "template returned zero rows" take this
// transition; there is no second fallback after hybrid.
func (w *Workflow) fallBackToHybrid(state *domain.QueryState) {
	reason := state.TemplateMissing
	if reason == "" {
		reason = "template query returned no rows"
	}
	if !state.Routing.Path.CanDowngradeTo(domain.PathHybrid) {
		return
	}
	state.Routing.Path = domain.PathHybrid
	state.FallbackReason = reason
	state.GraphRows = nil
	w.logger.Warn("falling back to hybrid path", "reason", reason)
}

func (w *Workflow) runTemplateQuery(ctx context.Context, state *domain.QueryState) {
	query, name, err := w.templates.Select(state.Routing.MatchedEntities)
	if err != nil {
		state.TemplateMissing = "no template available for matched entities"
		return
	}

	state.QueryText = query.Text
	state.QueryMethod = "template"
	w.logger.Info("running template query", "template", name)

	rows, err := w.executeQuery(ctx, query)
	if err != nil {
		state.SetError(fmt.Sprintf("template query error: %v", err))
		rows = nil
	}
	state.GraphRows = rows
}

func (w *Workflow) runSemanticSearch(ctx context.Context, state *domain.QueryState) {
	if w.cache != nil {
		if passages, ok := w.cache.GetPassages(state.Question); ok {
			state.Passages = passages
			return
		}
	}

	embedding, err := w.embedder.EmbedQuery(ctx, state.Question)
	if err != nil {
		// The embedder contract substitutes a zero vector itself; this
		// is a second line of defense.
		state.SetError(fmt.Sprintf("embedding error: %v", err))
		embedding = make([]float32, w.embedder.Dimension())
	}

	rows, err := w.graph.VectorQuery(ctx, vectorIndexName, vectorSearchK, embedding)
	if err != nil {
		state.SetError(fmt.Sprintf("vector search error: %v", err))
		state.Passages = nil
		return
	}

	passages := make([]domain.Passage, 0, len(rows))
	for _, row := range rows {
		passages = append(passages, passageFromRow(row))
	}
	state.Passages = passages
	w.logger.Info("vector search completed", "passages", len(passages))

	if w.cache != nil && len(passages) > 0 {
		w.cache.SetPassages(state.Question, passages)
	}
}

func (w *Workflow) runDynamicQuery(ctx context.Context, state *domain.QueryState) {
	query, confidence := w.generator.Generate(ctx, state.Question, state.ExtractedEntities, state.Language)
	method := "text2cypher"
	if confidence < dynamicConfidenceFloor {
		query = cypher.BuildContextual(state.Question, state.ExtractedEntities)
		method = "pattern"
		w.logger.Info("using pattern-based query", "generation_confidence", confidence)
	}

	state.QueryText = query.Text
	state.QueryMethod = method

	rows, err := w.executeQuery(ctx, query)
	if err != nil {
		state.SetError(fmt.Sprintf("graph query error: %v", err))
		rows = nil
	}
	// Full replacement, never merged with earlier results.
	state.GraphRows = rows
	w.logger.Info("graph query completed", "method", method, "rows", len(rows))
}

func (w *Workflow) executeQuery(ctx context.Context, query cypher.Query) ([]domain.GraphRow, error) {
	key := queryCacheKey(query)
	if w.cache != nil {
		if rows, ok := w.cache.GetRows(key); ok {
			return rows, nil
		}
	}

	rows, err := w.graph.ExecuteRead(ctx, query.Text, query.Params)
	if err != nil {
		return nil, err
	}
	if w.cache != nil && len(rows) > 0 {
		w.cache.SetRows(key, rows)
	}
	return rows, nil
}

// queryCacheKey fingerprints query text plus parameters with stable
// parameter order.
func queryCacheKey(query cypher.Query) string {
	keys := make([]string, 0, len(query.Params))
	for k := range query.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(query.Text)
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%v", k, query.Params[k])
	}
	return b.String()
}

func passageFromRow(row domain.GraphRow) domain.Passage {
	p := domain.Passage{}
	p.SectionID, _ = stringField(row, "section_id")
	p.Title, _ = stringField(row, "title")
	p.Content, _ = stringField(row, "content")
	p.Document, _ = stringField(row, "document")
	p.DocType, _ = stringField(row, "doc_type")
	switch v := row["score"].(type) {
	case float64:
		p.Score = v
	case float32:
		p.Score = float64(v)
	}
	return p
}

func buildAnswer(state *domain.QueryState) *domain.Answer {
	return &domain.Answer{
		Text:      state.Answer,
		Citations: state.Citations,
		Metadata: domain.AnswerMetadata{
			QueryPath:         state.Routing.Path,
			RoutingConfidence: state.Routing.Confidence,
			MatchedEntities:   state.Routing.MatchedEntities,
			ExtractedEntities: state.ExtractedEntities,
			QueryText:         state.QueryText,
			QueryMethod:       state.QueryMethod,
			FallbackReason:    state.FallbackReason,
			ProcessingTimeMS:  state.ProcessingMS,
			Language:          state.Language,
			CacheHit:          state.CacheHit,
			Error:             state.Error,
		},
	}
}

// recordHistory persists the outcome for later review. Failures are
// logged and swallowed; history is never allowed to fail a request.
func (w *Workflow) recordHistory(ctx context.Context, state *domain.QueryState) {
	if w.history == nil {
		return
	}
	rec := domain.AnswerRecord{
		ID:             uuid.New().String(),
		Question:       state.Question,
		Language:       state.Language,
		QueryPath:      state.Routing.Path,
		Confidence:     state.Routing.Confidence,
		FallbackReason: state.FallbackReason,
		CitationCount:  len(state.Citations),
		DurationMS:     state.ProcessingMS,
		Error:          state.Error,
		CreatedAt:      time.Now().UTC(),
	}
	if err := w.history.RecordAnswer(ctx, rec); err != nil {
		w.logger.Error("failed to record answer history", "error", err)
	}
}
