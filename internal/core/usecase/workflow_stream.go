package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mosarlab/graphrag/internal/core/domain"
)

// QueryStream runs the same pipeline as Query but delivers the answer
// incrementally: status events as stages begin, text chunks during
// synthesis, and a terminal Done event carrying the complete answer with
// citations and metadata. The channel is closed after the terminal
// event.
func (w *Workflow) QueryStream(ctx context.Context, question string) (<-chan domain.StreamEvent, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("query stream: empty question: %w", domain.ErrInvalidInput)
	}

	events := make(chan domain.StreamEvent, 8)
	go func() {
		defer close(events)
		w.streamQuery(ctx, question, events)
	}()
	return events, nil
}

func (w *Workflow) streamQuery(ctx context.Context, question string, events chan<- domain.StreamEvent) {
	if w.cache != nil {
		if cached, ok := w.cache.GetAnswer(question); ok {
			w.logger.Info("answer cache hit", "question", question)
			hit := *cached
			hit.Metadata.CacheHit = true
			if !emit(ctx, events, domain.StreamEvent{Chunk: hit.Text}) {
				return
			}
			emit(ctx, events, domain.StreamEvent{Done: &hit})
			return
		}
	}

	start := time.Now()
	if !emit(ctx, events, domain.StreamEvent{Status: "Routing query..."}) {
		return
	}
	state := w.newState(question)
	if !emit(ctx, events, domain.StreamEvent{Status: "Path selected: " + string(state.Routing.Path)}) {
		return
	}
	if !w.streamStages(ctx, state, events) {
		return
	}

	if !emit(ctx, events, domain.StreamEvent{Status: "Generating answer..."}) {
		return
	}
	chunks, citations, err := w.synth.SynthesizeStream(ctx, state)
	if err != nil {
		state.SetError(fmt.Sprintf("synthesis error: %v", err))
		emit(ctx, events, domain.StreamEvent{ErrorMsg: state.Error})
		state.Answer = notFoundMessage(state)
		state.Citations = []domain.Citation{}
		if !emit(ctx, events, domain.StreamEvent{Chunk: state.Answer}) {
			return
		}
		w.finishStream(ctx, state, start, events)
		return
	}

	var full strings.Builder
	for chunk := range chunks {
		full.WriteString(chunk)
		if !emit(ctx, events, domain.StreamEvent{Chunk: chunk}) {
			return
		}
	}
	state.Answer = strings.TrimSpace(full.String())
	state.Citations = citations
	w.finishStream(ctx, state, start, events)
}

// streamStages runs the retrieval stages, announcing each one. Returns
// false if the consumer went away.
func (w *Workflow) streamStages(ctx context.Context, state *domain.QueryState, events chan<- domain.StreamEvent) bool {
	if state.Routing.Path == domain.PathTemplate {
		if !emit(ctx, events, domain.StreamEvent{Status: "Querying knowledge graph..."}) {
			return false
		}
		w.runTemplateQuery(ctx, state)
		if !w.templateSucceeded(state) {
			w.fallBackToHybrid(state)
			if !emit(ctx, events, domain.StreamEvent{Status: "Falling back to hybrid search..."}) {
				return false
			}
		}
	}

	switch state.Routing.Path {
	case domain.PathHybrid:
		if !emit(ctx, events, domain.StreamEvent{Status: "Searching documents..."}) {
			return false
		}
		w.runSemanticSearch(ctx, state)
		if !emit(ctx, events, domain.StreamEvent{Status: "Extracting entities..."}) {
			return false
		}
		state.ExtractedEntities = w.extractor.Extract(ctx, state.Question, state.Passages)
		if !emit(ctx, events, domain.StreamEvent{Status: "Querying knowledge graph..."}) {
			return false
		}
		w.runDynamicQuery(ctx, state)
	case domain.PathVector:
		if !emit(ctx, events, domain.StreamEvent{Status: "Searching documents..."}) {
			return false
		}
		w.runSemanticSearch(ctx, state)
	}
	return true
}

// finishStream assembles the terminal answer, caches and records it, and
// emits the Done event.
func (w *Workflow) finishStream(ctx context.Context, state *domain.QueryState, start time.Time, events chan<- domain.StreamEvent) {
	state.ProcessingMS = float64(time.Since(start).Microseconds()) / 1000.0
	answer := buildAnswer(state)
	if w.cache != nil && state.Error == "" {
		w.cache.SetAnswer(state.Question, answer)
	}
	w.recordHistory(ctx, state)
	emit(ctx, events, domain.StreamEvent{Done: answer})
}

// emit sends one event unless the consumer cancelled.
func emit(ctx context.Context, events chan<- domain.StreamEvent, ev domain.StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
