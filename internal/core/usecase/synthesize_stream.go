package usecase

import (
	"context"
	"fmt"

	"github.com/mosarlab/graphrag/internal/core/domain"
	"github.com/mosarlab/graphrag/internal/core/ports"
)

// SynthesizeStream is the incremental variant of Synthesize: identical
// gating and prompt construction, but answer text arrives as chunks on
// the returned channel. Citations are computed mechanically up front and
// returned to the caller, who must not surface them until the channel is
// drained. Cancelling ctx stops chunk delivery.
func (s *Synthesizer) SynthesizeStream(ctx context.Context, state *domain.QueryState) (<-chan string, []domain.Citation, error) {
	if answer, done := s.gate(state); done {
		chunks := make(chan string, 1)
		chunks <- answer
		close(chunks)
		return chunks, []domain.Citation{}, nil
	}

	stream, err := s.model.Stream(ctx,
		systemPrompt(state.Routing.Path, state.Language),
		buildAnswerPrompt(state),
		ports.CompletionOptions{Temperature: synthesisTemperature, MaxTokens: synthesisMaxTokens})
	if err != nil {
		return nil, nil, fmt.Errorf("start synthesis stream: %w", err)
	}

	var citations []domain.Citation
	if state.Routing.Path.RequiresGraph() {
		citations = deriveCitations(state.GraphRows, state.Passages)
	} else {
		citations = deriveCitations(nil, state.Passages)
	}
	return stream, citations, nil
}
