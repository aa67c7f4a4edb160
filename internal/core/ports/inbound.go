package ports

import (
	"context"

	"github.com/mosarlab/graphrag/internal/core/domain"
)

// QueryService is the inbound contract for grounded question answering.
type QueryService interface {
	Query(ctx context.Context, question string) (*domain.Answer, error)
	// QueryStream answers incrementally. The channel is closed after the
	// terminal event; cancelling ctx stops further chunk delivery.
	QueryStream(ctx context.Context, question string) (<-chan domain.StreamEvent, error)
}
