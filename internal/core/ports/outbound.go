package ports

import (
	"context"

	"github.com/mosarlab/graphrag/internal/core/domain"
)

// GraphStore executes read queries against the knowledge graph.
type GraphStore interface {
	// ExecuteRead runs a read-only query with named parameters and
	// returns ordered row-mappings.
	ExecuteRead(ctx context.Context, query string, params map[string]any) ([]domain.GraphRow, error)
	// VectorQuery performs nearest-neighbor search over the section
	// embedding index, ordered by descending similarity.
	VectorQuery(ctx context.Context, index string, k int, embedding []float32) ([]domain.GraphRow, error)
	// Explain validates a query without executing it.
	Explain(ctx context.Context, query string) error
}

// Embedder turns text into a fixed-dimension vector. Implementations
// must return an all-zero vector of the same dimension on failure
// rather than failing the request.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// CompletionOptions are caller-set per call-site.
type CompletionOptions struct {
	Temperature float64
	MaxTokens   int
}

// CompletionModel is the language-model collaborator.
type CompletionModel interface {
	Complete(ctx context.Context, system, user string, opts CompletionOptions) (string, error)
	// Stream delivers the completion incrementally. The returned channel
	// is closed when the stream ends; cancelling ctx stops delivery.
	Stream(ctx context.Context, system, user string, opts CompletionOptions) (<-chan string, error)
}

// EntityCatalog is the static phrase → entity mapping loaded at startup.
type EntityCatalog interface {
	// Phrases returns the flattened lowercase phrase → mention mapping.
	Phrases() map[string]domain.EntityMention
	// Categories lists catalog categories in load order.
	Categories() []string
	// Degraded reports whether the backing file was missing or corrupt.
	Degraded() bool
}

// ResultCache caches stage outputs keyed by content. Implementations
// must be safe for concurrent use; two concurrent misses recomputing the
// same value is acceptable, recomputation is idempotent.
type ResultCache interface {
	GetAnswer(question string) (*domain.Answer, bool)
	SetAnswer(question string, answer *domain.Answer)
	GetPassages(question string) ([]domain.Passage, bool)
	SetPassages(question string, passages []domain.Passage)
	GetRows(queryKey string) ([]domain.GraphRow, bool)
	SetRows(queryKey string, rows []domain.GraphRow)
}

// HistoryStore records completed answers for later review. Failures are
// logged by callers, never surfaced to the user.
type HistoryStore interface {
	RecordAnswer(ctx context.Context, rec domain.AnswerRecord) error
}

// QuestionQueue transports questions for asynchronous processing.
type QuestionQueue interface {
	PublishQuestion(ctx context.Context, q domain.QuestionEnvelope) error
	SubscribeQuestions(ctx context.Context, handler func(context.Context, domain.QuestionEnvelope) (*domain.Answer, error)) error
	Close()
}
