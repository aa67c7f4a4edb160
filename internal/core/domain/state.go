package domain

// Passage is one semantic-search hit: a document section ranked by
// embedding similarity.
type Passage struct {
	SectionID string  `json:"section_id"`
	Title     string  `json:"title"`
	Content   string  `json:"content"`
	Document  string  `json:"document"`
	DocType   string  `json:"doc_type"`
	Score     float64 `json:"score"`
}

// GraphRow is one record returned by the graph store.
type GraphRow map[string]any

// QueryState is the mutable record threaded through pipeline stages.
// Fields accumulate monotonically; GraphRows is fully replaced if a
// later stage runs a second query, never merged.
type QueryState struct {
	Question string
	Language string

	Routing        RoutingDecision
	FallbackReason string

	Passages          []Passage
	ExtractedEntities EntityIDMap

	QueryText       string
	QueryMethod     string
	GraphRows       []GraphRow
	TemplateMissing string

	Answer    string
	Citations []Citation

	ProcessingMS float64
	CacheHit     bool
	Error        string
}

// SetError records a stage-level failure without aborting the pipeline.
// The first error wins; later ones are appended for diagnosis.
func (s *QueryState) SetError(msg string) {
	if s.Error == "" {
		s.Error = msg
		return
	}
	s.Error += "; " + msg
}
