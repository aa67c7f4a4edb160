package domain

// QueryPath is the closed set of retrieval strategies.
type QueryPath string

const (
	PathTemplate QueryPath = "template"
	PathHybrid   QueryPath = "hybrid"
	PathVector   QueryPath = "vector"
)

// CanDowngradeTo reports whether a fallback transition from p to next is
// legal. The only permitted transition is Template→Hybrid; a fallback
// must never upgrade a path.
func (p QueryPath) CanDowngradeTo(next QueryPath) bool {
	return p == PathTemplate && next == PathHybrid
}

// RequiresGraph reports whether the path's answer must be grounded in
// graph rows. Used by the synthesizer's no-fabrication gate.
func (p QueryPath) RequiresGraph() bool {
	return p == PathTemplate || p == PathHybrid
}

// RoutingDecision is produced once per question at the start of the
// pipeline. Reasoning documents which rule fired.
type RoutingDecision struct {
	Path            QueryPath `json:"path"`
	Confidence      float64   `json:"confidence"`
	MatchedEntities EntityMap `json:"matched_entities"`
	Reasoning       string    `json:"reasoning"`
}
