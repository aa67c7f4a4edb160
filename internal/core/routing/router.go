// Package routing decides which retrieval strategy a question takes.
package routing

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mosarlab/graphrag/internal/core/domain"
	"github.com/mosarlab/graphrag/internal/core/entity"
)

// Confidence thresholds between path bands.
const (
	HighConfidenceThreshold     = 0.9 // at or above: template path
	ModerateConfidenceThreshold = 0.6 // at or above: hybrid path
)

// assumedEntityConfidence applies when the resolver found entities that
// carry no score of their own. Heuristic kept for parity with observed
// behavior; a candidate for recalibration.
const assumedEntityConfidence = 0.7

var (
	requirementIDPattern = regexp.MustCompile(`(?i)\b(FuncR|SafR|PerfR|IntR)_[A-Z]\d{3}\b`)
	componentIDPattern   = regexp.MustCompile(`(?i)\b(R-ICU|WM|SM|OBC|cPDU|HOTDOCK)\b`)
	testCaseIDPattern    = regexp.MustCompile(`(?i)\b(CT-[A-Z]-\d+|IT\d+|S\d+)\b`)
)

// Router selects one of the three query paths per question. Pure
// decision function over resolver state; safe for concurrent use.
type Router struct {
	resolver *entity.Resolver
	logger   *slog.Logger
}

func NewRouter(resolver *entity.Resolver, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{resolver: resolver, logger: logger}
}

// Route decides the retrieval path for a question. Explicit identifiers
// are ground truth: any regex hit routes to the template path with
// confidence 1.0 regardless of catalog state.
func (r *Router) Route(question string) domain.RoutingDecision {
	if explicit := detectExplicitEntities(question); !explicit.Empty() {
		decision := domain.RoutingDecision{
			Path:            domain.PathTemplate,
			Confidence:      1.0,
			MatchedEntities: explicit,
			Reasoning:       fmt.Sprintf("explicit entity identifiers detected: %s; using template query", summarize(explicit)),
		}
		r.logger.Info("routed", "path", decision.Path, "confidence", decision.Confidence, "rule", "explicit_id")
		return decision
	}

	resolved := r.resolver.Resolve(question)
	confidence := overallConfidence(resolved)

	var decision domain.RoutingDecision
	switch {
	case confidence >= HighConfidenceThreshold:
		decision = domain.RoutingDecision{
			Path:            domain.PathTemplate,
			Confidence:      confidence,
			MatchedEntities: resolved,
			Reasoning:       fmt.Sprintf("high confidence entity match (conf=%.2f): %s; using template query", confidence, summarize(resolved)),
		}
	case confidence >= ModerateConfidenceThreshold:
		decision = domain.RoutingDecision{
			Path:            domain.PathHybrid,
			Confidence:      confidence,
			MatchedEntities: resolved,
			Reasoning:       fmt.Sprintf("moderate confidence (conf=%.2f); using hybrid retrieval with semantic search, entity extraction and contextual graph query", confidence),
		}
	default:
		decision = domain.RoutingDecision{
			Path:            domain.PathVector,
			Confidence:      confidence,
			MatchedEntities: domain.EntityMap{},
			Reasoning:       fmt.Sprintf("low confidence (conf=%.2f); no clear entities, using pure semantic retrieval", confidence),
		}
	}

	r.logger.Info("routed", "path", decision.Path, "confidence", decision.Confidence)
	return decision
}

func detectExplicitEntities(question string) domain.EntityMap {
	found := domain.EntityMap{}

	addMatches(found, domain.EntityRequirement, requirementIDPattern.FindAllString(question, -1))
	addMatches(found, domain.EntityComponent, componentIDPattern.FindAllString(question, -1))
	addMatches(found, domain.EntityTestCase, testCaseIDPattern.FindAllString(question, -1))

	return found
}

func addMatches(m domain.EntityMap, t domain.EntityType, matches []string) {
	seen := map[string]bool{}
	for _, match := range matches {
		id := strings.ToUpper(match)
		if t == domain.EntityRequirement {
			id = canonicalRequirementID(match)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		m[t] = append(m[t], domain.EntityMention{
			ID:            id,
			Type:          t,
			MatchedPhrase: match,
			Confidence:    1.0,
			Provenance:    domain.ProvenancePattern,
		})
	}
}

func canonicalRequirementID(match string) string {
	upper := strings.ToUpper(match)
	for _, prefix := range []string{"FuncR", "SafR", "PerfR", "IntR", "DesR"} {
		if strings.HasPrefix(upper, strings.ToUpper(prefix)) {
			return prefix + upper[len(prefix):]
		}
	}
	return upper
}

// overallConfidence is the maximum per-entity confidence, the assumed
// value when entities carry no score, and zero when nothing resolved.
func overallConfidence(resolved domain.EntityMap) float64 {
	if resolved.Empty() {
		return 0.0
	}

	max := 0.0
	scored := false
	for _, mentions := range resolved {
		for _, mention := range mentions {
			if mention.Confidence > 0 {
				scored = true
				if mention.Confidence > max {
					max = mention.Confidence
				}
			}
		}
	}
	if !scored {
		return assumedEntityConfidence
	}
	return max
}

func summarize(m domain.EntityMap) string {
	parts := make([]string, 0, len(m))
	for _, t := range []domain.EntityType{
		domain.EntityRequirement,
		domain.EntityComponent,
		domain.EntityTestCase,
		domain.EntityProtocol,
		domain.EntityScenario,
	} {
		if ids := m.IDs(t); len(ids) > 0 {
			parts = append(parts, fmt.Sprintf("%s=%s", t, strings.Join(ids, ",")))
		}
	}
	return strings.Join(parts, " ")
}
