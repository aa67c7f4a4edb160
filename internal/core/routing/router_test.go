package routing

import (
	"strings"
	"testing"

	"github.com/mosarlab/graphrag/internal/core/domain"
	"github.com/mosarlab/graphrag/internal/core/entity"
)

type catalogFake struct {
	phrases  map[string]domain.EntityMention
	degraded bool
}

func (f *catalogFake) Phrases() map[string]domain.EntityMention { return f.phrases }
func (f *catalogFake) Categories() []string                     { return nil }
func (f *catalogFake) Degraded() bool                           { return f.degraded }

func newTestRouter(phrases map[string]domain.EntityMention) *Router {
	if phrases == nil {
		phrases = map[string]domain.EntityMention{}
	}
	resolver := entity.NewResolver(&catalogFake{phrases: phrases}, nil)
	return NewRouter(resolver, nil)
}

func TestRouteExplicitRequirementID(t *testing.T) {
	router := newTestRouter(nil)

	decision := router.Route("Show traceability for FuncR_S110")

	if decision.Path != domain.PathTemplate {
		t.Fatalf("expected template path, got %s", decision.Path)
	}
	if decision.Confidence != 1.0 {
		t.Fatalf("expected confidence 1.0, got %f", decision.Confidence)
	}
	ids := decision.MatchedEntities.IDs(domain.EntityRequirement)
	if len(ids) != 1 || ids[0] != "FuncR_S110" {
		t.Fatalf("expected matched requirement FuncR_S110, got %v", ids)
	}
	if decision.Reasoning == "" {
		t.Fatalf("reasoning must document which rule fired")
	}
}

func TestRouteExplicitIDIgnoresCatalogState(t *testing.T) {
	// Empty, degraded catalog: explicit identifiers still win.
	resolver := entity.NewResolver(&catalogFake{phrases: map[string]domain.EntityMention{}, degraded: true}, nil)
	router := NewRouter(resolver, nil)

	for _, question := range []string{
		"what requirements does R-ICU verify?",
		"CT-A-1 테스트는 어떤 요구사항을 검증하나요?",
		"status of IT3?",
	} {
		decision := router.Route(question)
		if decision.Path != domain.PathTemplate || decision.Confidence != 1.0 {
			t.Fatalf("question %q: expected template/1.0, got %s/%f", question, decision.Path, decision.Confidence)
		}
	}
}

func TestRouteModerateConfidenceGoesHybrid(t *testing.T) {
	router := newTestRouter(map[string]domain.EntityMention{
		"network communication": {ID: "R-ICU", Type: domain.EntityComponent},
	})

	// Word order differs from the catalog phrase, so only the fuzzy tier
	// fires; its score lands in the moderate band.
	decision := router.Route("What hardware handles communication over the network?")

	if decision.Path == domain.PathTemplate {
		t.Fatalf("expected hybrid or vector, got template (conf=%f)", decision.Confidence)
	}
}

func TestRouteExactPhraseMatchGoesTemplate(t *testing.T) {
	router := newTestRouter(map[string]domain.EntityMention{
		"walking manipulator": {ID: "WM", Type: domain.EntityComponent},
	})

	decision := router.Route("Which tests cover the walking manipulator?")

	if decision.Path != domain.PathTemplate {
		t.Fatalf("exact dictionary hit has confidence 1.0 and must route to template, got %s", decision.Path)
	}
}

func TestRouteNoEntitiesGoesVector(t *testing.T) {
	router := newTestRouter(nil)

	decision := router.Route("What are the main challenges in orbital assembly?")

	if decision.Path != domain.PathVector {
		t.Fatalf("expected vector path, got %s", decision.Path)
	}
	if decision.Confidence != 0.0 {
		t.Fatalf("expected confidence 0.0, got %f", decision.Confidence)
	}
	if !strings.Contains(decision.Reasoning, "low confidence") {
		t.Fatalf("unexpected reasoning: %s", decision.Reasoning)
	}
}

func TestRouteDeduplicatesExplicitIDs(t *testing.T) {
	router := newTestRouter(nil)

	decision := router.Route("compare FuncR_S110 with funcr_s110")
	if ids := decision.MatchedEntities.IDs(domain.EntityRequirement); len(ids) != 1 {
		t.Fatalf("expected one deduplicated id, got %v", ids)
	}
}

func TestOverallConfidenceAssumedValue(t *testing.T) {
	m := domain.EntityMap{
		domain.EntityComponent: {{ID: "WM", Type: domain.EntityComponent}},
	}
	if got := overallConfidence(m); got != assumedEntityConfidence {
		t.Fatalf("expected assumed confidence %.2f, got %f", assumedEntityConfidence, got)
	}
	if got := overallConfidence(domain.EntityMap{}); got != 0.0 {
		t.Fatalf("expected 0.0 for empty map, got %f", got)
	}
}
