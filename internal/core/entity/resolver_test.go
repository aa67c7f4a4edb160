package entity

import (
	"reflect"
	"testing"

	"github.com/mosarlab/graphrag/internal/core/domain"
)

type catalogFake struct {
	phrases  map[string]domain.EntityMention
	degraded bool
}

func (f *catalogFake) Phrases() map[string]domain.EntityMention { return f.phrases }
func (f *catalogFake) Categories() []string                     { return nil }
func (f *catalogFake) Degraded() bool                           { return f.degraded }

func testCatalog() *catalogFake {
	return &catalogFake{phrases: map[string]domain.EntityMention{
		"r-icu":                 {ID: "R-ICU", Type: domain.EntityComponent, Category: "components"},
		"walking manipulator":   {ID: "WM", Type: domain.EntityComponent, Category: "components"},
		"network communication": {ID: "R-ICU", Type: domain.EntityComponent, Category: "domain_terms"},
		"can bus":               {ID: "CAN", Type: domain.EntityProtocol, Category: "protocols"},
	}}
}

func TestResolvePatternMatchesRequirementID(t *testing.T) {
	resolver := NewResolver(testCatalog(), nil)

	got := resolver.Resolve("Show traceability for FuncR_S110 please")

	mentions := got[domain.EntityRequirement]
	if len(mentions) != 1 {
		t.Fatalf("expected 1 requirement mention, got %d", len(mentions))
	}
	if mentions[0].ID != "FuncR_S110" {
		t.Fatalf("expected FuncR_S110, got %s", mentions[0].ID)
	}
	if mentions[0].Confidence != 1.0 || mentions[0].Provenance != domain.ProvenancePattern {
		t.Fatalf("unexpected mention: %+v", mentions[0])
	}
}

func TestResolvePatternWorksWithoutCatalog(t *testing.T) {
	resolver := NewResolver(&catalogFake{phrases: map[string]domain.EntityMention{}, degraded: true}, nil)

	got := resolver.Resolve("what verifies SafR_A201?")
	if len(got[domain.EntityRequirement]) != 1 {
		t.Fatalf("pattern tier must run independently of catalog state, got %v", got)
	}
}

func TestResolvePatternDeduplicatesByID(t *testing.T) {
	resolver := NewResolver(testCatalog(), nil)

	got := resolver.Resolve("FuncR_S110 and again funcr_s110")
	if len(got[domain.EntityRequirement]) != 1 {
		t.Fatalf("expected deduplicated requirement, got %v", got[domain.EntityRequirement])
	}
}

func TestResolveExactSubstringContainment(t *testing.T) {
	resolver := NewResolver(testCatalog(), nil)

	got := resolver.Resolve("The Walking Manipulator talks over CAN bus")

	if ids := got.IDs(domain.EntityComponent); !reflect.DeepEqual(ids, []string{"WM"}) {
		t.Fatalf("expected component [WM], got %v", ids)
	}
	if ids := got.IDs(domain.EntityProtocol); !reflect.DeepEqual(ids, []string{"CAN"}) {
		t.Fatalf("expected protocol [CAN], got %v", ids)
	}
	for _, mention := range got[domain.EntityComponent] {
		if mention.Provenance != domain.ProvenanceExact || mention.Confidence != 1.0 {
			t.Fatalf("unexpected exact mention: %+v", mention)
		}
	}
}

func TestResolveFuzzyOnlyWhenNothingElseMatched(t *testing.T) {
	resolver := NewResolver(testCatalog(), nil)

	// Exact hit present: fuzzy tier must not add extra mentions.
	got := resolver.Resolve("r-icu details")
	for _, mentions := range got {
		for _, mention := range mentions {
			if mention.Provenance == domain.ProvenanceFuzzy {
				t.Fatalf("fuzzy mention added despite exact match: %+v", mention)
			}
		}
	}
}

func TestResolveFuzzyTier(t *testing.T) {
	resolver := NewResolver(testCatalog(), nil)

	got := resolver.ResolveWithThreshold("communication network", 80)
	mentions := got[domain.EntityComponent]
	if len(mentions) == 0 {
		t.Fatalf("expected fuzzy component match, got %v", got)
	}
	if mentions[0].Provenance != domain.ProvenanceFuzzy {
		t.Fatalf("expected fuzzy provenance, got %s", mentions[0].Provenance)
	}
	if mentions[0].Confidence < 0.8 || mentions[0].Confidence > 1.0 {
		t.Fatalf("fuzzy confidence out of range: %f", mentions[0].Confidence)
	}
}

func TestResolveIdempotent(t *testing.T) {
	resolver := NewResolver(testCatalog(), nil)
	text := "How is the walking manipulator tested against FuncR_S110?"

	first := resolver.Resolve(text)
	second := resolver.Resolve(text)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("resolution not deterministic:\nfirst:  %v\nsecond: %v", first, second)
	}
}

func TestResolveExactByNameAndType(t *testing.T) {
	resolver := NewResolver(testCatalog(), nil)

	mention, ok := resolver.ResolveExact("R-ICU", domain.EntityComponent)
	if !ok || mention.ID != "R-ICU" {
		t.Fatalf("expected exact R-ICU, got ok=%v mention=%+v", ok, mention)
	}

	if _, ok := resolver.ResolveExact("R-ICU", domain.EntityProtocol); ok {
		t.Fatalf("type filter should reject mismatched type")
	}
}

func TestResolveFuzzyByName(t *testing.T) {
	resolver := NewResolver(testCatalog(), nil)

	mention, ok := resolver.ResolveFuzzy("walking manipulater", domain.EntityComponent, 85)
	if !ok || mention.ID != "WM" {
		t.Fatalf("expected fuzzy WM, got ok=%v mention=%+v", ok, mention)
	}

	if _, ok := resolver.ResolveFuzzy("totally unrelated text", domain.EntityComponent, 85); ok {
		t.Fatalf("expected no match below threshold")
	}
}

func TestTokenSortRatioIgnoresWordOrder(t *testing.T) {
	if got := tokenSortRatio("can bus", "bus can"); got != 100 {
		t.Fatalf("expected 100 for reordered tokens, got %d", got)
	}
	if got := tokenSortRatio("abc", "abc"); got != 100 {
		t.Fatalf("expected 100 for equal strings, got %d", got)
	}
	if got := tokenSortRatio("abc", "xyz"); got != 0 {
		t.Fatalf("expected 0 for disjoint strings, got %d", got)
	}
}
