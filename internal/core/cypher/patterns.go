package cypher

import (
	"strings"

	"github.com/mosarlab/graphrag/internal/core/domain"
)

// testIntentKeywords flag a question as being about verification, in
// English and Korean.
var testIntentKeywords = []string{"test", "verify", "validation", "테스트", "검증"}

// BuildContextual assembles a graph query from LLM-extracted entities
// using a fixed rule cascade. The first rule whose entity combination
// is present wins; when no entities were extracted at all a bounded
// generic lookup is returned. Deterministic, never errors, so it can
// always back up a rejected generated query.
func BuildContextual(question string, entities map[string][]string) Query {
	components := entities[string(domain.EntityComponent)]
	requirements := entities[string(domain.EntityRequirement)]
	testCases := entities[string(domain.EntityTestCase)]
	protocols := entities[string(domain.EntityProtocol)]

	switch {
	case len(components) > 0 && len(protocols) > 0:
		return componentProtocolQuery(components, protocols)
	case len(components) > 0 && len(requirements) > 0:
		return componentRequirementQuery(components, requirements)
	case len(requirements) > 0 && len(testCases) > 0:
		return requirementVerificationQuery(requirements, testCases)
	case len(components) > 0:
		if hasTestIntent(question) {
			return componentTestQuery(components)
		}
		return componentOverviewQuery(components)
	case len(requirements) > 0:
		return requirementDetailQuery(requirements)
	case len(testCases) > 0:
		return testCaseQuery(testCases)
	}

	var ids []string
	for _, list := range entities {
		ids = append(ids, list...)
	}
	return Query{
		Text: `MATCH (n)
WHERE n.id IN $entity_ids
RETURN n
LIMIT 10`,
		Params: map[string]any{"entity_ids": ids},
	}
}

func hasTestIntent(question string) bool {
	lower := strings.ToLower(question)
	for _, kw := range testIntentKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Component + Protocol: communication architecture of the components,
// including the design sections that mention the leading protocol.
func componentProtocolQuery(components, protocols []string) Query {
	return Query{
		Text: `MATCH (c:Component)
WHERE c.id IN $components
OPTIONAL MATCH (c)<-[:RELATES_TO]-(req:Requirement)-[:USES_PROTOCOL]->(p:Protocol)
WHERE p.name IN $protocols
OPTIONAL MATCH (c)-[:MENTIONS]-(section:Section)
WHERE section.content CONTAINS $lead_protocol
RETURN
    c.id AS component_id,
    c.name AS component_name,
    collect(DISTINCT p.name) AS protocols,
    collect(DISTINCT req.id) AS related_requirements,
    collect(DISTINCT {section_title: section.title, content: section.content})[..3] AS relevant_sections`,
		Params: map[string]any{
			"components":    components,
			"protocols":     protocols,
			"lead_protocol": protocols[0],
		},
	}
}

// Component + Requirement: traceability between the two sets.
func componentRequirementQuery(components, requirements []string) Query {
	return Query{
		Text: `MATCH (c:Component)
WHERE c.id IN $components
MATCH (req:Requirement)
WHERE req.id IN $requirements
OPTIONAL MATCH (req)-[:RELATES_TO]->(c)
OPTIONAL MATCH (req)<-[:VERIFIES]-(tc:TestCase)
RETURN
    c.id AS component_id,
    c.name AS component_name,
    collect(DISTINCT req.id) AS requirements,
    collect(DISTINCT req.statement) AS requirement_statements,
    collect(DISTINCT tc.id) AS test_cases`,
		Params: map[string]any{
			"components":   components,
			"requirements": requirements,
		},
	}
}

// Requirement + TestCase: verification status.
func requirementVerificationQuery(requirements, testCases []string) Query {
	return Query{
		Text: `MATCH (req:Requirement)
WHERE req.id IN $requirements
OPTIONAL MATCH (req)<-[:VERIFIES]-(tc:TestCase)
WHERE tc.id IN $test_cases
OPTIONAL MATCH (req)-[:RELATES_TO]->(c:Component)
RETURN
    req.id AS requirement_id,
    req.statement AS requirement_statement,
    req.verification AS verification_method,
    collect(DISTINCT tc.id) AS test_cases,
    collect(DISTINCT tc.description) AS test_descriptions,
    collect(DISTINCT c.id) AS components`,
		Params: map[string]any{
			"requirements": requirements,
			"test_cases":   testCases,
		},
	}
}

// Component only, verification intent: the tests behind the component.
func componentTestQuery(components []string) Query {
	return Query{
		Text: `MATCH (c:Component)
WHERE c.id IN $components
OPTIONAL MATCH (c)<-[:RELATES_TO]-(req:Requirement)<-[:VERIFIES]-(tc:TestCase)
RETURN
    c.id AS component_id,
    c.name AS component_name,
    collect(DISTINCT req.id) AS requirements,
    collect(DISTINCT tc.id) AS test_cases,
    count(DISTINCT tc) AS test_count`,
		Params: map[string]any{"components": components},
	}
}

// Component only, general: requirements, protocols and design sections.
func componentOverviewQuery(components []string) Query {
	return Query{
		Text: `MATCH (c:Component)
WHERE c.id IN $components
OPTIONAL MATCH (c)<-[:RELATES_TO]-(req:Requirement)
OPTIONAL MATCH (req)-[:USES_PROTOCOL]->(p:Protocol)
OPTIONAL MATCH (c)-[:MENTIONS]-(section:Section)<-[:HAS_SECTION]-(doc:Document)
RETURN
    c.id AS component_id,
    c.name AS component_name,
    collect(DISTINCT req.id) AS requirements,
    collect(DISTINCT req.type) AS requirement_types,
    collect(DISTINCT p.name) AS protocols,
    collect(DISTINCT {doc: doc.title, section: section.title, content: section.content})[..5] AS design_sections`,
		Params: map[string]any{"components": components},
	}
}

// Requirement only: one-hop derivation plus tests and components.
func requirementDetailQuery(requirements []string) Query {
	return Query{
		Text: `MATCH (req:Requirement)
WHERE req.id IN $requirements
OPTIONAL MATCH (req)-[:DERIVES_FROM]->(parent:Requirement)
OPTIONAL MATCH (child:Requirement)-[:DERIVES_FROM]->(req)
OPTIONAL MATCH (req)<-[:VERIFIES]-(tc:TestCase)
OPTIONAL MATCH (req)-[:RELATES_TO]->(c:Component)
RETURN
    req.id AS requirement_id,
    req.statement AS requirement_statement,
    req.type AS requirement_type,
    req.verification AS verification_method,
    collect(DISTINCT parent.id) AS parent_requirements,
    collect(DISTINCT child.id) AS child_requirements,
    collect(DISTINCT tc.id) AS test_cases,
    collect(DISTINCT c.id) AS components`,
		Params: map[string]any{"requirements": requirements},
	}
}

// TestCase only.
func testCaseQuery(testCases []string) Query {
	return Query{
		Text: `MATCH (tc:TestCase)
WHERE tc.id IN $test_cases
OPTIONAL MATCH (tc)-[:VERIFIES]->(req:Requirement)
OPTIONAL MATCH (req)-[:RELATES_TO]->(c:Component)
RETURN
    tc.id AS test_case_id,
    tc.description AS description,
    tc.status AS status,
    collect(DISTINCT req.id) AS verified_requirements,
    collect(DISTINCT c.id) AS tested_components`,
		Params: map[string]any{"test_cases": testCases},
	}
}
