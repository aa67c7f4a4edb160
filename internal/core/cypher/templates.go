// Package cypher turns routed entities and questions into read-only
// graph queries: a fixed template library for the template path, a
// pattern-rule builder and an LLM generator with validation for the
// hybrid path.
package cypher

import (
	"github.com/mosarlab/graphrag/internal/core/domain"
)

// Query pairs query text with its named parameters.
type Query struct {
	Text   string
	Params map[string]any
}

// Templates is the fixed library of parameterized query generators.
// Every method is a pure function of its identifier: same input, byte
// identical query text.
type Templates struct{}

// templatePriority is the selection order over detected entity types.
// Kept for compatibility with observed behavior; a tunable policy, not
// a law of the domain.
var templatePriority = []domain.EntityType{
	domain.EntityRequirement,
	domain.EntityComponent,
	domain.EntityTestCase,
}

// Select picks the template for the routed entities and instantiates it
// with the first matched entity of the winning type. Multiple matches
// of one type are deliberately not multiplexed. Returns
// domain.ErrNoTemplate (not fatal, orchestrator falls back to hybrid)
// when no matched entity falls into a templated category.
func (t Templates) Select(entities domain.EntityMap) (Query, string, error) {
	for _, entityType := range templatePriority {
		mention, ok := entities.First(entityType)
		if !ok {
			continue
		}
		switch entityType {
		case domain.EntityRequirement:
			return t.RequirementTraceability(mention.ID), "requirement_traceability", nil
		case domain.EntityComponent:
			return t.ComponentRequirements(mention.ID), "component_requirements", nil
		case domain.EntityTestCase:
			return t.TestCaseDetails(mention.ID), "test_case_details", nil
		}
	}
	return Query{}, "", domain.ErrNoTemplate
}

// RequirementTraceability returns the full traceability closure of one
// requirement: derivation ancestors and descendants to depth 2 (bounded
// to keep result size and latency predictable), each child annotated
// with its own tests and components, plus directly linked test cases,
// components and interfaces.
func (Templates) RequirementTraceability(requirementID string) Query {
	return Query{
		Text: `MATCH (req:Requirement {id: $id})
OPTIONAL MATCH (req)-[:DERIVES_FROM*1..2]->(parent:Requirement)
OPTIONAL MATCH (req)<-[:DERIVES_FROM*1..2]-(child:Requirement)
OPTIONAL MATCH (req)<-[:VERIFIES]-(tc:TestCase)
OPTIONAL MATCH (req)-[:RELATES_TO]->(comp:Component)
OPTIONAL MATCH (comp)-[:HAS_INTERFACE]->(iface:Interface)
WITH req,
     collect(DISTINCT parent.id) AS parent_ids,
     collect(DISTINCT child) AS child_nodes,
     collect(DISTINCT tc.id) AS test_case_ids,
     collect(DISTINCT comp.id) AS component_ids,
     collect(DISTINCT iface.id) AS interface_ids
UNWIND CASE WHEN size(child_nodes) > 0 THEN child_nodes ELSE [null] END AS child_node
OPTIONAL MATCH (child_node)<-[:VERIFIES]-(child_tc:TestCase)
OPTIONAL MATCH (child_node)-[:RELATES_TO]->(child_comp:Component)
WITH req, parent_ids, test_case_ids, component_ids, interface_ids, child_node,
     collect(DISTINCT child_tc.id) AS child_test_ids,
     collect(DISTINCT child_comp.id) AS child_comp_ids
WITH req, parent_ids, test_case_ids, component_ids, interface_ids,
     collect(DISTINCT CASE WHEN child_node IS NOT NULL THEN {
         id: child_node.id,
         type: child_node.type,
         statement: child_node.statement,
         verification: child_node.verification,
         level: child_node.level,
         test_cases: child_test_ids,
         components: child_comp_ids
     } ELSE null END) AS child_details_raw
RETURN
    req.id AS requirement_id,
    req.statement AS requirement_statement,
    req.type AS requirement_type,
    req.level AS requirement_level,
    req.verification AS verification_method,
    test_case_ids AS test_cases,
    component_ids AS related_components,
    interface_ids AS related_interfaces,
    parent_ids AS parent_requirements,
    [item IN child_details_raw WHERE item IS NOT NULL] AS child_requirements`,
		Params: map[string]any{"id": requirementID},
	}
}

// ComponentRequirements returns every requirement related to a
// component with two hops of derivation context and the tests on each.
func (Templates) ComponentRequirements(componentID string) Query {
	return Query{
		Text: `MATCH (c:Component {id: $id})<-[:RELATES_TO]-(req:Requirement)
OPTIONAL MATCH (req)-[:DERIVES_FROM*1..2]->(parent:Requirement)
OPTIONAL MATCH (req)<-[:DERIVES_FROM*1..2]-(child:Requirement)
OPTIONAL MATCH (req)<-[:VERIFIES]-(tc:TestCase)
WITH req,
     collect(DISTINCT parent.id) AS parent_ids,
     collect(DISTINCT child.id) AS child_ids,
     collect(DISTINCT tc.id) AS test_case_ids,
     collect(DISTINCT child) AS child_nodes
UNWIND CASE WHEN size(child_nodes) > 0 THEN child_nodes ELSE [null] END AS child_node
OPTIONAL MATCH (child_node)<-[:VERIFIES]-(child_tc:TestCase)
OPTIONAL MATCH (child_node)-[:RELATES_TO]->(child_comp:Component)
WITH req, parent_ids, child_ids, test_case_ids, child_node,
     collect(DISTINCT child_tc.id) AS child_test_ids,
     collect(DISTINCT child_comp.id) AS child_comp_ids
WITH req, parent_ids, child_ids, test_case_ids,
     collect(DISTINCT CASE WHEN child_node IS NOT NULL THEN {
         id: child_node.id,
         type: child_node.type,
         statement: child_node.statement,
         verification: child_node.verification,
         level: child_node.level,
         test_cases: child_test_ids,
         components: child_comp_ids
     } ELSE null END) AS child_details_raw
RETURN
    req.id AS requirement_id,
    req.type AS requirement_type,
    req.statement AS requirement_statement,
    req.verification AS verification_method,
    req.level AS requirement_level,
    parent_ids AS parent_requirements,
    child_ids AS child_requirement_ids,
    [item IN child_details_raw WHERE item IS NOT NULL] AS child_requirements,
    size(test_case_ids) AS test_case_count,
    test_case_ids AS test_cases
ORDER BY req.type, req.id`,
		Params: map[string]any{"id": componentID},
	}
}

// TestCaseDetails returns one test case with the requirements it
// verifies.
func (Templates) TestCaseDetails(testCaseID string) Query {
	return Query{
		Text: `MATCH (tc:TestCase {id: $id})
OPTIONAL MATCH (tc)-[:VERIFIES]->(req:Requirement)
RETURN
    tc.id AS test_case_id,
    tc.test_type AS test_type,
    tc.description AS description,
    tc.status AS status,
    tc.procedure AS procedure,
    collect(DISTINCT req.id) AS verified_requirements,
    collect(DISTINCT req.statement) AS requirement_statements`,
		Params: map[string]any{"id": testCaseID},
	}
}

// TestCoverage summarizes verification coverage across the graph.
func (Templates) TestCoverage() Query {
	return Query{
		Text: `MATCH (req:Requirement)
OPTIONAL MATCH (req)<-[:VERIFIES]-(tc:TestCase)
WITH
    count(DISTINCT req) AS total_requirements,
    count(DISTINCT CASE WHEN tc IS NOT NULL THEN req END) AS verified_requirements,
    count(DISTINCT tc) AS total_test_cases
RETURN
    total_requirements,
    verified_requirements,
    total_requirements - verified_requirements AS unverified_requirements,
    total_test_cases,
    round(100.0 * verified_requirements / total_requirements, 2) AS coverage_percentage`,
		Params: map[string]any{},
	}
}

// UnverifiedRequirements lists requirements with no verifying test
// case, optionally filtered by requirement type.
func (Templates) UnverifiedRequirements(requirementType string) Query {
	text := `MATCH (req:Requirement)
WHERE NOT EXISTS { (req)<-[:VERIFIES]-(:TestCase) }`
	params := map[string]any{}
	if requirementType != "" {
		text += `
  AND req.type = $type`
		params["type"] = requirementType
	}
	text += `
RETURN
    req.id AS requirement_id,
    req.type AS requirement_type,
    req.level_subsystem AS subsystem,
    req.statement AS requirement_statement,
    req.verification AS verification_method
ORDER BY req.type, req.id`
	return Query{Text: text, Params: params}
}

// ProtocolRequirements lists requirements bound to one protocol with
// their test counts.
func (Templates) ProtocolRequirements(protocolName string) Query {
	return Query{
		Text: `MATCH (p:Protocol {name: $name})<-[:USES_PROTOCOL]-(req:Requirement)
OPTIONAL MATCH (req)<-[:VERIFIES]-(tc:TestCase)
RETURN
    req.id AS requirement_id,
    req.type AS requirement_type,
    req.statement AS requirement_statement,
    p.name AS protocol,
    count(DISTINCT tc) AS test_count
ORDER BY req.type, req.id`,
		Params: map[string]any{"name": protocolName},
	}
}

// SectionsMentioningComponent returns design-document sections that
// mention a component.
func (Templates) SectionsMentioningComponent(componentID string, limit int) Query {
	if limit <= 0 {
		limit = 10
	}
	return Query{
		Text: `MATCH (c:Component {id: $id})<-[:MENTIONS]-(section:Section)
MATCH (doc:Document)-[:HAS_SECTION]->(section)
RETURN
    section.id AS section_id,
    section.title AS section_title,
    section.content AS content,
    doc.title AS document,
    doc.type AS doc_type
ORDER BY doc.type, section.id
LIMIT $limit`,
		Params: map[string]any{"id": componentID, "limit": limit},
	}
}
