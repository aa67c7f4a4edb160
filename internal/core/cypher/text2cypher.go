package cypher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mosarlab/graphrag/internal/core/ports"
)

const (
	generationTemperature = 0.1
	generationMaxTokens   = 1000

	// Confidence scoring weights. Base plus entity incorporation plus
	// small bonuses for defensive query shape, capped at 1.0.
	baseConfidence     = 0.5
	entityWeight       = 0.3
	optionalMatchBonus = 0.1
	limitBonus         = 0.05
	orderByBonus       = 0.05
	rejectedConfidence = 0.3
	failedConfidence   = 0.2
)

const generatorSystemPrompt = `You are an expert Neo4j Cypher query generator for the MOSAR spacecraft requirements database.

Your task is to convert natural language questions into accurate, safe Cypher queries.

IMPORTANT RULES:
1. **READ-ONLY**: Only generate MATCH and RETURN queries. Never use CREATE, DELETE, SET, REMOVE, or MERGE.
2. **USE SCHEMA**: Only use node labels, relationships, and properties that exist in the provided schema.
3. **BE PRECISE**: Match the user's intent exactly. Don't return unnecessary data.
4. **USE PARAMETERS**: When entities are provided, use them directly in the query.
5. **RETURN CLAUSE**: Always include a RETURN clause with meaningful data.
6. **LIMIT RESULTS**: Add LIMIT clause when returning large collections.
7. **FORMAT**: Return ONLY the Cypher query, no explanation or markdown.`

// Generator asks the language model for a read-only graph query. Every
// candidate passes the validator before it is handed back; rejected or
// failed generations come back as a safe entity lookup with a
// confidence low enough that callers fall through to the pattern rules.
type Generator struct {
	model     ports.CompletionModel
	schema    *SchemaDescriber
	validator *Validator
	logger    *slog.Logger
}

func NewGenerator(model ports.CompletionModel, schema *SchemaDescriber, validator *Validator, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{model: model, schema: schema, validator: validator, logger: logger}
}

// Generate returns a validated query and a confidence estimate. It
// never returns an error for model or validation failures; those
// degrade to the fallback query at confidence 0.2 and 0.3 so the
// pipeline keeps moving.
func (g *Generator) Generate(ctx context.Context, question string, entities map[string][]string, language string) (Query, float64) {
	prompt := g.buildPrompt(ctx, question, entities, language)

	raw, err := g.model.Complete(ctx, generatorSystemPrompt, prompt, ports.CompletionOptions{
		Temperature: generationTemperature,
		MaxTokens:   generationMaxTokens,
	})
	if err != nil {
		g.logger.Error("query generation failed", "error", err)
		return fallbackQuery(entities), failedConfidence
	}

	candidate := ExtractQueryText(raw)
	if err := g.validator.Validate(ctx, candidate); err != nil {
		g.logger.Error("generated query failed validation", "error", err)
		return fallbackQuery(entities), rejectedConfidence
	}

	confidence := estimateConfidence(candidate, entities)
	g.logger.Info("generated graph query",
		"chars", len(candidate),
		"confidence", confidence)
	return Query{Text: candidate, Params: map[string]any{}}, confidence
}

func (g *Generator) buildPrompt(ctx context.Context, question string, entities map[string][]string, language string) string {
	var b strings.Builder

	b.WriteString("# Database Schema\n")
	b.WriteString(g.schema.Description(ctx))
	b.WriteString("\n\n# Example Queries\n")
	b.WriteString(fewShotExamples(language))
	b.WriteString("\n")

	if len(entities) > 0 {
		b.WriteString("# Extracted Entities\n")
		for _, entityType := range []string{"Requirement", "Component", "TestCase", "Protocol", "Scenario"} {
			if list := entities[entityType]; len(list) > 0 {
				fmt.Fprintf(&b, "- %s: %s\n", entityType, strings.Join(list, ", "))
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("# Question\n")
	b.WriteString(question)
	b.WriteString("\n\n# Task\n")
	b.WriteString("Generate a Cypher query that answers the question above.\n")
	b.WriteString("Use the extracted entities if provided.\n")
	b.WriteString("Return ONLY the Cypher query, no explanation.")

	return b.String()
}

func fewShotExamples(language string) string {
	if language == "ko" {
		return `## Example 1
질문: FuncR_S110의 추적성을 보여줘
엔티티: Requirement: FuncR_S110
Cypher:
MATCH (req:Requirement {id: 'FuncR_S110'})
OPTIONAL MATCH (req)<-[:VERIFIES]-(tc:TestCase)
OPTIONAL MATCH (req)-[:RELATES_TO]->(c:Component)
RETURN req.id, req.statement, collect(tc.id) AS test_cases, collect(c.id) AS components

## Example 2
질문: R-ICU와 관련된 요구사항은?
엔티티: Component: R-ICU
Cypher:
MATCH (c:Component {id: 'R-ICU'})<-[:RELATES_TO]-(req:Requirement)
RETURN req.id, req.type, req.statement
ORDER BY req.id

## Example 3
질문: 테스트되지 않은 요구사항은?
엔티티: 없음
Cypher:
MATCH (req:Requirement)
WHERE NOT EXISTS { (req)<-[:VERIFIES]-(:TestCase) }
RETURN req.id, req.type, req.statement
LIMIT 20`
	}
	return `## Example 1
Question: Show traceability for FuncR_S110
Entities: Requirement: FuncR_S110
Cypher:
MATCH (req:Requirement {id: 'FuncR_S110'})
OPTIONAL MATCH (req)<-[:VERIFIES]-(tc:TestCase)
OPTIONAL MATCH (req)-[:RELATES_TO]->(c:Component)
RETURN req.id, req.statement, collect(tc.id) AS test_cases, collect(c.id) AS components

## Example 2
Question: What requirements are related to R-ICU?
Entities: Component: R-ICU
Cypher:
MATCH (c:Component {id: 'R-ICU'})<-[:RELATES_TO]-(req:Requirement)
RETURN req.id, req.type, req.statement
ORDER BY req.id

## Example 3
Question: Which requirements have no test cases?
Entities: None
Cypher:
MATCH (req:Requirement)
WHERE NOT EXISTS { (req)<-[:VERIFIES]-(:TestCase) }
RETURN req.id, req.type, req.statement
LIMIT 20

## Example 4
Question: What components use the CAN protocol?
Entities: Protocol: CAN
Cypher:
MATCH (p:Protocol {name: 'CAN'})<-[:USES_PROTOCOL]-(req:Requirement)-[:RELATES_TO]->(c:Component)
RETURN DISTINCT c.id, c.name

## Example 5
Question: Show the design sections that mention R-ICU
Entities: Component: R-ICU
Cypher:
MATCH (c:Component {id: 'R-ICU'})<-[:MENTIONS]-(sec:Section)<-[:HAS_SECTION]-(doc:Document)
RETURN doc.title, sec.title, sec.number
ORDER BY doc.title, sec.number
LIMIT 10`
}

// ExtractQueryText strips markdown fencing and blank lines from a model
// response, leaving bare query text.
func ExtractQueryText(response string) string {
	text := response
	if idx := strings.Index(text, "```cypher"); idx >= 0 {
		text = text[idx+len("```cypher"):]
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
	} else if idx := strings.Index(text, "```"); idx >= 0 {
		text = text[idx+3:]
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// estimateConfidence scores how trustworthy a generated query looks.
// The dominant signal is whether the extracted entity identifiers
// literally appear in the text.
func estimateConfidence(query string, entities map[string][]string) float64 {
	confidence := baseConfidence

	total, present := 0, 0
	for _, list := range entities {
		for _, id := range list {
			total++
			if strings.Contains(query, id) {
				present++
			}
		}
	}
	if total > 0 {
		confidence += entityWeight * float64(present) / float64(total)
	}

	upper := strings.ToUpper(query)
	if strings.Contains(upper, "OPTIONAL MATCH") {
		confidence += optionalMatchBonus
	}
	if strings.Contains(upper, "LIMIT") {
		confidence += limitBonus
	}
	if strings.Contains(upper, "ORDER BY") {
		confidence += orderByBonus
	}

	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

// fallbackQuery is the safe lookup used when generation fails or is
// rejected. Parameterized, trivially valid, always read-only.
func fallbackQuery(entities map[string][]string) Query {
	if ids := entities["Requirement"]; len(ids) > 0 {
		return Query{
			Text: `MATCH (req:Requirement {id: $id})
RETURN req.id, req.statement, req.type`,
			Params: map[string]any{"id": ids[0]},
		}
	}
	if ids := entities["Component"]; len(ids) > 0 {
		return Query{
			Text: `MATCH (c:Component {id: $id})
OPTIONAL MATCH (c)<-[:RELATES_TO]-(req:Requirement)
RETURN c.id, c.name, collect(req.id) AS requirements`,
			Params: map[string]any{"id": ids[0]},
		}
	}
	return Query{
		Text: `MATCH (req:Requirement)
RETURN req.id, req.type, req.statement
LIMIT 10`,
		Params: map[string]any{},
	}
}
