package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/mosarlab/graphrag/internal/core/domain"
	"github.com/mosarlab/graphrag/internal/core/entity"
	"github.com/mosarlab/graphrag/internal/core/ports"
)

const (
	// Extraction is deterministic: temperature zero.
	extractionTemperature = 0.0
	extractionMaxTokens   = 1000

	// Passage context fed to the extraction prompt.
	extractionPassageLimit = 5
	extractionMaxChars     = 16000

	// Fuzzy validation of model-proposed names is stricter than the
	// resolver's default tier.
	validationFuzzyThreshold = 80
)

const extractionSystemPrompt = "You are a technical entity extraction assistant. Output only valid JSON."

var jsonFencePattern = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

// extractableTypes maps the model's JSON keys to domain types, in prompt
// order.
var extractableTypes = []domain.EntityType{
	domain.EntityComponent,
	domain.EntityRequirement,
	domain.EntityTestCase,
	domain.EntityProtocol,
	domain.EntityScenario,
}

// EntityExtractor pulls canonical entity identifiers out of retrieved
// passages with the language model, then validates each proposal against
// the entity catalog before it can steer a graph query.
type EntityExtractor struct {
	model    ports.CompletionModel
	resolver *entity.Resolver
	logger   *slog.Logger
}

func NewEntityExtractor(model ports.CompletionModel, resolver *entity.Resolver, logger *slog.Logger) *EntityExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &EntityExtractor{model: model, resolver: resolver, logger: logger}
}

// Extract returns validated entity identifiers found in the passages.
// Model or parse failures degrade to an empty map; the pipeline then
// falls through to the generic query pattern.
func (e *EntityExtractor) Extract(ctx context.Context, question string, passages []domain.Passage) domain.EntityIDMap {
	if len(passages) == 0 {
		e.logger.Warn("no passages available for entity extraction")
		return domain.EntityIDMap{}
	}

	raw, err := e.model.Complete(ctx, extractionSystemPrompt,
		buildExtractionPrompt(question, passages),
		ports.CompletionOptions{Temperature: extractionTemperature, MaxTokens: extractionMaxTokens})
	if err != nil {
		e.logger.Error("entity extraction failed", "error", err)
		return domain.EntityIDMap{}
	}

	proposed, err := parseExtractedEntities(raw)
	if err != nil {
		e.logger.Error("entity extraction returned unparseable output", "error", err, "response", raw)
		return domain.EntityIDMap{}
	}

	validated := e.validate(proposed)
	e.logger.Info("extracted entities", "entities", validated)
	return validated
}

func buildExtractionPrompt(question string, passages []domain.Passage) string {
	var context strings.Builder
	for i, p := range passages {
		if i >= extractionPassageLimit {
			break
		}
		if i > 0 {
			context.WriteString("\n\n")
		}
		fmt.Fprintf(&context, "[Section: %s]\n%s", p.Title, p.Content)
	}
	combined := context.String()
	if len(combined) > extractionMaxChars {
		combined = combined[:extractionMaxChars] + "\n... [truncated]"
	}

	return fmt.Sprintf(`You are an expert in MOSAR (Modular Spacecraft Assembly and Reconfiguration) system.

Extract all relevant entities from the provided context that would help answer the user's question.

**Entity Types to Extract**:
1. **Component** - Hardware/software components (e.g., R-ICU, WM, SM, OBC, cPDU, HOTDOCK)
2. **Requirement** - Requirement IDs (e.g., FuncR_S110, SafR_A201, PerfR_B305, IntR_S102)
3. **TestCase** - Test case IDs (e.g., CT-A-1, IT1, S1)
4. **Protocol** - Communication protocols (e.g., CAN, Ethernet, SpaceWire, I2C)
5. **Scenario** - Demonstration scenarios (e.g., S1, S2, S3)

**User Question**:
%s

**Context**:
%s

**Instructions**:
- Extract only entities that appear in the context
- Use exact IDs when available (e.g., "R-ICU", not "Reduced ICU")
- For requirements, use full ID format (e.g., "FuncR_S110")
- Return entities as a JSON object with entity types as keys and lists of entity IDs as values
- If no entities of a type are found, omit that key
- Be precise - only extract entities directly relevant to answering the question

**Output Format** (JSON only, no explanation):
{
  "Component": ["R-ICU", "WM"],
  "Requirement": ["FuncR_S110"],
  "Protocol": ["CAN", "Ethernet"]
}`, question, combined)
}

func parseExtractedEntities(response string) (domain.EntityIDMap, error) {
	text := strings.TrimSpace(response)
	if m := jsonFencePattern.FindStringSubmatch(text); m != nil {
		text = m[1]
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}

	var entities domain.EntityIDMap
	if err := json.Unmarshal([]byte(text), &entities); err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}
	return entities, nil
}

// validate grounds each proposed identifier in the catalog: exact match
// first, then a strict fuzzy match; unmatched proposals are kept as-is
// since the catalog may lag behind the graph. Output is deduplicated
// and sorted for determinism.
func (e *EntityExtractor) validate(proposed domain.EntityIDMap) domain.EntityIDMap {
	validated := domain.EntityIDMap{}

	for _, entityType := range extractableTypes {
		list := proposed[string(entityType)]
		if len(list) == 0 {
			continue
		}

		seen := map[string]bool{}
		for _, id := range list {
			resolved := id
			if mention, ok := e.resolver.ResolveExact(id, entityType); ok {
				resolved = mention.ID
			} else if mention, ok := e.resolver.ResolveFuzzy(id, entityType, validationFuzzyThreshold); ok {
				resolved = mention.ID
				e.logger.Debug("fuzzy validated entity", "proposed", id, "resolved", mention.ID, "confidence", mention.Confidence)
			}
			if !seen[resolved] {
				seen[resolved] = true
				validated[string(entityType)] = append(validated[string(entityType)], resolved)
			}
		}
		sort.Strings(validated[string(entityType)])
	}

	return validated
}
