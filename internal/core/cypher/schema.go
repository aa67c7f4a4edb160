package cypher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/mosarlab/graphrag/internal/core/domain"
)

// SchemaReader is the slice of the graph store the describer needs.
type SchemaReader interface {
	ExecuteRead(ctx context.Context, query string, params map[string]any) ([]domain.GraphRow, error)
}

// SchemaDescriber renders the live graph schema as a prompt section
// for the query generator. The description is fetched once and cached;
// when the store cannot answer the schema procedures it falls back to
// the known static model so generation keeps working.
type SchemaDescriber struct {
	store  SchemaReader
	logger *slog.Logger

	once        sync.Once
	description string
}

func NewSchemaDescriber(store SchemaReader, logger *slog.Logger) *SchemaDescriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &SchemaDescriber{store: store, logger: logger}
}

// Description returns the formatted schema text.
func (d *SchemaDescriber) Description(ctx context.Context) string {
	d.once.Do(func() {
		d.description = d.build(ctx)
	})
	return d.description
}

func (d *SchemaDescriber) build(ctx context.Context) string {
	var b strings.Builder
	b.WriteString("# Graph Database Schema\n\n")

	b.WriteString("## Node Labels\n")
	for _, node := range d.nodeLabels(ctx) {
		fmt.Fprintf(&b, "### :%s\n", node.label)
		if len(node.properties) > 0 {
			b.WriteString("Properties:\n")
			for _, prop := range node.properties {
				fmt.Fprintf(&b, "  - %s\n", prop)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("## Relationships\n")
	for _, rel := range d.relationships(ctx) {
		fmt.Fprintf(&b, "- (%s)-[:%s]->(%s)\n", rel.from, rel.relType, rel.to)
	}
	b.WriteString("\n")

	b.WriteString("## Common Query Patterns\n")
	for _, pattern := range commonPatterns {
		fmt.Fprintf(&b, "- %s\n", pattern)
	}

	return b.String()
}

type nodeSchema struct {
	label      string
	properties []string
}

type relSchema struct {
	relType string
	from    string
	to      string
}

// commonPatterns are always included so the generator sees the shapes
// that matter even when the live schema is richer or unavailable.
var commonPatterns = []string{
	"(req:Requirement)<-[:VERIFIES]-(tc:TestCase)",
	"(req:Requirement)-[:RELATES_TO]->(comp:Component)",
	"(req:Requirement)-[:DERIVES_FROM]->(parent:Requirement)",
	"(sec:Section)-[:MENTIONS]->(comp:Component)",
	"(doc:Document)-[:HAS_SECTION]->(sec:Section)",
	"(req:Requirement)-[:USES_PROTOCOL]->(proto:Protocol)",
	"(comp:Component)-[:PART_OF]->(module:SpacecraftModule)",
}

func (d *SchemaDescriber) nodeLabels(ctx context.Context) []nodeSchema {
	static := []nodeSchema{
		{label: "Requirement", properties: []string{"id", "statement", "type", "level", "verification"}},
		{label: "Component", properties: []string{"id", "name"}},
		{label: "TestCase", properties: []string{"id", "description", "test_type", "status"}},
		{label: "Section", properties: []string{"id", "title", "content"}},
		{label: "Document", properties: []string{"title", "type"}},
		{label: "Protocol", properties: []string{"name"}},
	}
	if d.store == nil {
		return static
	}

	rows, err := d.store.ExecuteRead(ctx, `CALL db.schema.nodeTypeProperties()
YIELD nodeLabels, propertyName
RETURN nodeLabels[0] AS label, collect(DISTINCT propertyName) AS properties
ORDER BY label`, nil)
	if err != nil || len(rows) == 0 {
		d.logger.Warn("schema introspection failed, using static node model", "error", err)
		return static
	}

	nodes := make([]nodeSchema, 0, len(rows))
	for _, row := range rows {
		label, _ := row["label"].(string)
		if label == "" {
			continue
		}
		node := nodeSchema{label: label}
		if raw, ok := row["properties"].([]any); ok {
			for _, p := range raw {
				if name, ok := p.(string); ok {
					node.properties = append(node.properties, name)
				}
			}
			sort.Strings(node.properties)
		}
		nodes = append(nodes, node)
	}
	return nodes
}

func (d *SchemaDescriber) relationships(ctx context.Context) []relSchema {
	static := []relSchema{
		{relType: "RELATES_TO", from: "Requirement", to: "Component"},
		{relType: "VERIFIES", from: "TestCase", to: "Requirement"},
		{relType: "DERIVES_FROM", from: "Requirement", to: "Requirement"},
		{relType: "MENTIONS", from: "Section", to: "Component"},
		{relType: "HAS_SECTION", from: "Document", to: "Section"},
		{relType: "USES_PROTOCOL", from: "Requirement", to: "Protocol"},
	}
	if d.store == nil {
		return static
	}

	rows, err := d.store.ExecuteRead(ctx, `CALL db.schema.relTypeProperties()
YIELD relType, sourceNodeLabels, targetNodeLabels
RETURN DISTINCT relType AS type, sourceNodeLabels[0] AS from_label, targetNodeLabels[0] AS to_label
ORDER BY type`, nil)
	if err != nil || len(rows) == 0 {
		d.logger.Warn("schema introspection failed, using static relationship model", "error", err)
		return static
	}

	rels := make([]relSchema, 0, len(rows))
	for _, row := range rows {
		rel := relSchema{from: "Any", to: "Any"}
		if v, ok := row["type"].(string); ok {
			rel.relType = strings.Trim(v, "`:")
		}
		if v, ok := row["from_label"].(string); ok && v != "" {
			rel.from = v
		}
		if v, ok := row["to_label"].(string); ok && v != "" {
			rel.to = v
		}
		if rel.relType != "" {
			rels = append(rels, rel)
		}
	}
	return rels
}
