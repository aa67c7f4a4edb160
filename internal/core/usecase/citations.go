package usecase

import (
	"github.com/mosarlab/graphrag/internal/core/domain"
)

// passageCitationLimit bounds document_section citations; graph-derived
// citations are never truncated, the synthesizer's completeness
// invariant depends on one requirement citation per requirement row.
const passageCitationLimit = 5

// deriveCitations builds the citation list mechanically from retrieved
// data, never from model prose. Every graph row contributes at most one
// citation, keyed on the identifier field it carries.
func deriveCitations(rows []domain.GraphRow, passages []domain.Passage) []domain.Citation {
	citations := make([]domain.Citation, 0, len(rows))

	for _, row := range rows {
		if id, ok := stringField(row, "requirement_id"); ok {
			citations = append(citations, domain.Citation{
				Type:   domain.CitationRequirement,
				ID:     id,
				Source: "SRD",
			})
			continue
		}
		if id, ok := stringField(row, "component_id"); ok {
			citations = append(citations, domain.Citation{
				Type:   domain.CitationComponent,
				ID:     id,
				Source: "MOSAR System",
			})
		}
	}

	for i, p := range passages {
		if i >= passageCitationLimit {
			break
		}
		citations = append(citations, domain.Citation{
			Type:   domain.CitationSection,
			Source: p.Document + " - " + p.Title,
			Score:  p.Score,
		})
	}

	return citations
}

func stringField(row domain.GraphRow, key string) (string, bool) {
	v, ok := row[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
