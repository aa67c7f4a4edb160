package cypher

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mosarlab/graphrag/internal/core/domain"
)

// Explainer runs a query in the graph store's non-executing explain
// mode. Optional: without one the validator stays purely lexical.
type Explainer interface {
	Explain(ctx context.Context, query string) error
}

// mutatingKeyword matches write-clause keywords as whole words, so
// identifiers like "dataset" or "offset" pass.
var mutatingKeyword = regexp.MustCompile(`(?i)\b(detach\s+delete|delete|remove|set|create|merge)\b`)

// Validator is the safety boundary between generated query text and
// the graph store. Nothing a model produced runs without passing it.
type Validator struct {
	explainer Explainer
	logger    *slog.Logger
}

func NewValidator(explainer Explainer, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{explainer: explainer, logger: logger}
}

// Validate rejects any candidate that is not a plain read query:
// mutating keywords, no RETURN clause, or unbalanced delimiters. When
// an explainer is configured the candidate is additionally dry-run
// against the live schema. All errors wrap domain.ErrQueryRejected.
func (v *Validator) Validate(ctx context.Context, query string) error {
	if m := mutatingKeyword.FindString(query); m != "" {
		return v.reject(query, fmt.Sprintf("mutating keyword %q not allowed", strings.ToUpper(m)))
	}
	if !strings.Contains(strings.ToLower(query), "return") {
		return v.reject(query, "query has no RETURN clause")
	}
	for _, pair := range [][2]rune{{'(', ')'}, {'[', ']'}, {'{', '}'}} {
		if strings.Count(query, string(pair[0])) != strings.Count(query, string(pair[1])) {
			return v.reject(query, fmt.Sprintf("unbalanced %c%c in query", pair[0], pair[1]))
		}
	}
	if v.explainer != nil {
		if err := v.explainer.Explain(ctx, query); err != nil {
			return v.reject(query, fmt.Sprintf("explain dry-run failed: %v", err))
		}
	}
	return nil
}

// reject logs the full rejected text; it is the only trace of what the
// model tried to run.
func (v *Validator) reject(query, reason string) error {
	v.logger.Warn("generated query rejected", "reason", reason, "query", query)
	return fmt.Errorf("validate query: %s: %w", reason, domain.ErrQueryRejected)
}
