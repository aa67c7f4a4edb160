// Package entity grounds free-text mentions to canonical graph
// identifiers using three tiers: structured-ID regex, exact dictionary
// containment, and fuzzy token similarity.
package entity

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"

	"github.com/mosarlab/graphrag/internal/core/domain"
	"github.com/mosarlab/graphrag/internal/core/ports"
)

// DefaultFuzzyThreshold is the minimum 0-100 similarity kept by the
// fuzzy tier.
const DefaultFuzzyThreshold = 85

const fuzzyCandidateLimit = 3

// requirement ids look like FuncR_S110: category prefix, subsystem
// letter, three digits.
var requirementIDPattern = regexp.MustCompile(`(?i)\b(FuncR|DesR|IntR|PerfR|SafR)_([A-Z])(\d{3})\b`)

// Resolver maps phrases to canonical entity identifiers. Read-only
// after construction; safe for concurrent use.
type Resolver struct {
	catalog ports.EntityCatalog
	logger  *slog.Logger
}

func NewResolver(catalog ports.EntityCatalog, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{catalog: catalog, logger: logger}
}

// Resolve finds entity mentions in text. Structured-ID matches are
// always collected first and are additive; the fuzzy tier runs only
// when the pattern and exact tiers found nothing at all.
func (r *Resolver) Resolve(text string) domain.EntityMap {
	return r.ResolveWithThreshold(text, DefaultFuzzyThreshold)
}

func (r *Resolver) ResolveWithThreshold(text string, threshold int) domain.EntityMap {
	results := domain.EntityMap{}

	r.matchRequirementIDs(text, results)

	phrases := r.catalog.Phrases()
	if len(phrases) == 0 {
		return results
	}

	textLower := strings.ToLower(text)
	for _, phrase := range sortedPhrases(phrases) {
		if !strings.Contains(textLower, phrase) {
			continue
		}
		mention := phrases[phrase]
		mention.MatchedPhrase = phrase
		mention.Confidence = 1.0
		mention.Provenance = domain.ProvenanceExact
		appendMention(results, mention)
	}

	if results.Empty() {
		for _, match := range rankPhrases(textLower, phrases, fuzzyCandidateLimit) {
			if match.score < threshold {
				continue
			}
			mention := phrases[match.phrase]
			mention.MatchedPhrase = match.phrase
			mention.Confidence = float64(match.score) / 100.0
			mention.Provenance = domain.ProvenanceFuzzy
			appendMention(results, mention)
		}
	}

	return results
}

// ResolveExact returns the catalog entry whose phrase equals name,
// optionally filtered by entity type.
func (r *Resolver) ResolveExact(name string, entityType domain.EntityType) (domain.EntityMention, bool) {
	nameLower := strings.ToLower(strings.TrimSpace(name))
	for phrase, mention := range r.catalog.Phrases() {
		if phrase != nameLower {
			continue
		}
		if entityType != "" && !strings.EqualFold(string(mention.Type), string(entityType)) {
			continue
		}
		mention.MatchedPhrase = phrase
		mention.Confidence = 1.0
		mention.Provenance = domain.ProvenanceExact
		return mention, true
	}
	return domain.EntityMention{}, false
}

// ResolveFuzzy returns the best catalog match for name at or above
// threshold, optionally filtered by entity type.
func (r *Resolver) ResolveFuzzy(name string, entityType domain.EntityType, threshold int) (domain.EntityMention, bool) {
	nameLower := strings.ToLower(strings.TrimSpace(name))

	candidates := map[string]domain.EntityMention{}
	for phrase, mention := range r.catalog.Phrases() {
		if entityType != "" && !strings.EqualFold(string(mention.Type), string(entityType)) {
			continue
		}
		candidates[phrase] = mention
	}
	if len(candidates) == 0 {
		return domain.EntityMention{}, false
	}

	ranked := rankPhrases(nameLower, candidates, 1)
	if len(ranked) == 0 || ranked[0].score < threshold {
		return domain.EntityMention{}, false
	}

	best := ranked[0]
	mention := candidates[best.phrase]
	mention.MatchedPhrase = best.phrase
	mention.Confidence = float64(best.score) / 100.0
	mention.Provenance = domain.ProvenanceFuzzy
	return mention, true
}

func (r *Resolver) matchRequirementIDs(text string, results domain.EntityMap) {
	for _, groups := range requirementIDPattern.FindAllStringSubmatch(text, -1) {
		id := strings.ToUpper(groups[0])
		// normalize prefix casing: FuncR_S110, not FUNCR_S110
		id = canonicalRequirementID(groups[1], id)
		mention := domain.EntityMention{
			ID:            id,
			Type:          domain.EntityRequirement,
			Category:      groups[1],
			MatchedPhrase: id,
			Confidence:    1.0,
			Provenance:    domain.ProvenancePattern,
		}
		if appendMention(results, mention) {
			r.logger.Info("pattern matched requirement id", "id", id)
		}
	}
}

func canonicalRequirementID(prefix, upper string) string {
	known := []string{"FuncR", "DesR", "IntR", "PerfR", "SafR"}
	for _, k := range known {
		if strings.EqualFold(prefix, k) {
			return k + upper[len(k):]
		}
	}
	return upper
}

// appendMention adds a mention unless one with the same id already
// exists for the type. Returns true when added.
func appendMention(results domain.EntityMap, mention domain.EntityMention) bool {
	for _, existing := range results[mention.Type] {
		if existing.ID == mention.ID {
			return false
		}
	}
	results[mention.Type] = append(results[mention.Type], mention)
	return true
}

// sortedPhrases gives a deterministic iteration order so repeated
// resolution of the same text yields identical mention lists.
func sortedPhrases(phrases map[string]domain.EntityMention) []string {
	keys := make([]string, 0, len(phrases))
	for phrase := range phrases {
		keys = append(keys, phrase)
	}
	sort.Strings(keys)
	return keys
}

type rankedPhrase struct {
	phrase string
	score  int
}

// rankPhrases scores every candidate phrase against the text and
// returns the top limit matches, ties broken lexicographically for
// determinism.
func rankPhrases(text string, phrases map[string]domain.EntityMention, limit int) []rankedPhrase {
	ranked := make([]rankedPhrase, 0, len(phrases))
	for phrase := range phrases {
		ranked = append(ranked, rankedPhrase{phrase: phrase, score: fuzzyScore(text, phrase)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].phrase < ranked[j].phrase
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// fuzzyScore compares a phrase against the whole text and against every
// phrase-sized token window of the text, keeping the best ratio. The
// windowed pass lets a short catalog phrase match inside a long
// question the way a partial-ratio scorer would.
func fuzzyScore(text, phrase string) int {
	best := tokenSortRatio(text, phrase)

	textTokens := tokenize(text)
	phraseTokens := tokenize(phrase)
	window := len(phraseTokens)
	if window == 0 || window >= len(textTokens) {
		return best
	}

	for i := 0; i+window <= len(textTokens); i++ {
		candidate := strings.Join(textTokens[i:i+window], " ")
		if score := tokenSortRatio(candidate, phrase); score > best {
			best = score
		}
	}
	return best
}

// tokenSortRatio is a 0-100 similarity: both strings are tokenized,
// sorted, rejoined and compared by normalized Levenshtein distance.
func tokenSortRatio(a, b string) int {
	na := normalizeTokens(a)
	nb := normalizeTokens(b)
	if na == "" && nb == "" {
		return 100
	}
	dist := levenshtein.ComputeDistance(na, nb)
	longest := len([]rune(na))
	if l := len([]rune(nb)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 100
	}
	ratio := 100 - (100*dist)/longest
	if ratio < 0 {
		ratio = 0
	}
	return ratio
}

func normalizeTokens(s string) string {
	fields := tokenize(s)
	sort.Strings(fields)
	return strings.Join(fields, " ")
}

// tokenize lowercases, splits on whitespace and strips surrounding
// punctuation so "communication?" compares equal to "communication".
func tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := fields[:0]
	for _, f := range fields {
		trimmed := strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
