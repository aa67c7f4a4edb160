package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/mosarlab/graphrag/internal/core/domain"
	"github.com/mosarlab/graphrag/internal/core/ports"
)

const (
	synthesisTemperature = 0.3
	synthesisMaxTokens   = 2000

	// Prompt bounds. The citation list always covers every row; only
	// the prompt embedding is capped.
	promptRowLimit     = 20
	promptPassageLimit = 3
	promptValueLimit   = 200
	promptContentLimit = 300

	// Result sets above this size get a full identifier enumeration
	// with an arithmetic cross-check so the model cannot silently drop
	// items.
	enumerationThreshold = 15
	// Below this many rows the model is asked for full per-item detail.
	fullDetailLimit = 5
)

// Synthesizer turns retrieved rows and passages into a grounded answer.
// Its first duty is the no-fabrication gate: a graph-backed path with
// zero rows never reaches the model.
type Synthesizer struct {
	model  ports.CompletionModel
	logger *slog.Logger
}

func NewSynthesizer(model ports.CompletionModel, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{model: model, logger: logger}
}

// Synthesize fills state.Answer and state.Citations. Model failure is
// recorded in the state and degrades to the not-found template; it never
// propagates as an error.
func (s *Synthesizer) Synthesize(ctx context.Context, state *domain.QueryState) {
	if answer, done := s.gate(state); done {
		state.Answer = answer
		state.Citations = []domain.Citation{}
		return
	}

	text, err := s.model.Complete(ctx,
		systemPrompt(state.Routing.Path, state.Language),
		buildAnswerPrompt(state),
		ports.CompletionOptions{Temperature: synthesisTemperature, MaxTokens: synthesisMaxTokens})
	if err != nil {
		s.logger.Error("answer synthesis failed", "error", err)
		state.SetError(fmt.Sprintf("synthesis error: %v", err))
		state.Answer = notFoundMessage(state)
		state.Citations = []domain.Citation{}
		return
	}

	state.Answer = strings.TrimSpace(text)
	if state.Routing.Path.RequiresGraph() {
		state.Citations = deriveCitations(state.GraphRows, state.Passages)
	} else {
		state.Citations = deriveCitations(nil, state.Passages)
	}
}

// gate enforces the no-fabrication policy: it returns the deterministic
// answer for states that must not reach the model.
func (s *Synthesizer) gate(state *domain.QueryState) (string, bool) {
	if state.Routing.Path.RequiresGraph() && len(state.GraphRows) == 0 {
		s.logger.Info("no graph rows on graph-backed path, skipping synthesis",
			"path", state.Routing.Path)
		return notFoundMessage(state), true
	}
	if !state.Routing.Path.RequiresGraph() && len(state.Passages) == 0 {
		return noDocumentsMessage(state.Language), true
	}
	return "", false
}

// notFoundMessage lists the entities that were searched for and suggests
// remedies, in the question's language.
func notFoundMessage(state *domain.QueryState) string {
	searched := formatSearchedEntities(state)

	if state.Language == "ko" {
		var b strings.Builder
		b.WriteString("죄송합니다. 관련 정보를 찾을 수 없습니다.\n")
		if searched != "" {
			b.WriteString("\n검색한 엔티티: " + searched + "\n")
		}
		b.WriteString("\n다음을 시도해 보세요:\n")
		b.WriteString("- 식별자 형식을 확인하세요 (예: FuncR_S110, R-ICU, CT-A-1)\n")
		b.WriteString("- 다른 컴포넌트나 요구사항 이름으로 질문을 바꿔 보세요")
		return b.String()
	}

	var b strings.Builder
	b.WriteString("I couldn't find relevant information to answer your question.\n")
	if searched != "" {
		b.WriteString("\nSearched entities: " + searched + "\n")
	}
	b.WriteString("\nSuggestions:\n")
	b.WriteString("- Check the identifier format (e.g., FuncR_S110, R-ICU, CT-A-1)\n")
	b.WriteString("- Try rephrasing with different component or requirement names")
	return b.String()
}

func noDocumentsMessage(language string) string {
	if language == "ko" {
		return "관련 문서를 찾을 수 없습니다."
	}
	return "No relevant documents found."
}

func formatSearchedEntities(state *domain.QueryState) string {
	ids := state.ExtractedEntities
	if len(ids) == 0 {
		ids = state.Routing.MatchedEntities.IDMap()
	}
	if len(ids) == 0 {
		return ""
	}

	types := make([]string, 0, len(ids))
	for t := range ids {
		types = append(types, t)
	}
	sort.Strings(types)

	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, t+": "+strings.Join(ids[t], ", "))
	}
	return strings.Join(parts, "; ")
}

func systemPrompt(path domain.QueryPath, language string) string {
	if path.RequiresGraph() {
		if language == "ko" {
			return "당신은 MOSAR (Modular Spacecraft Assembly and Reconfiguration) 시스템 전문가입니다. 기술 문서와 그래프 데이터베이스 쿼리 결과를 바탕으로 정확하고 상세한 답변을 제공하세요. 제공된 데이터에 있는 식별자만 인용하세요."
		}
		return "You are an expert in MOSAR (Modular Spacecraft Assembly and Reconfiguration) system. Provide accurate and detailed technical answers based on documentation and graph database query results. Cite only identifiers present in the supplied data."
	}
	if language == "ko" {
		return "당신은 MOSAR 시스템 기술 문서 전문가입니다. 제공된 문서를 바탕으로 질문에 답변하세요. 출처를 명시하고 마크다운 형식으로 작성하세요."
	}
	return "You are a MOSAR system technical documentation expert. Answer questions based on provided documents. Cite sources and use markdown formatting."
}

// buildAnswerPrompt renders the execution state for the model: rows
// first (the primary source), then supplementary passages, then the
// query that produced the rows.
func buildAnswerPrompt(state *domain.QueryState) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Question\n%s\n", state.Question)

	if len(state.GraphRows) > 0 {
		b.WriteString("\n# Graph Database Results\n")
		rows := state.GraphRows
		if len(rows) > promptRowLimit {
			fmt.Fprintf(&b, "(Showing first %d of %d results)\n", promptRowLimit, len(rows))
			rows = rows[:promptRowLimit]
		}
		for i, row := range rows {
			fmt.Fprintf(&b, "\n## Result %d\n", i+1)
			writeRow(&b, row)
		}
		writeEnumeration(&b, state.GraphRows)
		writeDetailInstruction(&b, len(state.GraphRows), state.Language)
	}

	if len(state.Passages) > 0 {
		b.WriteString("\n# Document Context\n")
		for i, p := range state.Passages {
			if i >= promptPassageLimit {
				break
			}
			fmt.Fprintf(&b, "\n## %s\n%s\n", p.Title, truncate(p.Content, promptContentLimit))
		}
	}

	if state.QueryText != "" {
		fmt.Fprintf(&b, "\n# Query Used\n```cypher\n%s\n```\n", state.QueryText)
	}

	b.WriteString("\n# Task\n")
	b.WriteString("Answer the question based on the information above.\n")
	b.WriteString("Be specific and cite relevant IDs (requirements, components, test cases).\n")
	b.WriteString("Cite only identifiers that appear in the supplied data.")

	return b.String()
}

// writeRow renders one graph row with stable key order.
func writeRow(b *strings.Builder, row domain.GraphRow) {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := row[k]
		if v == nil {
			continue
		}
		if list, ok := v.([]any); ok && len(list) > 5 {
			fmt.Fprintf(b, "- %s: [%d items]\n", k, len(list))
			continue
		}
		fmt.Fprintf(b, "- %s: %s\n", k, truncate(fmt.Sprintf("%v", v), promptValueLimit))
	}
}

// writeEnumeration lists every identifier grouped by category with an
// arithmetic cross-check for large result sets; the model cannot omit
// items without contradicting the stated total.
func writeEnumeration(b *strings.Builder, rows []domain.GraphRow) {
	if len(rows) <= enumerationThreshold {
		return
	}

	idFields := []struct {
		key   string
		label string
	}{
		{"requirement_id", "Requirements"},
		{"component_id", "Components"},
		{"test_case_id", "Test Cases"},
	}

	groups := map[string][]string{}
	counted := 0
	for _, row := range rows {
		for _, f := range idFields {
			if id, ok := stringField(row, f.key); ok {
				groups[f.label] = append(groups[f.label], id)
				counted++
				break
			}
		}
	}
	if counted == 0 {
		return
	}

	b.WriteString("\n# Complete Identifier List\n")
	fmt.Fprintf(b, "Your answer must account for all %d identifiers below; the groups sum to exactly %d.\n", counted, counted)
	labels := make([]string, 0, len(groups))
	for label := range groups {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		fmt.Fprintf(b, "- %s (%d): %s\n", label, len(groups[label]), strings.Join(groups[label], ", "))
	}
}

func writeDetailInstruction(b *strings.Builder, rowCount int, language string) {
	b.WriteString("\n# Structure\n")
	if rowCount <= fullDetailLimit {
		if language == "ko" {
			b.WriteString("각 결과를 상세하게 설명하세요.\n")
			return
		}
		b.WriteString("Provide full detail for each result.\n")
		return
	}
	if language == "ko" {
		fmt.Fprintf(b, "가장 중요한 %d개를 강조하고 나머지는 분류된 목록으로 제시하세요.\n", fullDetailLimit)
		return
	}
	fmt.Fprintf(b, "Highlight the %d most important results and present the rest as a categorized list.\n", fullDetailLimit)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
