// Package usecase holds the question-answering pipeline: the
// orchestrator state machine, the entity-extraction stage, and the
// answer synthesizer with its streaming variant.
package usecase

// hangulRatioThreshold decides between the two supported answer
// languages. Korean questions routinely mix in English identifiers, so
// anything above a third Hangul is treated as Korean.
const hangulRatioThreshold = 0.3

// DetectLanguage classifies text as "ko" or "en" by Hangul ratio.
func DetectLanguage(text string) string {
	runes := []rune(text)
	if len(runes) == 0 {
		return "en"
	}
	hangul := 0
	for _, r := range runes {
		if r >= 0xAC00 && r <= 0xD7A3 {
			hangul++
		}
	}
	if float64(hangul)/float64(len(runes)) > hangulRatioThreshold {
		return "ko"
	}
	return "en"
}
