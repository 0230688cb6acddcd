package inference

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	timePattern = regexp.MustCompile(`\b\d{1,2}:\d{2}(:\d{2})?\b`)
	datePattern = regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`)
)

// checkAnswer runs the hallucination checks against a raw model answer.
// Failing checks append flags; they never discard the answer. Flagged
// inferences stay pending for human review. The confidence clamp
// mutates the answer in place.
func checkAnswer(a *ModelAnswer, participants []string, anchors []string) []string {
	var flags []string

	if a.PredictedSender != nil && *a.PredictedSender != "" {
		if !isParticipant(*a.PredictedSender, participants) {
			flags = append(flags, fmt.Sprintf("predicted sender %q is not a session participant", *a.PredictedSender))
		}
	}

	if a.PredictedContent != nil {
		flags = append(flags, unanchoredClaims(*a.PredictedContent, anchors)...)
	}

	if a.Confidence >= 1.0 {
		flags = append(flags, "model reported full confidence; clamped to 0.99")
		a.Confidence = 0.99
	}
	if a.Confidence < 0 {
		flags = append(flags, "model reported negative confidence; clamped to 0")
		a.Confidence = 0
	}

	return flags
}

func isParticipant(sender string, participants []string) bool {
	for _, p := range participants {
		if strings.EqualFold(strings.TrimSpace(sender), p) {
			return true
		}
	}
	return false
}

// unanchoredClaims flags concrete temporal assertions in the predicted
// content that appear nowhere in the supplied anchors. Asserting a
// specific date or time the context never mentioned is the classic
// fabrication shape for this task.
func unanchoredClaims(content string, anchors []string) []string {
	anchorText := strings.Join(anchors, "\n")
	var flags []string

	for _, pat := range []*regexp.Regexp{yearPattern, timePattern, datePattern} {
		for _, claim := range pat.FindAllString(content, -1) {
			if !strings.Contains(anchorText, claim) {
				flags = append(flags, fmt.Sprintf("predicted content asserts %q, which appears in no context anchor", claim))
			}
		}
	}

	return flags
}
