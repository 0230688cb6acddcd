package inference

import (
	"context"
	"fmt"
	"strings"

	"github.com/mward/shadowtrace/internal/models"
)

// MockGenerator produces plausible but clearly marked predictions
// without any network call. Output is deterministic for a given gap so
// analysis runs stay reproducible; use it for development and tests.
type MockGenerator struct {
	gap *models.Gap
}

// NewMockGenerator returns a generator bound to the gap being inferred.
// The orchestrator passes only the prompt, so the mock keeps the gap to
// derive sender and topic the way a model would read the context.
func NewMockGenerator(gap *models.Gap) *MockGenerator {
	return &MockGenerator{gap: gap}
}

func (m *MockGenerator) ModelName() string { return "mock-v1" }

var mockIntents = []string{
	"Discussion about %s likely continued",
	"Follow-up questions about %s",
	"Clarification request about a previous statement",
	"Reaction to shared media or document",
}

func (m *MockGenerator) Generate(_ context.Context, _ string, participants []string) (*ModelAnswer, error) {
	topic := m.topic()
	intent := fmt.Sprintf(mockIntents[m.gap.BeforeSeq%len(mockIntents)], topic)

	content := fmt.Sprintf("[INFERRED: probable exchange about %s]", topic)
	sender := m.likelySender(participants)

	missing := 1
	if m.gap.EstimatedMissing != nil && *m.gap.EstimatedMissing > 0 {
		missing = *m.gap.EstimatedMissing
	}
	reasoning := fmt.Sprintf(
		"[MOCK] The surrounding context discusses %s; roughly %d message(s) fit in the %ds gap. The flow suggests a reply was expected.",
		topic, missing, m.gap.ElapsedSeconds)

	answer := &ModelAnswer{
		PredictedIntent:  intent,
		PredictedContent: &content,
		Confidence:       m.confidence(),
		Reasoning:        reasoning,
	}
	if sender != "" {
		answer.PredictedSender = &sender
	}
	return answer, nil
}

// topic samples the first non-empty context line, the cheapest stand-in
// for real topic extraction.
func (m *MockGenerator) topic() string {
	for _, c := range append(append([]models.ContextMessage{}, m.gap.ContextBefore...), m.gap.ContextAfter...) {
		content := strings.TrimSpace(c.Content)
		if len(content) > 3 {
			if len(content) > 30 {
				content = content[:30] + "..."
			}
			return fmt.Sprintf("%q", content)
		}
	}
	return "an unidentified matter"
}

// likelySender guesses the missing voice: when the same participant
// speaks on both sides of the gap, the deleted turn was probably the
// other party's.
func (m *MockGenerator) likelySender(participants []string) string {
	if len(m.gap.ContextBefore) == 0 {
		return ""
	}
	last := m.gap.ContextBefore[len(m.gap.ContextBefore)-1].Sender
	if len(m.gap.ContextAfter) > 0 && m.gap.ContextAfter[0].Sender == last {
		for _, p := range participants {
			if p != last {
				return p
			}
		}
	}
	return last
}

func (m *MockGenerator) confidence() float64 {
	base := 0.4
	base += float64(len(m.gap.ContextBefore)+len(m.gap.ContextAfter)) * 0.04
	if m.gap.ElapsedSeconds < 3600 {
		base += 0.15
	}
	if m.gap.DetectionType == models.DetectExplicitDeletion {
		base += 0.1
	}
	if base > 0.85 {
		base = 0.85
	}
	return base
}
