package inference

import (
	"fmt"
	"strings"

	"github.com/mward/shadowtrace/internal/models"
)

// Anchors renders the gap's stored context snapshot as the verbatim
// strings handed to the model. Nothing outside the snapshot may ground
// a prediction.
func Anchors(gap *models.Gap) []string {
	out := make([]string, 0, len(gap.ContextBefore)+len(gap.ContextAfter))
	for _, m := range gap.ContextBefore {
		out = append(out, anchorLine(m))
	}
	for _, m := range gap.ContextAfter {
		out = append(out, anchorLine(m))
	}
	return out
}

func anchorLine(m models.ContextMessage) string {
	content := m.Content
	if content == "" {
		content = "<no content>"
	}
	return fmt.Sprintf("[%s] %s: %s", m.Timestamp.Format("2006-01-02 15:04:05"), m.Sender, content)
}

// BuildPrompt assembles the bounded forensic prompt: only the gap's
// before/after snapshot plus its quantitative signals.
func BuildPrompt(gap *models.Gap) string {
	var b strings.Builder

	b.WriteString("You are a forensic chat analyst reconstructing plausibly deleted messages.\n\n")

	b.WriteString("CONTEXT BEFORE GAP:\n")
	for _, m := range gap.ContextBefore {
		b.WriteString(anchorLine(m))
		b.WriteByte('\n')
	}

	missing := "unknown"
	if gap.EstimatedMissing != nil {
		missing = fmt.Sprintf("%d", *gap.EstimatedMissing)
	}
	fmt.Fprintf(&b, "\n[GAP: %d seconds elapsed, estimated %s missing messages, detected as %s]\n",
		gap.ElapsedSeconds, missing, gap.DetectionType)
	if len(gap.Reasons) > 0 {
		fmt.Fprintf(&b, "Detection reasons: %s\n", strings.Join(gap.Reasons, "; "))
	}

	b.WriteString("\nCONTEXT AFTER GAP:\n")
	for _, m := range gap.ContextAfter {
		b.WriteString(anchorLine(m))
		b.WriteByte('\n')
	}

	b.WriteString(`
INSTRUCTIONS:
1. Analyze the conversation flow before and after the gap.
2. Predict what was likely said in the missing message(s).
3. Only make predictions that anchor directly to the supplied context; do not invent names, dates or facts that do not appear above.
4. Report a confidence between 0.0 and 1.0 based on how strongly the context supports the prediction.
5. Set predicted_content to null rather than speculate when the context is too thin.
`)

	return b.String()
}
