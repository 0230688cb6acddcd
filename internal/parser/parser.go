package parser

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mward/shadowtrace/internal/models"
)

// ParseError marks the line that made the whole parse fail. A failed
// parse never produces a partial message sequence.
type ParseError struct {
	Line int
	Text string
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d: %s: %q", e.Line, e.Msg, e.Text)
}

// Result is the in-memory outcome of one parse. Persisting it is the
// coordinator's job, not the parser's.
type Result struct {
	Messages     []models.Message
	Participants []string
	StartAt      time.Time
	EndAt        time.Time
	DeletedCount int
	MediaCount   int
	SystemCount  int
}

// Parse turns raw export text into an ordered message sequence.
// Sequence numbers are dense, 0-based and assigned in final parse order.
// Lines that open no message and follow no message fail the parse.
func Parse(raw string, g *Grammar) (*Result, error) {
	res := &Result{}
	participants := map[string]bool{}

	var current *models.Message
	flush := func() {
		if current != nil {
			res.Messages = append(res.Messages, *current)
			current = nil
		}
	}

	lines := strings.Split(strings.TrimSpace(raw), "\n")
	for i, rawLine := range lines {
		lineNum := i + 1
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}

		start, ok := g.matchLineStart(line)
		if !ok {
			return nil, &ParseError{Line: lineNum, Text: line, Msg: "unparseable timestamp"}
		}
		if start != nil {
			flush()
			current = newMessage(g, start)
			if current.Kind != models.KindSystem && current.Sender != "" {
				participants[current.Sender] = true
			}
			continue
		}

		sys, ok := g.matchSystemLine(line)
		if !ok {
			return nil, &ParseError{Line: lineNum, Text: line, Msg: "unparseable timestamp"}
		}
		if sys != nil {
			flush()
			current = &models.Message{
				Sender:    "",
				Content:   sys.content,
				Timestamp: sys.timestamp,
				Kind:      models.KindSystem,
			}
			continue
		}

		// Continuation of a multi-line message.
		if current == nil {
			return nil, &ParseError{Line: lineNum, Text: line, Msg: "no timestamp for leading line"}
		}
		current.Content += "\n" + line
	}
	flush()

	if len(res.Messages) == 0 {
		return nil, &ParseError{Line: 1, Text: "", Msg: "no messages found"}
	}

	for i := range res.Messages {
		m := &res.Messages[i]
		m.Seq = i
		finalize(g, m)
		switch {
		case m.IsDeleted:
			res.DeletedCount++
		case m.Kind == models.KindMedia:
			res.MediaCount++
		case m.Kind == models.KindSystem:
			res.SystemCount++
		}
	}

	res.Participants = sortedKeys(participants)
	res.StartAt = res.Messages[0].Timestamp
	res.EndAt = res.Messages[len(res.Messages)-1].Timestamp
	return res, nil
}

func newMessage(g *Grammar, start *lineStart) *models.Message {
	m := &models.Message{
		Sender:    start.sender,
		Content:   start.content,
		Timestamp: start.timestamp,
		Kind:      models.KindText,
	}
	if g.isSystemText(start.content) {
		// Metadata that happens to carry a sender prefix, e.g.
		// "Alice: created group" in some locales.
		m.Kind = models.KindSystem
	}
	return m
}

// finalize classifies the assembled content once continuations are
// merged. Deleted markers clear content; media markers retag the kind.
func finalize(g *Grammar, m *models.Message) {
	if m.Kind == models.KindSystem {
		m.WordCount = 0
		return
	}
	if g.isDeleted(m.Content) {
		m.IsDeleted = true
		m.Content = ""
		m.WordCount = 0
		return
	}
	if g.isMedia(m.Content) {
		m.HasMedia = true
		m.Kind = models.KindMedia
		m.WordCount = 0
		return
	}
	m.WordCount = len(strings.Fields(m.Content))
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
