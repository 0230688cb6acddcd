package parser

import (
	"regexp"
	"strings"
	"time"
)

// Grammar defines the line-start and marker patterns for one export
// format. A line matching no line-start pattern is a continuation of the
// previous message.
type Grammar struct {
	lineStarts  []*regexp.Regexp
	systemLines []*regexp.Regexp
	deletedText []*regexp.Regexp
	mediaText   []*regexp.Regexp
	systemText  []*regexp.Regexp
	timeLayouts []string
}

// WhatsAppGrammar matches the text exports WhatsApp produces:
//
//	DD/MM/YYYY, HH:MM - Sender: Message
//	[DD/MM/YYYY, HH:MM:SS] Sender: Message
//	YYYY-MM-DD HH:MM:SS - Sender: Message
//
// plus the senderless metadata lines the app injects ("Messages and
// calls are end-to-end encrypted ...").
func WhatsAppGrammar() *Grammar {
	return &Grammar{
		lineStarts: []*regexp.Regexp{
			regexp.MustCompile(`^(\d{1,2}/\d{1,2}/\d{2,4}),?\s+(\d{1,2}:\d{2}(?::\d{2})?(?:\s*[APap][Mm])?)\s*[-–]\s*([^:]+):\s?(.*)$`),
			regexp.MustCompile(`^\[(\d{1,2}/\d{1,2}/\d{2,4}),?\s+(\d{1,2}:\d{2}:\d{2})\]\s*([^:]+):\s?(.*)$`),
			regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\s+(\d{2}:\d{2}:\d{2})\s*[-–]\s*([^:]+):\s?(.*)$`),
		},
		systemLines: []*regexp.Regexp{
			// Timestamped lines with no "Sender:" part are export metadata.
			regexp.MustCompile(`^(\d{1,2}/\d{1,2}/\d{2,4}),?\s+(\d{1,2}:\d{2}(?::\d{2})?(?:\s*[APap][Mm])?)\s*[-–]\s?([^:]*)$`),
		},
		deletedText: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^This message was deleted\.?$`),
			regexp.MustCompile(`(?i)^You deleted this message\.?$`),
			regexp.MustCompile(`(?i)^Pesan ini telah dihapus\.?$`),
		},
		mediaText: []*regexp.Regexp{
			regexp.MustCompile(`(?i)<Media omitted>`),
			regexp.MustCompile(`(?i)\(file attached\)`),
			regexp.MustCompile(`(?i)(image|video|audio|GIF|sticker) omitted`),
		},
		systemText: []*regexp.Regexp{
			regexp.MustCompile(`(?i)end-to-end encrypted`),
			regexp.MustCompile(`(?i)created group`),
			regexp.MustCompile(`(?i)added you`),
			regexp.MustCompile(`(?i)changed the subject`),
			regexp.MustCompile(`(?i)left the group`),
			regexp.MustCompile(`(?i)removed \w+`),
		},
		timeLayouts: []string{
			"2/1/2006 15:04",
			"2/1/06 15:04",
			"1/2/2006 3:04 PM",
			"1/2/06 3:04 PM",
			"1/2/2006 3:04PM",
			"1/2/06 3:04PM",
			"2/1/2006 15:04:05",
			"2/1/06 15:04:05",
			"2006-01-02 15:04:05",
		},
	}
}

// ByFormat returns the grammar for a declared source-format tag.
// Only the WhatsApp-style text grammar is supported.
func ByFormat(format string) (*Grammar, bool) {
	switch strings.ToLower(format) {
	case "", "whatsapp", "whatsapp-txt":
		return WhatsAppGrammar(), true
	default:
		return nil, false
	}
}

type lineStart struct {
	timestamp time.Time
	sender    string
	content   string
}

// matchLineStart reports whether the line opens a new message. The
// second return is false when the line matched a line-start shape but
// its timestamp could not be parsed; that is a hard parse failure, not
// a continuation.
func (g *Grammar) matchLineStart(line string) (*lineStart, bool) {
	for _, re := range g.lineStarts {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ts, ok := g.parseTimestamp(m[1], m[2])
		if !ok {
			return nil, false
		}
		return &lineStart{
			timestamp: ts,
			sender:    strings.TrimSpace(m[3]),
			content:   m[4],
		}, true
	}
	return nil, true
}

// matchSystemLine matches timestamped senderless metadata lines.
func (g *Grammar) matchSystemLine(line string) (*lineStart, bool) {
	for _, re := range g.systemLines {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ts, ok := g.parseTimestamp(m[1], m[2])
		if !ok {
			return nil, false
		}
		return &lineStart{timestamp: ts, content: strings.TrimSpace(m[3])}, true
	}
	return nil, true
}

func (g *Grammar) parseTimestamp(dateStr, timeStr string) (time.Time, bool) {
	raw := strings.TrimSpace(dateStr + " " + strings.ToUpper(timeStr))
	for _, layout := range g.timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func (g *Grammar) isDeleted(content string) bool {
	trimmed := strings.TrimSpace(content)
	for _, re := range g.deletedText {
		if re.MatchString(trimmed) {
			return true
		}
	}
	return false
}

func (g *Grammar) isMedia(content string) bool {
	for _, re := range g.mediaText {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}

func (g *Grammar) isSystemText(content string) bool {
	for _, re := range g.systemText {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}
