package gaps

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mward/shadowtrace/internal/models"
)

// Detector scans an ordered message sequence for discontinuities. It
// adapts to each conversation by computing the median inter-message
// interval over the session's non-system boundaries instead of applying
// a global constant.
type Detector struct {
	cfg Config
}

func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Detect returns the gap candidates for one session. Messages must be
// in sequence order. Sessions with fewer than two non-system messages
// yield an empty set, never an error.
func (d *Detector) Detect(sessionID string, msgs []models.Message) []models.Gap {
	stream := nonSystem(msgs)
	if len(stream) < 2 {
		return nil
	}

	median := medianInterval(stream)
	var out []models.Gap

	for i := 1; i < len(stream); i++ {
		prev, curr := stream[i-1], stream[i]
		elapsed := curr.Timestamp.Sub(prev.Timestamp)
		if elapsed < 0 {
			elapsed = 0
		}

		var contributing []models.DetectionType
		similarity := 1.0

		if curr.IsDeleted {
			contributing = append(contributing, models.DetectExplicitDeletion)
		}
		if d.isTimeAnomaly(elapsed, median, len(stream)) {
			contributing = append(contributing, models.DetectTimeAnomaly)
		}
		if sim, mismatch := d.contextMismatch(stream, i, elapsed); mismatch {
			similarity = sim
			contributing = append(contributing, models.DetectContextMismatch)
		}
		if d.patternBreak(stream, i) {
			contributing = append(contributing, models.DetectPatternBreak)
		}
		if len(contributing) == 0 {
			continue
		}

		gap := models.Gap{
			ID:             uuid.NewString(),
			SessionID:      sessionID,
			BeforeSeq:      prev.Seq,
			AfterSeq:       curr.Seq,
			ElapsedSeconds: int64(elapsed.Seconds()),
			DetectionType:  primaryType(contributing),
			Contributing:   contributing,
			MedianSeconds:  median,
			Similarity:     similarity,
			ContextBefore:  d.snapshot(stream, i, true),
			ContextAfter:   d.snapshot(stream, i, false),
			CreatedAt:      time.Now().UTC(),
		}
		gap.EstimatedMissing = d.estimateMissing(elapsed, median, len(stream))
		out = append(out, gap)
	}

	return out
}

func nonSystem(msgs []models.Message) []models.Message {
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Kind != models.KindSystem {
			out = append(out, m)
		}
	}
	return out
}

// medianInterval is the median gap in seconds between adjacent
// non-system messages, using the lower middle for even-length interval
// lists so a single enormous outlier cannot drag the baseline up.
// 0 when fewer than 2 intervals exist.
func medianInterval(stream []models.Message) float64 {
	if len(stream) < 3 {
		return 0
	}
	intervals := make([]float64, 0, len(stream)-1)
	for i := 1; i < len(stream); i++ {
		d := stream[i].Timestamp.Sub(stream[i-1].Timestamp).Seconds()
		if d < 0 {
			d = 0
		}
		intervals = append(intervals, d)
	}
	sort.Float64s(intervals)
	return intervals[(len(intervals)-1)/2]
}

func (d *Detector) isTimeAnomaly(elapsed time.Duration, median float64, streamLen int) bool {
	if elapsed < d.cfg.TimeAnomalyFloor {
		return false
	}
	if median <= 0 {
		// No baseline; fall back to the absolute floor alone only for
		// conversations long enough to have one interval.
		return streamLen >= 2
	}
	return elapsed.Seconds() > median*d.cfg.TimeAnomalyFactor
}

// contextMismatch compares token-set overlap of the windows around the
// boundary. A topic jump with no matching time gap is itself suspicious:
// conversations rarely teleport topics instantly without missing turns.
func (d *Detector) contextMismatch(stream []models.Message, i int, elapsed time.Duration) (float64, bool) {
	if elapsed > d.cfg.ShortElapsed {
		return 1, false
	}
	before := tokenSet(windowText(stream, i-d.cfg.ContextWindow, i))
	after := tokenSet(windowText(stream, i, i+d.cfg.ContextWindow))
	if len(before) == 0 || len(after) == 0 {
		return 1, false
	}
	sim := jaccard(before, after)
	return sim, sim < d.cfg.SimilarityThreshold
}

func windowText(stream []models.Message, lo, hi int) string {
	if lo < 0 {
		lo = 0
	}
	if hi > len(stream) {
		hi = len(stream)
	}
	var b strings.Builder
	for _, m := range stream[lo:hi] {
		b.WriteString(m.Content)
		b.WriteByte(' ')
	}
	return b.String()
}

func tokenSet(text string) map[string]bool {
	set := map[string]bool{}
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,!?;:\"'()[]")
		if len(tok) > 2 {
			set[tok] = true
		}
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for tok := range a {
		if b[tok] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 1
	}
	return float64(inter) / float64(union)
}

// patternBreak checks the local turn-taking pattern: when the trailing
// window shows strict two-party alternation and the same sender then
// speaks on both sides of the boundary, a reply likely went missing.
func (d *Detector) patternBreak(stream []models.Message, i int) bool {
	if stream[i-1].Sender != stream[i].Sender {
		return false
	}
	lo := i - d.cfg.PatternWindow
	if lo < 0 {
		lo = 0
	}
	window := stream[lo:i]
	if len(window) < 3 {
		return false
	}
	senders := map[string]bool{}
	for _, m := range window {
		senders[m.Sender] = true
	}
	if len(senders) != 2 {
		return false
	}
	for j := 1; j < len(window); j++ {
		if window[j].Sender == window[j-1].Sender {
			return false
		}
	}
	return true
}

// primaryType picks the strongest contributing detection:
// explicit_deletion > time_anomaly > context_mismatch > pattern_break.
func primaryType(types []models.DetectionType) models.DetectionType {
	priority := []models.DetectionType{
		models.DetectExplicitDeletion,
		models.DetectTimeAnomaly,
		models.DetectContextMismatch,
		models.DetectPatternBreak,
	}
	for _, p := range priority {
		for _, t := range types {
			if t == p {
				return p
			}
		}
	}
	return types[0]
}

// estimateMissing guesses how many messages fit in the gap at the
// session's median pace. Nil when no baseline exists.
func (d *Detector) estimateMissing(elapsed time.Duration, median float64, streamLen int) *int {
	if median <= 0 || streamLen < 3 {
		return nil
	}
	est := int(math.Round(elapsed.Seconds()/median)) - 1
	if est < 0 {
		est = 0
	}
	if est > d.cfg.MaxEstimatedMissing {
		est = d.cfg.MaxEstimatedMissing
	}
	return &est
}

func (d *Detector) snapshot(stream []models.Message, i int, before bool) []models.ContextMessage {
	var lo, hi int
	if before {
		lo, hi = i-d.cfg.ContextWindow, i
		if lo < 0 {
			lo = 0
		}
	} else {
		lo, hi = i, i+d.cfg.ContextWindow
		if hi > len(stream) {
			hi = len(stream)
		}
	}
	out := make([]models.ContextMessage, 0, hi-lo)
	for _, m := range stream[lo:hi] {
		out = append(out, models.ContextMessage{
			Seq:       m.Seq,
			Sender:    m.Sender,
			Content:   truncateRunes(m.Content, d.cfg.ContextMaxRunes),
			Timestamp: m.Timestamp,
		})
	}
	return out
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
