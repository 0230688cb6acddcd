// Package metadata profiles messaging behavior in an imported session:
// who talks when, at what pace, and where that pace changes in ways
// worth a second look. The output is descriptive context for an
// analyst, not a detection signal; gap detection has its own pipeline.
package metadata

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/mward/shadowtrace/internal/models"
)

// SenderStats summarizes one participant's behavior.
type SenderStats struct {
	Name             string        `json:"name"`
	MessageCount     int           `json:"message_count"`
	AvgMessageLength float64       `json:"avg_message_length"` // characters, not words
	MostActiveHour   int           `json:"most_active_hour"`
	AvgResponseTime  time.Duration `json:"avg_response_time"`
	DeletedCount     int           `json:"deleted_count"`
}

// Pattern is one detected activity pattern.
type Pattern struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// Anomaly is a behavioral irregularity that may indicate tampering.
type Anomaly struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Seq         int     `json:"seq,omitempty"`
	Sender      string  `json:"sender,omitempty"`
	ZScore      float64 `json:"z_score,omitempty"`
}

// Report bundles everything the report command prints.
type Report struct {
	Senders   []SenderStats `json:"senders"`
	Patterns  []Pattern     `json:"patterns"`
	Anomalies []Anomaly     `json:"anomalies"`
}

const (
	responseTimeCeiling = time.Hour
	burstGap            = 2 * time.Minute
	burstMinMessages    = 5
)

// Analyze builds the full metadata report for a message sequence.
func Analyze(msgs []models.Message) *Report {
	stream := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Kind != models.KindSystem {
			stream = append(stream, m)
		}
	}

	return &Report{
		Senders:   senderStats(stream),
		Patterns:  activityPatterns(stream),
		Anomalies: findAnomalies(stream),
	}
}

func senderStats(stream []models.Message) []SenderStats {
	bySender := map[string][]models.Message{}
	var order []string
	for _, m := range stream {
		if _, seen := bySender[m.Sender]; !seen {
			order = append(order, m.Sender)
		}
		bySender[m.Sender] = append(bySender[m.Sender], m)
	}

	var out []SenderStats
	for _, sender := range order {
		msgs := bySender[sender]
		stats := SenderStats{Name: sender, MessageCount: len(msgs)}

		var totalLen, contentCount int
		hours := map[int]int{}
		for _, m := range msgs {
			if m.IsDeleted {
				stats.DeletedCount++
			} else if m.Content != "" {
				totalLen += len(m.Content)
				contentCount++
			}
			hours[m.Timestamp.Hour()]++
		}
		if contentCount > 0 {
			stats.AvgMessageLength = float64(totalLen) / float64(contentCount)
		}
		stats.MostActiveHour = topHour(hours)
		stats.AvgResponseTime = avgResponseTime(stream, sender)
		out = append(out, stats)
	}
	return out
}

func topHour(hours map[int]int) int {
	best, bestCount := 12, -1
	for h, c := range hours {
		if c > bestCount || (c == bestCount && h < best) {
			best, bestCount = h, c
		}
	}
	return best
}

// avgResponseTime averages how long the sender takes to reply to the
// other party, ignoring gaps past the ceiling which are rarely direct
// responses.
func avgResponseTime(stream []models.Message, sender string) time.Duration {
	var total time.Duration
	var count int
	for i := 1; i < len(stream); i++ {
		if stream[i].Sender != sender || stream[i-1].Sender == sender {
			continue
		}
		d := stream[i].Timestamp.Sub(stream[i-1].Timestamp)
		if d >= 0 && d < responseTimeCeiling {
			total += d
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / time.Duration(count)
}

func activityPatterns(stream []models.Message) []Pattern {
	var patterns []Pattern
	if p := peakHours(stream); p != nil {
		patterns = append(patterns, *p)
	}
	if p := dailyRhythm(stream); p != nil {
		patterns = append(patterns, *p)
	}
	if p := bursts(stream); p != nil {
		patterns = append(patterns, *p)
	}
	return patterns
}

func peakHours(stream []models.Message) *Pattern {
	if len(stream) == 0 {
		return nil
	}
	counts := map[int]int{}
	for _, m := range stream {
		counts[m.Timestamp.Hour()]++
	}
	type hc struct{ hour, count int }
	ranked := make([]hc, 0, len(counts))
	for h, c := range counts {
		ranked = append(ranked, hc{h, c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].hour < ranked[j].hour
	})
	if len(ranked) > 3 {
		ranked = ranked[:3]
	}
	parts := make([]string, len(ranked))
	for i, r := range ranked {
		parts[i] = fmt.Sprintf("%02d:00", r.hour)
	}
	return &Pattern{
		Type:        "peak_hours",
		Description: "most active hours: " + strings.Join(parts, ", "),
		Confidence:  0.9,
	}
}

func dailyRhythm(stream []models.Message) *Pattern {
	if len(stream) < 10 {
		return nil
	}
	days := map[string]int{}
	for _, m := range stream {
		days[m.Timestamp.Format("2006-01-02")]++
	}
	counts := make([]float64, 0, len(days))
	for _, c := range days {
		counts = append(counts, float64(c))
	}
	avg, sd := meanStdev(counts)
	return &Pattern{
		Type:        "daily_rhythm",
		Description: fmt.Sprintf("average %.1f messages/day (±%.1f) over %d days", avg, sd, len(days)),
		Confidence:  0.85,
	}
}

func bursts(stream []models.Message) *Pattern {
	if len(stream) < burstMinMessages {
		return nil
	}
	var burstCount, runLen int
	runLen = 1
	for i := 1; i < len(stream); i++ {
		if stream[i].Timestamp.Sub(stream[i-1].Timestamp) <= burstGap {
			runLen++
			continue
		}
		if runLen >= burstMinMessages {
			burstCount++
		}
		runLen = 1
	}
	if runLen >= burstMinMessages {
		burstCount++
	}
	if burstCount == 0 {
		return nil
	}
	return &Pattern{
		Type:        "conversation_bursts",
		Description: fmt.Sprintf("detected %d intense conversation bursts", burstCount),
		Confidence:  0.8,
	}
}

func findAnomalies(stream []models.Message) []Anomaly {
	var anomalies []Anomaly
	anomalies = append(anomalies, silenceAnomalies(stream)...)
	anomalies = append(anomalies, behaviorChanges(stream)...)
	return anomalies
}

// silenceAnomalies flags boundaries more than three standard deviations
// beyond the mean interval.
func silenceAnomalies(stream []models.Message) []Anomaly {
	if len(stream) < 10 {
		return nil
	}
	intervals := make([]float64, 0, len(stream)-1)
	for i := 1; i < len(stream); i++ {
		intervals = append(intervals, stream[i].Timestamp.Sub(stream[i-1].Timestamp).Seconds())
	}
	avg, sd := meanStdev(intervals)
	if sd == 0 {
		return nil
	}

	var out []Anomaly
	for i, gap := range intervals {
		z := (gap - avg) / sd
		if z > 3 {
			out = append(out, Anomaly{
				Type:        "unusual_silence",
				Description: fmt.Sprintf("silence of %s where %s is typical", secondsDur(gap), secondsDur(avg)),
				Seq:         stream[i+1].Seq,
				ZScore:      z,
			})
		}
	}
	return out
}

// behaviorChanges compares each sender's first and second half of the
// conversation; a large shift in message length can mark the point
// where content started being curated.
func behaviorChanges(stream []models.Message) []Anomaly {
	bySender := map[string][]models.Message{}
	var order []string
	for _, m := range stream {
		if _, seen := bySender[m.Sender]; !seen {
			order = append(order, m.Sender)
		}
		bySender[m.Sender] = append(bySender[m.Sender], m)
	}

	var out []Anomaly
	for _, sender := range order {
		msgs := bySender[sender]
		if len(msgs) < 10 {
			continue
		}
		mid := len(msgs) / 2
		first := avgContentLen(msgs[:mid])
		second := avgContentLen(msgs[mid:])
		if first > 0 && math.Abs(second-first)/first > 0.5 {
			out = append(out, Anomaly{
				Type:   "behavior_change",
				Sender: sender,
				Description: fmt.Sprintf("%s's average message length moved from %.0f to %.0f characters",
					sender, first, second),
			})
		}
	}
	return out
}

func avgContentLen(msgs []models.Message) float64 {
	var total, count int
	for _, m := range msgs {
		if m.Content != "" {
			total += len(m.Content)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return float64(total) / float64(count)
}

func meanStdev(vals []float64) (float64, float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))
	if len(vals) < 2 {
		return mean, 0
	}
	var sq float64
	for _, v := range vals {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(vals)-1))
}

func secondsDur(s float64) time.Duration {
	return time.Duration(s * float64(time.Second)).Round(time.Second)
}
