// Package score turns a gap's stored signals into a calibrated
// suspicion score. Scoring is a pure function of the signals so the
// same gap always scores the same across re-runs.
package score

import (
	"fmt"
	"sort"
	"time"

	"github.com/mward/shadowtrace/internal/models"
)

// Weights is the fixed scoring configuration. Sub-scores are each
// normalized to [0,1] before weighting; the composite is the weighted
// sum clamped to [0,1].
type Weights struct {
	Duration float64
	Context  float64
	Pattern  float64
	Explicit float64

	// DurationK scales the duration saturation point: the duration
	// sub-score reaches 1 at elapsed = DurationK * median.
	DurationK float64
	// PatternConstant is the pattern sub-score when pattern_break
	// contributes.
	PatternConstant float64
	// ExplicitConstant is the explicit sub-score when explicit_deletion
	// contributes. Explicit deletion alone must land a gap at or above
	// ExplicitFloor.
	ExplicitConstant float64
}

// ExplicitFloor is the minimum composite score any gap with an
// explicit_deletion contribution receives under DefaultWeights.
const ExplicitFloor = 0.6

// DefaultWeights returns the tuned default configuration. The explicit
// weight is deliberately dominant: 0.65 * 0.95 = 0.6175 >= ExplicitFloor.
func DefaultWeights() Weights {
	return Weights{
		Duration:         0.15,
		Context:          0.12,
		Pattern:          0.08,
		Explicit:         0.65,
		DurationK:        20,
		PatternConstant:  0.8,
		ExplicitConstant: 0.95,
	}
}

// Signals are the stored gap fields the score is computed from.
type Signals struct {
	ElapsedSeconds float64
	MedianSeconds  float64
	Similarity     float64
	Contributing   []models.DetectionType
}

// SignalsFromGap extracts scoring inputs from a stored gap, so a score
// can always be recomputed from what was persisted.
func SignalsFromGap(g *models.Gap) Signals {
	return Signals{
		ElapsedSeconds: float64(g.ElapsedSeconds),
		MedianSeconds:  g.MedianSeconds,
		Similarity:     g.Similarity,
		Contributing:   g.Contributing,
	}
}

type subScore struct {
	weighted float64
	reason   string
}

// Score computes the composite suspicion score and its reasons, most
// significant first.
func Score(s Signals, w Weights) (float64, []string) {
	var subs []subScore

	if d := durationSub(s, w); d > 0 {
		subs = append(subs, subScore{
			weighted: w.Duration * d,
			reason: fmt.Sprintf("gap spans %s against a typical interval of %s",
				time.Duration(s.ElapsedSeconds)*time.Second,
				time.Duration(s.MedianSeconds)*time.Second),
		})
	}
	if has(s.Contributing, models.DetectContextMismatch) {
		sub := clamp01(1 - s.Similarity)
		if sub > 0 {
			subs = append(subs, subScore{
				weighted: w.Context * sub,
				reason:   fmt.Sprintf("topic overlap across the boundary is low (similarity %.2f)", s.Similarity),
			})
		}
	}
	if has(s.Contributing, models.DetectPatternBreak) {
		subs = append(subs, subScore{
			weighted: w.Pattern * w.PatternConstant,
			reason:   "turn-taking pattern broken: the same sender continues with no reply in between",
		})
	}
	if has(s.Contributing, models.DetectExplicitDeletion) {
		subs = append(subs, subScore{
			weighted: w.Explicit * w.ExplicitConstant,
			reason:   "message explicitly marked as deleted",
		})
	}

	total := 0.0
	for _, sub := range subs {
		total += sub.weighted
	}
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].weighted > subs[j].weighted })

	reasons := make([]string, 0, len(subs))
	for _, sub := range subs {
		reasons = append(reasons, sub.reason)
	}
	return clamp01(total), reasons
}

// durationSub saturates at 1 when elapsed reaches DurationK medians.
// No baseline means no duration signal.
func durationSub(s Signals, w Weights) float64 {
	if s.MedianSeconds <= 0 || s.ElapsedSeconds <= 0 {
		return 0
	}
	return clamp01(s.ElapsedSeconds / (w.DurationK * s.MedianSeconds))
}

func has(types []models.DetectionType, dt models.DetectionType) bool {
	for _, t := range types {
		if t == dt {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
