package gaps

import "time"

// Config holds the detector thresholds. Zero values are not meaningful;
// start from DefaultConfig and override.
type Config struct {
	// TimeAnomalyFactor multiplies the session's median inter-message
	// interval; elapsed time above factor*median is anomalous.
	TimeAnomalyFactor float64
	// TimeAnomalyFloor is the absolute minimum elapsed time for a time
	// anomaly, so bursty chats don't flag every slow evening.
	TimeAnomalyFloor time.Duration
	// SimilarityThreshold is the Jaccard overlap below which the windows
	// around a boundary count as a topic jump.
	SimilarityThreshold float64
	// ShortElapsed bounds context-mismatch detection: a topic jump is
	// only suspicious on its own when the elapsed time is still short.
	ShortElapsed time.Duration
	// PatternWindow is how many trailing messages establish the
	// turn-taking pattern.
	PatternWindow int
	// ContextWindow is how many messages to snapshot on each side of a
	// gap.
	ContextWindow int
	// ContextMaxRunes truncates snapshotted content.
	ContextMaxRunes int
	// MaxEstimatedMissing caps the missing-message estimate.
	MaxEstimatedMissing int
}

// DefaultConfig returns the empirically tuned defaults.
func DefaultConfig() Config {
	return Config{
		TimeAnomalyFactor:   5.0,
		TimeAnomalyFloor:    30 * time.Minute,
		SimilarityThreshold: 0.15,
		ShortElapsed:        10 * time.Minute,
		PatternWindow:       5,
		ContextWindow:       3,
		ContextMaxRunes:     200,
		MaxEstimatedMissing: 50,
	}
}
