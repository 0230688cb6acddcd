package score

import (
	"reflect"
	"testing"

	"github.com/mward/shadowtrace/internal/models"
)

func TestScoreDeterministic(t *testing.T) {
	s := Signals{
		ElapsedSeconds: 5400,
		MedianSeconds:  5,
		Similarity:     0.1,
		Contributing: []models.DetectionType{
			models.DetectTimeAnomaly,
			models.DetectContextMismatch,
		},
	}
	w := DefaultWeights()

	score1, reasons1 := Score(s, w)
	score2, reasons2 := Score(s, w)

	if score1 != score2 {
		t.Errorf("same signals scored %v and %v", score1, score2)
	}
	if !reflect.DeepEqual(reasons1, reasons2) {
		t.Errorf("same signals gave different reasons: %v vs %v", reasons1, reasons2)
	}
}

func TestScoreBounds(t *testing.T) {
	w := DefaultWeights()

	tests := []struct {
		name string
		s    Signals
	}{
		{"no signals", Signals{}},
		{"everything maxed", Signals{
			ElapsedSeconds: 1e9,
			MedianSeconds:  1,
			Similarity:     0,
			Contributing: []models.DetectionType{
				models.DetectExplicitDeletion,
				models.DetectTimeAnomaly,
				models.DetectContextMismatch,
				models.DetectPatternBreak,
			},
		}},
		{"explicit only", Signals{
			Contributing: []models.DetectionType{models.DetectExplicitDeletion},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Score(tt.s, w)
			if got < 0 || got > 1 {
				t.Errorf("score = %v, out of [0,1]", got)
			}
		})
	}
}

func TestScoreExplicitFloor(t *testing.T) {
	s := Signals{
		Contributing: []models.DetectionType{models.DetectExplicitDeletion},
	}
	got, reasons := Score(s, DefaultWeights())

	if got < ExplicitFloor {
		t.Errorf("explicit-only score = %v, want >= %v", got, ExplicitFloor)
	}
	if len(reasons) != 1 {
		t.Fatalf("got %d reasons, want 1", len(reasons))
	}
	if reasons[0] != "message explicitly marked as deleted" {
		t.Errorf("unexpected reason %q", reasons[0])
	}
}

func TestScoreNoSignalsIsZero(t *testing.T) {
	got, reasons := Score(Signals{ElapsedSeconds: 10, MedianSeconds: 60}, DefaultWeights())
	if got == 0 {
		if len(reasons) != 0 {
			t.Errorf("zero score with reasons %v", reasons)
		}
		return
	}
	// Small duration still produces a tiny weighted sub-score.
	if got > 0.01 {
		t.Errorf("near-idle signals scored %v", got)
	}
}

func TestScoreDurationSaturates(t *testing.T) {
	w := DefaultWeights()

	saturated := Signals{
		ElapsedSeconds: w.DurationK * 60 * 10,
		MedianSeconds:  60,
		Contributing:   []models.DetectionType{models.DetectTimeAnomaly},
	}
	got, _ := Score(saturated, w)
	if got != w.Duration {
		t.Errorf("saturated duration score = %v, want %v", got, w.Duration)
	}

	// No baseline median means no duration signal at all.
	noBaseline := Signals{
		ElapsedSeconds: 1e6,
		MedianSeconds:  0,
		Contributing:   []models.DetectionType{models.DetectTimeAnomaly},
	}
	got, reasons := Score(noBaseline, w)
	if got != 0 || len(reasons) != 0 {
		t.Errorf("no-baseline score = %v reasons %v, want 0 and none", got, reasons)
	}
}

func TestScoreReasonsOrdered(t *testing.T) {
	s := Signals{
		ElapsedSeconds: 120,
		MedianSeconds:  60,
		Similarity:     0.05,
		Contributing: []models.DetectionType{
			models.DetectExplicitDeletion,
			models.DetectContextMismatch,
		},
	}
	_, reasons := Score(s, DefaultWeights())
	if len(reasons) < 2 {
		t.Fatalf("got %d reasons, want at least 2", len(reasons))
	}
	if reasons[0] != "message explicitly marked as deleted" {
		t.Errorf("strongest contribution not first: %v", reasons)
	}
}

func TestSignalsFromGap(t *testing.T) {
	g := &models.Gap{
		ElapsedSeconds: 300,
		MedianSeconds:  15,
		Similarity:     0.4,
		Contributing:   []models.DetectionType{models.DetectTimeAnomaly},
	}
	s := SignalsFromGap(g)
	if s.ElapsedSeconds != 300 || s.MedianSeconds != 15 || s.Similarity != 0.4 {
		t.Errorf("signals = %+v, want gap fields carried over", s)
	}
}
