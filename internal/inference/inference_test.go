package inference

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/mward/shadowtrace/internal/models"
)

func testGap() *models.Gap {
	at := time.Date(2023, 12, 25, 14, 30, 0, 0, time.UTC)
	est := 2
	return &models.Gap{
		ID:               "gap-1",
		SessionID:        "s1",
		BeforeSeq:        1,
		AfterSeq:         2,
		ElapsedSeconds:   120,
		EstimatedMissing: &est,
		DetectionType:    models.DetectExplicitDeletion,
		Contributing:     []models.DetectionType{models.DetectExplicitDeletion},
		Reasons:          []string{"message explicitly marked as deleted"},
		ContextBefore: []models.ContextMessage{
			{Seq: 0, Sender: "Alice", Content: "are you coming to dinner", Timestamp: at},
			{Seq: 1, Sender: "Bob", Content: "checking my calendar now", Timestamp: at.Add(time.Minute)},
		},
		ContextAfter: []models.ContextMessage{
			{Seq: 2, Sender: "Alice", Content: "fine forget it then", Timestamp: at.Add(3 * time.Minute)},
		},
	}
}

func testSession() *models.Session {
	return &models.Session{
		ID:           "s1",
		Name:         "dinner chat",
		Participants: []string{"Alice", "Bob"},
	}
}

func TestMockGeneratorDeterministic(t *testing.T) {
	gap := testGap()
	participants := []string{"Alice", "Bob"}

	a1, err := NewMockGenerator(gap).Generate(context.Background(), "", participants)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	a2, err := NewMockGenerator(gap).Generate(context.Background(), "", participants)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if !reflect.DeepEqual(a1, a2) {
		t.Errorf("same gap produced different answers:\n%+v\n%+v", a1, a2)
	}
	if a1.Confidence > 0.85 {
		t.Errorf("mock confidence = %v, cap is 0.85", a1.Confidence)
	}
	if a1.PredictedContent == nil || !strings.HasPrefix(*a1.PredictedContent, "[INFERRED:") {
		t.Errorf("mock content not marked as inferred: %v", a1.PredictedContent)
	}
	if !strings.HasPrefix(a1.Reasoning, "[MOCK]") {
		t.Errorf("mock reasoning not marked: %q", a1.Reasoning)
	}
}

func TestOrchestratorInfer(t *testing.T) {
	gap := testGap()
	sess := testSession()

	orch := NewOrchestrator(NewMockGenerator(gap), DefaultConfig())
	inf, err := orch.Infer(context.Background(), sess, gap)
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}

	if inf.GapID != gap.ID {
		t.Errorf("gap id = %q, want %q", inf.GapID, gap.ID)
	}
	if inf.Verified != models.VerifiedPending {
		t.Errorf("verified = %q, want pending", inf.Verified)
	}
	if inf.ModelUsed != "mock-v1" {
		t.Errorf("model = %q, want mock-v1", inf.ModelUsed)
	}
	if len(inf.ContextAnchors) != 3 {
		t.Errorf("got %d anchors, want 3", len(inf.ContextAnchors))
	}
	if inf.PredictedIntent == "" {
		t.Error("empty predicted intent")
	}
	if len(inf.HallucinationFlags) != 0 {
		t.Errorf("mock answer flagged: %v", inf.HallucinationFlags)
	}
}

type scriptedGenerator struct {
	calls  int
	errs   []error
	answer *ModelAnswer
}

func (g *scriptedGenerator) ModelName() string { return "scripted" }

func (g *scriptedGenerator) Generate(context.Context, string, []string) (*ModelAnswer, error) {
	defer func() { g.calls++ }()
	if g.calls < len(g.errs) && g.errs[g.calls] != nil {
		return nil, g.errs[g.calls]
	}
	return g.answer, nil
}

func TestGenerateRetry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	answer := &ModelAnswer{PredictedIntent: "something", Confidence: 0.5}

	t.Run("transient failure retries once", func(t *testing.T) {
		gen := &scriptedGenerator{
			errs:   []error{&InferenceError{Op: "call", Err: errors.New("503"), Transient: true}},
			answer: answer,
		}
		orch := NewOrchestrator(gen, cfg)
		if _, err := orch.Infer(context.Background(), testSession(), testGap()); err != nil {
			t.Fatalf("Infer() error = %v", err)
		}
		if gen.calls != 2 {
			t.Errorf("generator called %d times, want 2", gen.calls)
		}
	})

	t.Run("permanent failure does not retry", func(t *testing.T) {
		gen := &scriptedGenerator{
			errs:   []error{errors.New("invalid request"), nil},
			answer: answer,
		}
		orch := NewOrchestrator(gen, cfg)
		if _, err := orch.Infer(context.Background(), testSession(), testGap()); err == nil {
			t.Fatal("Infer() succeeded, want error")
		}
		if gen.calls != 1 {
			t.Errorf("generator called %d times, want 1", gen.calls)
		}
	})

	t.Run("transient failures exhaust the retry budget", func(t *testing.T) {
		transient := &InferenceError{Op: "call", Err: errors.New("timeout"), Transient: true}
		gen := &scriptedGenerator{errs: []error{transient, transient, transient}, answer: answer}
		orch := NewOrchestrator(gen, cfg)
		_, err := orch.Infer(context.Background(), testSession(), testGap())
		if err == nil {
			t.Fatal("Infer() succeeded, want error")
		}
		if gen.calls != cfg.RetryCount+1 {
			t.Errorf("generator called %d times, want %d", gen.calls, cfg.RetryCount+1)
		}
	})
}

func TestCheckAnswer(t *testing.T) {
	participants := []string{"Alice", "Bob"}
	anchors := []string{"[2023-12-25 14:30:00] Alice: are you coming to dinner"}

	t.Run("unknown sender is flagged", func(t *testing.T) {
		mallory := "Mallory"
		a := &ModelAnswer{PredictedIntent: "x", PredictedSender: &mallory, Confidence: 0.5}
		flags := checkAnswer(a, participants, anchors)
		if len(flags) != 1 || !strings.Contains(flags[0], "Mallory") {
			t.Errorf("flags = %v, want unknown-sender flag", flags)
		}
	})

	t.Run("known sender passes case-insensitively", func(t *testing.T) {
		bob := "bob"
		a := &ModelAnswer{PredictedIntent: "x", PredictedSender: &bob, Confidence: 0.5}
		if flags := checkAnswer(a, participants, anchors); len(flags) != 0 {
			t.Errorf("flags = %v, want none", flags)
		}
	})

	t.Run("unanchored temporal claim is flagged", func(t *testing.T) {
		content := "they met on 3/4/2019 at 18:45"
		a := &ModelAnswer{PredictedIntent: "x", PredictedContent: &content, Confidence: 0.5}
		flags := checkAnswer(a, participants, anchors)
		if len(flags) < 2 {
			t.Errorf("flags = %v, want year/time/date flags", flags)
		}
	})

	t.Run("anchored claim passes", func(t *testing.T) {
		content := "probably about dinner at 14:30"
		a := &ModelAnswer{PredictedIntent: "x", PredictedContent: &content, Confidence: 0.5}
		if flags := checkAnswer(a, participants, anchors); len(flags) != 0 {
			t.Errorf("flags = %v, want none", flags)
		}
	})

	t.Run("confidence is clamped", func(t *testing.T) {
		a := &ModelAnswer{PredictedIntent: "x", Confidence: 1.3}
		flags := checkAnswer(a, participants, anchors)
		if a.Confidence != 0.99 {
			t.Errorf("confidence = %v, want 0.99", a.Confidence)
		}
		if len(flags) != 1 {
			t.Errorf("flags = %v, want clamp flag", flags)
		}

		a = &ModelAnswer{PredictedIntent: "x", Confidence: -0.2}
		checkAnswer(a, participants, anchors)
		if a.Confidence != 0 {
			t.Errorf("confidence = %v, want 0", a.Confidence)
		}
	})
}

func TestBuildPrompt(t *testing.T) {
	gap := testGap()
	prompt := BuildPrompt(gap)

	for _, want := range []string{
		"CONTEXT BEFORE GAP:",
		"CONTEXT AFTER GAP:",
		"are you coming to dinner",
		"fine forget it then",
		"120 seconds elapsed",
		"estimated 2 missing messages",
		"explicit_deletion",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	if strings.Contains(prompt, "dinner chat") {
		t.Error("prompt leaked session metadata outside the snapshot")
	}
}

func TestAnswerSchemaNullableFields(t *testing.T) {
	props, ok := answerSchema["properties"].(map[string]any)
	if !ok {
		t.Fatal("schema has no properties object")
	}

	t.Run("pointer fields accept null", func(t *testing.T) {
		for _, name := range []string{"predicted_content", "predicted_sender"} {
			pm, ok := props[name].(map[string]any)
			if !ok {
				t.Fatalf("property %s missing", name)
			}
			types, ok := pm["type"].([]string)
			if !ok {
				t.Fatalf("property %s type = %v, want [string null]", name, pm["type"])
			}
			hasNull := false
			for _, tp := range types {
				if tp == "null" {
					hasNull = true
				}
			}
			if !hasNull {
				t.Errorf("property %s types = %v, null not allowed", name, types)
			}
		}
	})

	t.Run("scalar fields stay non-nullable", func(t *testing.T) {
		for _, name := range []string{"predicted_intent", "reasoning"} {
			pm, ok := props[name].(map[string]any)
			if !ok {
				t.Fatalf("property %s missing", name)
			}
			if tp, ok := pm["type"].(string); !ok || tp != "string" {
				t.Errorf("property %s type = %v, want string", name, pm["type"])
			}
		}
	})

	t.Run("every property required", func(t *testing.T) {
		required, ok := answerSchema["required"].([]string)
		if !ok {
			// The reflector may have emitted the list before the strict
			// rewrite touched it.
			raw, rok := answerSchema["required"].([]any)
			if !rok {
				t.Fatalf("required = %v", answerSchema["required"])
			}
			for _, r := range raw {
				required = append(required, r.(string))
			}
		}
		if len(required) != len(props) {
			t.Errorf("required %v does not cover all %d properties", required, len(props))
		}
	})
}

func TestAnchorsMatchSnapshot(t *testing.T) {
	gap := testGap()
	anchors := Anchors(gap)

	if len(anchors) != len(gap.ContextBefore)+len(gap.ContextAfter) {
		t.Fatalf("got %d anchors, want %d", len(anchors), len(gap.ContextBefore)+len(gap.ContextAfter))
	}
	prompt := BuildPrompt(gap)
	for _, a := range anchors {
		if !strings.Contains(prompt, a) {
			t.Errorf("anchor %q not present verbatim in prompt", a)
		}
	}
}
