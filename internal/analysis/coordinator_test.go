package analysis

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mward/shadowtrace/internal/gaps"
	"github.com/mward/shadowtrace/internal/inference"
	"github.com/mward/shadowtrace/internal/models"
	"github.com/mward/shadowtrace/internal/score"
	"github.com/mward/shadowtrace/internal/storage"
)

const testExport = `25/12/2023, 14:30 - Alice: are you coming to the dinner tonight
25/12/2023, 14:31 - Bob: This message was deleted
25/12/2023, 14:32 - Alice: fine skip the dinner then`

func testCoordinator(t *testing.T) (*Coordinator, *storage.Store) {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	genFor := func(gap *models.Gap) inference.Generator {
		return inference.NewMockGenerator(gap)
	}
	cfg := inference.DefaultConfig()
	c := NewCoordinator(store, gaps.DefaultConfig(), score.DefaultWeights(), genFor, cfg)
	return c, store
}

func importTestSession(t *testing.T, c *Coordinator) *models.Session {
	t.Helper()
	sess, err := c.Import("dinner chat", "whatsapp", "chat.txt", testExport)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	return sess
}

func TestImport(t *testing.T) {
	c, store := testCoordinator(t)
	sess := importTestSession(t, c)

	if sess.Status != models.StatusParsed {
		t.Errorf("status = %q, want parsed", sess.Status)
	}
	if sess.TotalMessages != 3 {
		t.Errorf("total messages = %d, want 3", sess.TotalMessages)
	}

	msgs, err := store.GetMessages(sess.ID)
	if err != nil {
		t.Fatalf("GetMessages() error = %v", err)
	}
	if len(msgs) != 3 {
		t.Errorf("stored %d messages, want 3", len(msgs))
	}
}

func TestImportParseFailureCreatesNothing(t *testing.T) {
	c, store := testCoordinator(t)

	_, err := c.Import("broken", "whatsapp", "broken.txt", "no timestamps anywhere")
	if err == nil {
		t.Fatal("Import() succeeded on unparseable input")
	}

	sessions, err := store.ListSessions(10, 0)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("%d sessions exist after failed import", len(sessions))
	}
}

func TestImportUnknownFormat(t *testing.T) {
	c, _ := testCoordinator(t)
	if _, err := c.Import("x", "telegram", "x.txt", testExport); err == nil {
		t.Fatal("Import() accepted an unsupported format")
	}
}

func TestAnalyze(t *testing.T) {
	c, store := testCoordinator(t)
	sess := importTestSession(t, c)

	detected, err := c.Analyze(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(detected) != 1 {
		t.Fatalf("got %d gaps, want 1", len(detected))
	}

	g := detected[0]
	if g.DetectionType != models.DetectExplicitDeletion {
		t.Errorf("detection type = %q, want explicit_deletion", g.DetectionType)
	}
	if g.SuspicionScore < score.ExplicitFloor {
		t.Errorf("score = %v, want >= %v for explicit deletion", g.SuspicionScore, score.ExplicitFloor)
	}
	if len(g.Reasons) == 0 {
		t.Error("gap has no reasons")
	}

	stored, err := store.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if stored.Status != models.StatusAnalyzed {
		t.Errorf("status = %q, want analyzed", stored.Status)
	}
	if stored.DetectedGaps != 1 {
		t.Errorf("detected gaps = %d, want 1", stored.DetectedGaps)
	}
}

func TestAnalyzeIdempotent(t *testing.T) {
	c, store := testCoordinator(t)
	sess := importTestSession(t, c)

	first, err := c.Analyze(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	second, err := c.Analyze(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("second Analyze() error = %v", err)
	}

	if len(first) != len(second) {
		t.Errorf("gap counts differ between runs: %d vs %d", len(first), len(second))
	}
	if first[0].SuspicionScore != second[0].SuspicionScore {
		t.Errorf("scores differ between runs: %v vs %v",
			first[0].SuspicionScore, second[0].SuspicionScore)
	}

	persisted, err := store.GapsForSession(sess.ID)
	if err != nil {
		t.Fatalf("GapsForSession() error = %v", err)
	}
	if len(persisted) != len(second) {
		t.Errorf("%d gaps persisted, want %d (replacement, not accumulation)",
			len(persisted), len(second))
	}
}

func TestAnalyzeUnknownSession(t *testing.T) {
	c, _ := testCoordinator(t)
	_, err := c.Analyze(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestAnalyzeSingleFlight(t *testing.T) {
	c, _ := testCoordinator(t)
	sess := importTestSession(t, c)

	if err := c.beginAnalysis(sess.ID); err != nil {
		t.Fatalf("beginAnalysis() error = %v", err)
	}

	_, err := c.Analyze(context.Background(), sess.ID)
	if !errors.Is(err, ErrAnalysisInFlight) {
		t.Errorf("error = %v, want ErrAnalysisInFlight", err)
	}

	c.endAnalysis(sess.ID)
	if _, err := c.Analyze(context.Background(), sess.ID); err != nil {
		t.Errorf("Analyze() after release error = %v", err)
	}
}

func TestAnalyzeCancelledContext(t *testing.T) {
	c, store := testCoordinator(t)
	sess := importTestSession(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Analyze(ctx, sess.ID); err == nil {
		t.Fatal("Analyze() succeeded with cancelled context")
	}

	stored, err := store.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if stored.Status != models.StatusParsed {
		t.Errorf("status = %q, want parsed left untouched", stored.Status)
	}
}

func TestInfer(t *testing.T) {
	c, store := testCoordinator(t)
	sess := importTestSession(t, c)

	detected, err := c.Analyze(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	gapID := detected[0].ID

	inf, err := c.Infer(context.Background(), gapID)
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}
	if inf.Verified != models.VerifiedPending {
		t.Errorf("verified = %q, want pending", inf.Verified)
	}

	again, err := c.Infer(context.Background(), gapID)
	if err != nil {
		t.Fatalf("second Infer() error = %v", err)
	}

	stored, err := store.GetInference(gapID)
	if err != nil {
		t.Fatalf("GetInference() error = %v", err)
	}
	if stored == nil || stored.ID != again.ID {
		t.Errorf("stored inference = %+v, want the superseding one %q", stored, again.ID)
	}
}

func TestInferUnknownGap(t *testing.T) {
	c, _ := testCoordinator(t)
	_, err := c.Infer(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestReview(t *testing.T) {
	c, store := testCoordinator(t)
	sess := importTestSession(t, c)

	detected, err := c.Analyze(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	gapID := detected[0].ID

	if _, err := c.Infer(context.Background(), gapID); err != nil {
		t.Fatalf("Infer() error = %v", err)
	}

	if err := c.Review(gapID, models.VerifiedConfirmed); err != nil {
		t.Fatalf("Review() error = %v", err)
	}

	inf, err := store.GetInference(gapID)
	if err != nil {
		t.Fatalf("GetInference() error = %v", err)
	}
	if inf.Verified != models.VerifiedConfirmed {
		t.Errorf("verified = %q, want confirmed", inf.Verified)
	}

	if err := c.Review(gapID, models.VerifiedRejected); err == nil {
		t.Error("re-reviewing a reviewed inference should fail")
	}
}
