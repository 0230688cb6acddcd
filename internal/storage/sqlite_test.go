package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mward/shadowtrace/internal/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testSession(id string) (*models.Session, []models.Message) {
	at := time.Date(2023, 12, 25, 14, 30, 0, 0, time.UTC)
	sess := &models.Session{
		ID:            id,
		Name:          "test chat",
		SourceFormat:  "whatsapp",
		SourceFile:    "chat.txt",
		Participants:  []string{"Alice", "Bob"},
		StartAt:       at,
		EndAt:         at.Add(2 * time.Minute),
		TotalMessages: 3,
		Status:        models.StatusParsed,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
	msgs := []models.Message{
		{Seq: 0, Sender: "Alice", Content: "the quarterly report is ready", Timestamp: at, Kind: models.KindText, WordCount: 5},
		{Seq: 1, Sender: "Bob", Content: "", Timestamp: at.Add(time.Minute), Kind: models.KindText, IsDeleted: true},
		{Seq: 2, Sender: "Alice", Content: "did you get it", Timestamp: at.Add(2 * time.Minute), Kind: models.KindText, WordCount: 4},
	}
	return sess, msgs
}

func testGap(id, sessionID string) models.Gap {
	at := time.Date(2023, 12, 25, 14, 30, 0, 0, time.UTC)
	est := 1
	return models.Gap{
		ID:               id,
		SessionID:        sessionID,
		BeforeSeq:        0,
		AfterSeq:         1,
		ElapsedSeconds:   60,
		EstimatedMissing: &est,
		DetectionType:    models.DetectExplicitDeletion,
		Contributing:     []models.DetectionType{models.DetectExplicitDeletion},
		SuspicionScore:   0.62,
		Reasons:          []string{"message explicitly marked as deleted"},
		MedianSeconds:    60,
		Similarity:       0.5,
		ContextBefore:    []models.ContextMessage{{Seq: 0, Sender: "Alice", Content: "hi", Timestamp: at}},
		CreatedAt:        at,
	}
}

func TestSessionRoundTrip(t *testing.T) {
	store := testStore(t)
	sess, msgs := testSession("s1")

	if err := store.CreateSession(sess, msgs); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	got, err := store.GetSession("s1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetSession() returned nil for existing session")
	}
	if got.Name != sess.Name || got.SourceFormat != sess.SourceFormat {
		t.Errorf("got %+v, want name/format preserved", got)
	}
	if len(got.Participants) != 2 || got.Participants[0] != "Alice" {
		t.Errorf("participants = %v, want [Alice Bob]", got.Participants)
	}
	if got.Status != models.StatusParsed {
		t.Errorf("status = %q, want parsed", got.Status)
	}

	stored, err := store.GetMessages("s1")
	if err != nil {
		t.Fatalf("GetMessages() error = %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("got %d messages, want 3", len(stored))
	}
	for i, m := range stored {
		if m.Seq != i {
			t.Errorf("message %d has seq %d", i, m.Seq)
		}
	}
	if !stored[1].IsDeleted || stored[1].Content != "" {
		t.Errorf("deleted message = %+v, want empty content", stored[1])
	}
}

func TestGetSessionMissing(t *testing.T) {
	store := testStore(t)

	got, err := store.GetSession("nope")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got != nil {
		t.Errorf("got %+v, want nil for missing session", got)
	}
}

func TestListSessions(t *testing.T) {
	store := testStore(t)

	for _, id := range []string{"s1", "s2"} {
		sess, msgs := testSession(id)
		if err := store.CreateSession(sess, msgs); err != nil {
			t.Fatalf("CreateSession(%s) error = %v", id, err)
		}
	}

	sessions, err := store.ListSessions(10, 0)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("got %d sessions, want 2", len(sessions))
	}
}

func TestReplaceGaps(t *testing.T) {
	store := testStore(t)
	sess, msgs := testSession("s1")
	if err := store.CreateSession(sess, msgs); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	first := []models.Gap{testGap("g1", "s1"), testGap("g2", "s1")}
	if err := store.ReplaceGaps("s1", first); err != nil {
		t.Fatalf("ReplaceGaps() error = %v", err)
	}

	second := []models.Gap{testGap("g3", "s1")}
	if err := store.ReplaceGaps("s1", second); err != nil {
		t.Fatalf("ReplaceGaps() error = %v", err)
	}

	gaps, err := store.GapsForSession("s1")
	if err != nil {
		t.Fatalf("GapsForSession() error = %v", err)
	}
	if len(gaps) != 1 || gaps[0].ID != "g3" {
		t.Errorf("gaps = %+v, want only g3 after replacement", gaps)
	}

	g := gaps[0]
	if g.EstimatedMissing == nil || *g.EstimatedMissing != 1 {
		t.Errorf("estimated missing = %v, want 1", g.EstimatedMissing)
	}
	if len(g.Contributing) != 1 || g.Contributing[0] != models.DetectExplicitDeletion {
		t.Errorf("contributing = %v", g.Contributing)
	}
	if len(g.ContextBefore) != 1 || g.ContextBefore[0].Sender != "Alice" {
		t.Errorf("context before = %+v", g.ContextBefore)
	}
}

func TestGapsOrderedByScore(t *testing.T) {
	store := testStore(t)
	sess, msgs := testSession("s1")
	if err := store.CreateSession(sess, msgs); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	low := testGap("low", "s1")
	low.SuspicionScore = 0.2
	high := testGap("high", "s1")
	high.SuspicionScore = 0.9

	if err := store.ReplaceGaps("s1", []models.Gap{low, high}); err != nil {
		t.Fatalf("ReplaceGaps() error = %v", err)
	}

	gaps, err := store.GapsForSession("s1")
	if err != nil {
		t.Fatalf("GapsForSession() error = %v", err)
	}
	if len(gaps) != 2 || gaps[0].ID != "high" {
		t.Errorf("order = %v, want highest suspicion first", []string{gaps[0].ID, gaps[1].ID})
	}
}

func TestReplaceInference(t *testing.T) {
	store := testStore(t)
	sess, msgs := testSession("s1")
	if err := store.CreateSession(sess, msgs); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if err := store.ReplaceGaps("s1", []models.Gap{testGap("g1", "s1")}); err != nil {
		t.Fatalf("ReplaceGaps() error = %v", err)
	}

	content := "probably a yes"
	first := &models.Inference{
		ID: "i1", GapID: "g1", PredictedIntent: "answer", PredictedContent: &content,
		Confidence: 0.5, ContextAnchors: []string{"a"}, ModelUsed: "mock-v1",
		Verified: models.VerifiedPending, CreatedAt: time.Now().UTC(),
	}
	if err := store.ReplaceInference(first); err != nil {
		t.Fatalf("ReplaceInference() error = %v", err)
	}

	second := &models.Inference{
		ID: "i2", GapID: "g1", PredictedIntent: "revised answer",
		Confidence: 0.7, ModelUsed: "mock-v1",
		Verified: models.VerifiedPending, CreatedAt: time.Now().UTC(),
	}
	if err := store.ReplaceInference(second); err != nil {
		t.Fatalf("ReplaceInference() error = %v", err)
	}

	got, err := store.GetInference("g1")
	if err != nil {
		t.Fatalf("GetInference() error = %v", err)
	}
	if got == nil || got.ID != "i2" {
		t.Fatalf("got %+v, want the superseding inference", got)
	}
	if got.PredictedContent != nil {
		t.Errorf("content = %v, want nil carried through", *got.PredictedContent)
	}
}

func TestSetVerification(t *testing.T) {
	store := testStore(t)
	sess, msgs := testSession("s1")
	if err := store.CreateSession(sess, msgs); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if err := store.ReplaceGaps("s1", []models.Gap{testGap("g1", "s1")}); err != nil {
		t.Fatalf("ReplaceGaps() error = %v", err)
	}

	t.Run("no inference yet", func(t *testing.T) {
		if err := store.SetVerification("g1", models.VerifiedConfirmed); err == nil {
			t.Error("SetVerification() succeeded with no inference")
		}
	})

	inf := &models.Inference{
		ID: "i1", GapID: "g1", PredictedIntent: "x", Confidence: 0.5,
		ModelUsed: "mock-v1", Verified: models.VerifiedPending, CreatedAt: time.Now().UTC(),
	}
	if err := store.ReplaceInference(inf); err != nil {
		t.Fatalf("ReplaceInference() error = %v", err)
	}

	t.Run("invalid verdict", func(t *testing.T) {
		if err := store.SetVerification("g1", models.VerifiedPending); err == nil {
			t.Error("SetVerification(pending) should be rejected")
		}
	})

	t.Run("pending to confirmed", func(t *testing.T) {
		if err := store.SetVerification("g1", models.VerifiedConfirmed); err != nil {
			t.Fatalf("SetVerification() error = %v", err)
		}
		got, err := store.GetInference("g1")
		if err != nil {
			t.Fatalf("GetInference() error = %v", err)
		}
		if got.Verified != models.VerifiedConfirmed {
			t.Errorf("verified = %q, want confirmed", got.Verified)
		}
	})

	t.Run("verification is terminal", func(t *testing.T) {
		if err := store.SetVerification("g1", models.VerifiedRejected); err == nil {
			t.Error("re-reviewing a reviewed inference should fail")
		}
	})
}

func TestSearchMessages(t *testing.T) {
	store := testStore(t)
	sess, msgs := testSession("s1")
	if err := store.CreateSession(sess, msgs); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	results, err := store.SearchMessages("quarterly", 10)
	if err != nil {
		t.Fatalf("SearchMessages() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Message.Seq != 0 || results[0].Session.Name != "test chat" {
		t.Errorf("result = %+v", results[0])
	}

	none, err := store.SearchMessages("zebra", 10)
	if err != nil {
		t.Fatalf("SearchMessages() error = %v", err)
	}
	if len(none) != 0 {
		t.Errorf("got %d results for absent term, want 0", len(none))
	}
}

func TestMarkSessionFailedKeepsGapCount(t *testing.T) {
	store := testStore(t)
	sess, msgs := testSession("s1")
	if err := store.CreateSession(sess, msgs); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if err := store.ReplaceGaps("s1", []models.Gap{testGap("g1", "s1")}); err != nil {
		t.Fatalf("ReplaceGaps() error = %v", err)
	}
	if err := store.UpdateSessionStatus("s1", models.StatusAnalyzed, "", 1); err != nil {
		t.Fatalf("UpdateSessionStatus() error = %v", err)
	}

	if err := store.MarkSessionFailed("s1", "analysis of session s1: boom"); err != nil {
		t.Fatalf("MarkSessionFailed() error = %v", err)
	}

	got, err := store.GetSession("s1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Status != models.StatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Error("error message not recorded")
	}
	if got.DetectedGaps != 1 {
		t.Errorf("detected gaps = %d, want 1 (failure must not touch the count)", got.DetectedGaps)
	}
}

func TestStats(t *testing.T) {
	store := testStore(t)
	sess, msgs := testSession("s1")
	if err := store.CreateSession(sess, msgs); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if err := store.ReplaceGaps("s1", []models.Gap{testGap("g1", "s1")}); err != nil {
		t.Fatalf("ReplaceGaps() error = %v", err)
	}

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalSessions != 1 || stats.TotalMessages != 3 || stats.TotalGaps != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.DeletedMessages != 1 {
		t.Errorf("deleted messages = %d, want 1", stats.DeletedMessages)
	}
	if stats.HighSuspicion != 1 {
		t.Errorf("high suspicion = %d, want 1 (score 0.62 >= 0.6)", stats.HighSuspicion)
	}
	if stats.FormatBreakdown["whatsapp"] != 1 {
		t.Errorf("format breakdown = %v", stats.FormatBreakdown)
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	store := testStore(t)
	sess, msgs := testSession("s1")
	if err := store.CreateSession(sess, msgs); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if err := store.ReplaceGaps("s1", []models.Gap{testGap("g1", "s1")}); err != nil {
		t.Fatalf("ReplaceGaps() error = %v", err)
	}

	if err := store.DeleteSession("s1"); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}

	remaining, err := store.GetMessages("s1")
	if err != nil {
		t.Fatalf("GetMessages() error = %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("%d messages survived the cascade", len(remaining))
	}
	gap, err := store.GetGap("g1")
	if err != nil {
		t.Fatalf("GetGap() error = %v", err)
	}
	if gap != nil {
		t.Errorf("gap survived the cascade: %+v", gap)
	}
}
