// Package analysis sequences the pipeline for a session and owns the
// single-writer discipline over its gap set and inferences. The lower
// components stay free of locking; all of it lives here.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mward/shadowtrace/internal/audit"
	"github.com/mward/shadowtrace/internal/gaps"
	"github.com/mward/shadowtrace/internal/inference"
	"github.com/mward/shadowtrace/internal/models"
	"github.com/mward/shadowtrace/internal/parser"
	"github.com/mward/shadowtrace/internal/score"
	"github.com/mward/shadowtrace/internal/storage"
)

// ErrAnalysisInFlight is returned when a second Analyze call races an
// in-flight one for the same session. Analysis replaces the whole gap
// set, so concurrent writers are rejected rather than interleaved.
var ErrAnalysisInFlight = errors.New("analysis already in flight for session")

// ErrNotFound is returned for unknown session or gap identifiers.
var ErrNotFound = errors.New("not found")

// AnalysisError wraps a detector or scorer failure. The session is
// marked failed and its prior gap set stays untouched.
type AnalysisError struct {
	SessionID string
	Err       error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis of session %s: %v", e.SessionID, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// GeneratorFactory yields the model capability for one gap. The OpenAI
// factory ignores its argument; the mock derives its answer from the
// gap's own context.
type GeneratorFactory func(gap *models.Gap) inference.Generator

// Coordinator ties parser, detector, scorer and orchestrator together
// over one store.
type Coordinator struct {
	store    *storage.Store
	detector *gaps.Detector
	weights  score.Weights
	genFor   GeneratorFactory
	infCfg   inference.Config

	mu       sync.Mutex
	inFlight map[string]bool

	inferSem chan struct{}

	trail *audit.Trail
}

func NewCoordinator(store *storage.Store, detCfg gaps.Config, weights score.Weights, genFor GeneratorFactory, infCfg inference.Config) *Coordinator {
	limit := infCfg.ConcurrencyLimit
	if limit < 1 {
		limit = 1
	}
	return &Coordinator{
		store:    store,
		detector: gaps.NewDetector(detCfg),
		weights:  weights,
		genFor:   genFor,
		infCfg:   infCfg,
		inFlight: make(map[string]bool),
		inferSem: make(chan struct{}, limit),
	}
}

// SetTrail attaches a chain-of-custody trail. Every state-changing
// operation then leaves an event on it.
func (c *Coordinator) SetTrail(t *audit.Trail) {
	c.trail = t
}

func (c *Coordinator) record(action, sessionID, gapID, detail string) {
	if c.trail == nil {
		return
	}
	// Best effort; a trail failure must not fail the operation.
	_ = c.trail.Record(audit.Event{
		Action:    action,
		SessionID: sessionID,
		GapID:     gapID,
		Detail:    detail,
	})
}

// Import parses raw export text and persists the session with its full
// message sequence. A parse failure creates nothing.
func (c *Coordinator) Import(name, format, sourceFile, raw string) (*models.Session, error) {
	grammar, ok := parser.ByFormat(format)
	if !ok {
		return nil, fmt.Errorf("unsupported source format %q", format)
	}

	result, err := parser.Parse(raw, grammar)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sess := &models.Session{
		ID:            uuid.NewString(),
		Name:          name,
		SourceFormat:  format,
		SourceFile:    sourceFile,
		Participants:  result.Participants,
		StartAt:       result.StartAt,
		EndAt:         result.EndAt,
		TotalMessages: len(result.Messages),
		Status:        models.StatusParsed,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if sess.SourceFormat == "" {
		sess.SourceFormat = "whatsapp"
	}

	if err := c.store.CreateSession(sess, result.Messages); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	c.record(audit.ActionImport, sess.ID, "", fmt.Sprintf("%d messages from %s", sess.TotalMessages, sess.SourceFile))
	return sess, nil
}

// Analyze runs detection and scoring over a parsed session, replacing
// its gap set atomically. Idempotent for an unchanged export modulo gap
// identifiers and timestamps. Not re-entrant per session: a concurrent
// call gets ErrAnalysisInFlight.
func (c *Coordinator) Analyze(ctx context.Context, sessionID string) ([]models.Gap, error) {
	if err := c.beginAnalysis(sessionID); err != nil {
		return nil, err
	}
	defer c.endAnalysis(sessionID)

	sess, err := c.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}

	msgs, err := c.store.GetMessages(sessionID)
	if err != nil {
		return nil, c.fail(sessionID, err)
	}

	if err := ctx.Err(); err != nil {
		// Cancelled before commit: prior status and gap set stand.
		return nil, err
	}

	detected := c.detector.Detect(sessionID, msgs)
	for i := range detected {
		g := &detected[i]
		g.SuspicionScore, g.Reasons = score.Score(score.SignalsFromGap(g), c.weights)
	}

	if err := c.store.ReplaceGaps(sessionID, detected); err != nil {
		return nil, c.fail(sessionID, err)
	}
	if err := c.store.UpdateSessionStatus(sessionID, models.StatusAnalyzed, "", len(detected)); err != nil {
		return nil, err
	}
	c.record(audit.ActionAnalyze, sessionID, "", fmt.Sprintf("%d gaps detected", len(detected)))
	return detected, nil
}

func (c *Coordinator) fail(sessionID string, err error) error {
	analysisErr := &AnalysisError{SessionID: sessionID, Err: err}
	// Best effort; the original failure is what the caller needs. The
	// prior gap set survives a failed analysis, so its count does too.
	_ = c.store.MarkSessionFailed(sessionID, analysisErr.Error())
	return analysisErr
}

func (c *Coordinator) beginAnalysis(sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[sessionID] {
		return ErrAnalysisInFlight
	}
	c.inFlight[sessionID] = true
	return nil
}

func (c *Coordinator) endAnalysis(sessionID string) {
	c.mu.Lock()
	delete(c.inFlight, sessionID)
	c.mu.Unlock()
}

// Infer asks the model for a hypothesis on one gap and persists it,
// superseding any prior inference for that gap. Calls for different
// gaps may run concurrently up to the configured limit.
func (c *Coordinator) Infer(ctx context.Context, gapID string) (*models.Inference, error) {
	select {
	case c.inferSem <- struct{}{}:
		defer func() { <-c.inferSem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	gap, err := c.store.GetGap(gapID)
	if err != nil {
		return nil, err
	}
	if gap == nil {
		return nil, fmt.Errorf("gap %s: %w", gapID, ErrNotFound)
	}
	sess, err := c.store.GetSession(gap.SessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("session %s: %w", gap.SessionID, ErrNotFound)
	}

	orch := inference.NewOrchestrator(c.genFor(gap), c.infCfg)
	inf, err := orch.Infer(ctx, sess, gap)
	if err != nil {
		// Failed calls persist nothing; the gap's prior inference, if
		// any, stays current.
		return nil, err
	}

	if err := c.store.ReplaceInference(inf); err != nil {
		return nil, fmt.Errorf("failed to save inference: %w", err)
	}
	c.record(audit.ActionInfer, gap.SessionID, gapID, fmt.Sprintf("model %s, confidence %.2f", inf.ModelUsed, inf.Confidence))
	return inf, nil
}

// Review applies a human verdict to a gap's pending inference.
func (c *Coordinator) Review(gapID string, verdict models.Verification) error {
	if err := c.store.SetVerification(gapID, verdict); err != nil {
		return err
	}
	c.record(audit.ActionReview, "", gapID, string(verdict))
	return nil
}
