// Package inference drives the constrained-context model call for one
// gap and guards its answer against hallucination before it is stored.
package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mward/shadowtrace/internal/models"
)

// ModelAnswer is the structured answer the model capability returns.
// Omitted fields map to explicit nils, never absent keys.
type ModelAnswer struct {
	PredictedIntent  string  `json:"predicted_intent"`
	PredictedContent *string `json:"predicted_content"`
	PredictedSender  *string `json:"predicted_sender"`
	Confidence       float64 `json:"confidence"`
	Reasoning        string  `json:"reasoning"`
}

// Generator is the narrow interface to the external model capability.
type Generator interface {
	ModelName() string
	Generate(ctx context.Context, prompt string, participants []string) (*ModelAnswer, error)
}

// InferenceError wraps transport and malformed-answer failures. No
// inference is persisted when one is returned.
type InferenceError struct {
	Op        string
	Err       error
	Transient bool
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference %s: %v", e.Op, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// Config controls the orchestrator's model interaction.
type Config struct {
	// Timeout bounds a single model call.
	Timeout time.Duration
	// RetryCount is how many additional attempts follow a transient
	// transport failure.
	RetryCount int
	// RetryDelay is the wait before the retry attempt.
	RetryDelay time.Duration
	// ConcurrencyLimit bounds in-flight inference calls; enforced by the
	// coordinator, carried here so the whole surface is one config.
	ConcurrencyLimit int
}

func DefaultConfig() Config {
	return Config{
		Timeout:          45 * time.Second,
		RetryCount:       1,
		RetryDelay:       2 * time.Second,
		ConcurrencyLimit: 4,
	}
}

// Orchestrator builds the anchored prompt, invokes the generator and
// validates its answer.
type Orchestrator struct {
	gen Generator
	cfg Config
}

func NewOrchestrator(gen Generator, cfg Config) *Orchestrator {
	return &Orchestrator{gen: gen, cfg: cfg}
}

// Infer produces an inference for one gap. The prompt contains only the
// gap's stored context snapshot and quantitative signals, never the full
// session. Hallucination checks annotate rather than discard: the
// inference always comes back pending for human review.
func (o *Orchestrator) Infer(ctx context.Context, session *models.Session, gap *models.Gap) (*models.Inference, error) {
	prompt := BuildPrompt(gap)
	anchors := Anchors(gap)

	answer, err := o.generateWithRetry(ctx, prompt, session.Participants)
	if err != nil {
		return nil, err
	}
	if answer == nil || answer.PredictedIntent == "" {
		return nil, &InferenceError{Op: "validate", Err: errors.New("model returned no predicted intent")}
	}

	flags := checkAnswer(answer, session.Participants, anchors)

	return &models.Inference{
		ID:                 uuid.NewString(),
		GapID:              gap.ID,
		PredictedIntent:    answer.PredictedIntent,
		PredictedContent:   answer.PredictedContent,
		PredictedSender:    answer.PredictedSender,
		Confidence:         answer.Confidence,
		ContextAnchors:     anchors,
		ModelUsed:          o.gen.ModelName(),
		Reasoning:          answer.Reasoning,
		HallucinationFlags: flags,
		Verified:           models.VerifiedPending,
		CreatedAt:          time.Now().UTC(),
	}, nil
}

func (o *Orchestrator) generateWithRetry(ctx context.Context, prompt string, participants []string) (*ModelAnswer, error) {
	attempts := o.cfg.RetryCount + 1
	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, &InferenceError{Op: "generate", Err: ctx.Err(), Transient: true}
			case <-time.After(o.cfg.RetryDelay):
			}
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if o.cfg.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		}
		answer, err := o.gen.Generate(callCtx, prompt, participants)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return answer, nil
		}

		last = err
		if !isTransient(err) {
			return nil, &InferenceError{Op: "generate", Err: err}
		}
	}
	return nil, &InferenceError{Op: "generate", Err: last, Transient: true}
}

// isTransient reports whether the failure is worth one bounded retry:
// a timeout or a transport error the generator marked transient.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var infErr *InferenceError
	if errors.As(err, &infErr) {
		return infErr.Transient
	}
	return false
}
