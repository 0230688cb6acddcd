package models

import (
	"time"
)

// SessionStatus tracks a session through the import/analysis lifecycle.
type SessionStatus string

const (
	StatusPending  SessionStatus = "pending"
	StatusParsed   SessionStatus = "parsed"
	StatusAnalyzed SessionStatus = "analyzed"
	StatusFailed   SessionStatus = "failed"
)

// Session is one imported chat export.
type Session struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	SourceFormat  string        `json:"source_format"`
	SourceFile    string        `json:"source_file,omitempty"`
	Participants  []string      `json:"participants"`
	StartAt       time.Time     `json:"start_at"`
	EndAt         time.Time     `json:"end_at"`
	TotalMessages int           `json:"total_messages"`
	DetectedGaps  int           `json:"detected_gaps"`
	Status        SessionStatus `json:"status"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// MessageKind classifies a message line from the export.
type MessageKind string

const (
	KindText   MessageKind = "text"
	KindMedia  MessageKind = "media"
	KindSystem MessageKind = "system"
)

// Message is a single utterance. Messages are immutable once created;
// Seq is the sole ordering key used downstream, since wall-clock
// timestamps in exports can repeat or go backwards.
type Message struct {
	ID         int64       `json:"id"`
	SessionID  string      `json:"session_id"`
	Seq        int         `json:"seq"`
	Sender     string      `json:"sender"`
	Content    string      `json:"content"`
	Timestamp  time.Time   `json:"timestamp"`
	Kind       MessageKind `json:"kind"`
	IsDeleted  bool        `json:"is_deleted"`
	WordCount  int         `json:"word_count"`
	HasMedia   bool        `json:"has_media"`
	ReplyToSeq *int        `json:"reply_to_seq,omitempty"`
}

// DetectionType names the signal that flagged a gap.
type DetectionType string

const (
	DetectExplicitDeletion DetectionType = "explicit_deletion"
	DetectTimeAnomaly      DetectionType = "time_anomaly"
	DetectContextMismatch  DetectionType = "context_mismatch"
	DetectPatternBreak     DetectionType = "pattern_break"
)

// ContextMessage is a trimmed snapshot of a message kept on a gap so the
// inference prompt can be rebuilt without re-reading the session.
type ContextMessage struct {
	Seq       int       `json:"seq"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Gap is a candidate discontinuity between two adjacent messages in the
// non-system stream. The stored signal fields (ElapsedSeconds,
// MedianSeconds, Similarity, Contributing) are sufficient to recompute
// SuspicionScore deterministically.
type Gap struct {
	ID               string           `json:"id"`
	SessionID        string           `json:"session_id"`
	BeforeSeq        int              `json:"before_seq"`
	AfterSeq         int              `json:"after_seq"`
	ElapsedSeconds   int64            `json:"elapsed_seconds"`
	EstimatedMissing *int             `json:"estimated_missing,omitempty"`
	DetectionType    DetectionType    `json:"detection_type"`
	Contributing     []DetectionType  `json:"contributing"`
	SuspicionScore   float64          `json:"suspicion_score"`
	Reasons          []string         `json:"reasons"`
	MedianSeconds    float64          `json:"median_seconds"`
	Similarity       float64          `json:"similarity"`
	ContextBefore    []ContextMessage `json:"context_before"`
	ContextAfter     []ContextMessage `json:"context_after"`
	CreatedAt        time.Time        `json:"created_at"`
}

// HasType reports whether dt is among the gap's contributing detections.
func (g *Gap) HasType(dt DetectionType) bool {
	for _, t := range g.Contributing {
		if t == dt {
			return true
		}
	}
	return false
}

// Verification is the human-review state of an inference. It starts
// pending and only an explicit review action moves it.
type Verification string

const (
	VerifiedPending   Verification = "pending"
	VerifiedConfirmed Verification = "confirmed"
	VerifiedRejected  Verification = "rejected"
)

// Inference is a model-generated hypothesis for one gap. At most one
// current inference exists per gap; a new request supersedes the old one.
type Inference struct {
	ID                 string       `json:"id"`
	GapID              string       `json:"gap_id"`
	PredictedIntent    string       `json:"predicted_intent"`
	PredictedContent   *string      `json:"predicted_content,omitempty"`
	PredictedSender    *string      `json:"predicted_sender,omitempty"`
	Confidence         float64      `json:"confidence"`
	ContextAnchors     []string     `json:"context_anchors"`
	ModelUsed          string       `json:"model_used"`
	Reasoning          string       `json:"reasoning"`
	HallucinationFlags []string     `json:"hallucination_flags"`
	Verified           Verification `json:"verified"`
	CreatedAt          time.Time    `json:"created_at"`
}

// SessionStats summarizes the whole database for the stats command.
type SessionStats struct {
	TotalSessions   int            `json:"total_sessions"`
	TotalMessages   int            `json:"total_messages"`
	TotalGaps       int            `json:"total_gaps"`
	TotalInferences int            `json:"total_inferences"`
	FormatBreakdown map[string]int `json:"format_breakdown"`
	StatusBreakdown map[string]int `json:"status_breakdown"`
	HighSuspicion   int            `json:"high_suspicion"`
	DeletedMessages int            `json:"deleted_messages"`
}

// SearchResult is one FTS hit across imported messages.
type SearchResult struct {
	Session Session `json:"session"`
	Message Message `json:"message"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}
