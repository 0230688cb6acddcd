package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

type Handlers struct {
	db *sql.DB
}

func NewHandlers(db *sql.DB) *Handlers {
	return &Handlers{db: db}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}
	respondWithJSON(w, http.StatusOK, response)
}

func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	queryParams := r.URL.Query()

	limit := 50
	if l := queryParams.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	offset := 0
	if o := queryParams.Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	query := `
		SELECT
			id, name, source_format, source_file, participants,
			total_messages, detected_gaps, status, created_at, updated_at
		FROM sessions
		WHERE 1=1`

	args := []interface{}{}

	if status := queryParams.Get("status"); status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	if format := queryParams.Get("format"); format != "" {
		query += " AND source_format = ?"
		args = append(args, format)
	}

	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := h.db.Query(query, args...)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to query sessions")
		return
	}
	defer rows.Close()

	sessions := []map[string]interface{}{}
	for rows.Next() {
		sess, err := scanSessionRow(rows)
		if err != nil {
			continue
		}
		sessions = append(sessions, sess)
	}

	response := map[string]interface{}{
		"sessions": sessions,
		"limit":    limit,
		"offset":   offset,
		"total":    len(sessions),
	}
	respondWithJSON(w, http.StatusOK, response)
}

func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	row := h.db.QueryRow(`
		SELECT
			id, name, source_format, source_file, participants,
			total_messages, detected_gaps, status, created_at, updated_at
		FROM sessions
		WHERE id = ?
	`, id)

	sess, err := scanSessionRow(row)
	if err == sql.ErrNoRows {
		respondWithError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	respondWithJSON(w, http.StatusOK, sess)
}

func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	result, err := h.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		respondWithError(w, http.StatusNotFound, "Session not found")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{"deleted": id})
}

func (h *Handlers) GetMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rows, err := h.db.Query(`
		SELECT seq, sender, content, timestamp, kind, is_deleted, word_count, has_media
		FROM messages
		WHERE session_id = ?
		ORDER BY seq
	`, id)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to query messages")
		return
	}
	defer rows.Close()

	messages := []map[string]interface{}{}
	for rows.Next() {
		var msg struct {
			Seq       int
			Sender    string
			Content   sql.NullString
			Timestamp time.Time
			Kind      string
			IsDeleted bool
			WordCount int
			HasMedia  bool
		}

		err := rows.Scan(
			&msg.Seq, &msg.Sender, &msg.Content, &msg.Timestamp,
			&msg.Kind, &msg.IsDeleted, &msg.WordCount, &msg.HasMedia,
		)
		if err != nil {
			continue
		}

		messages = append(messages, map[string]interface{}{
			"seq":        msg.Seq,
			"sender":     msg.Sender,
			"content":    msg.Content.String,
			"timestamp":  msg.Timestamp.Format(time.RFC3339),
			"kind":       msg.Kind,
			"is_deleted": msg.IsDeleted,
			"word_count": msg.WordCount,
			"has_media":  msg.HasMedia,
		})
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"messages":   messages,
		"total":      len(messages),
	})
}

func (h *Handlers) GetGaps(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	minScore := 0.0
	if m := r.URL.Query().Get("min_score"); m != "" {
		if parsed, err := strconv.ParseFloat(m, 64); err == nil {
			minScore = parsed
		}
	}

	rows, err := h.db.Query(`
		SELECT id, before_seq, after_seq, elapsed_seconds, estimated_missing,
			detection_type, contributing, suspicion_score, reasons, created_at
		FROM gaps
		WHERE session_id = ? AND suspicion_score >= ?
		ORDER BY suspicion_score DESC, before_seq
	`, id, minScore)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to query gaps")
		return
	}
	defer rows.Close()

	gaps := []map[string]interface{}{}
	for rows.Next() {
		var gap struct {
			ID               string
			BeforeSeq        int
			AfterSeq         int
			ElapsedSeconds   int64
			EstimatedMissing sql.NullInt64
			DetectionType    string
			Contributing     sql.NullString
			SuspicionScore   float64
			Reasons          sql.NullString
			CreatedAt        time.Time
		}

		err := rows.Scan(
			&gap.ID, &gap.BeforeSeq, &gap.AfterSeq, &gap.ElapsedSeconds,
			&gap.EstimatedMissing, &gap.DetectionType, &gap.Contributing,
			&gap.SuspicionScore, &gap.Reasons, &gap.CreatedAt,
		)
		if err != nil {
			continue
		}

		entry := map[string]interface{}{
			"id":              gap.ID,
			"before_seq":      gap.BeforeSeq,
			"after_seq":       gap.AfterSeq,
			"elapsed_seconds": gap.ElapsedSeconds,
			"detection_type":  gap.DetectionType,
			"contributing":    decodeJSONList(gap.Contributing.String),
			"suspicion_score": gap.SuspicionScore,
			"reasons":         decodeJSONList(gap.Reasons.String),
			"created_at":      gap.CreatedAt.Format(time.RFC3339),
		}
		if gap.EstimatedMissing.Valid {
			entry["estimated_missing"] = gap.EstimatedMissing.Int64
		}
		gaps = append(gaps, entry)
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"gaps":       gaps,
		"total":      len(gaps),
	})
}

func (h *Handlers) GetInference(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var inf struct {
		ID                 string
		GapID              string
		PredictedIntent    string
		PredictedContent   sql.NullString
		PredictedSender    sql.NullString
		Confidence         float64
		ContextAnchors     sql.NullString
		ModelUsed          string
		Reasoning          sql.NullString
		HallucinationFlags sql.NullString
		Verified           string
		CreatedAt          time.Time
	}

	err := h.db.QueryRow(`
		SELECT id, gap_id, predicted_intent, predicted_content, predicted_sender,
			confidence, context_anchors, model_used, reasoning, hallucination_flags,
			verified, created_at
		FROM inferences
		WHERE gap_id = ?
	`, id).Scan(
		&inf.ID, &inf.GapID, &inf.PredictedIntent, &inf.PredictedContent,
		&inf.PredictedSender, &inf.Confidence, &inf.ContextAnchors, &inf.ModelUsed,
		&inf.Reasoning, &inf.HallucinationFlags, &inf.Verified, &inf.CreatedAt,
	)

	if err == sql.ErrNoRows {
		respondWithError(w, http.StatusNotFound, "No inference for gap")
		return
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get inference")
		return
	}

	response := map[string]interface{}{
		"id":                  inf.ID,
		"gap_id":              inf.GapID,
		"predicted_intent":    inf.PredictedIntent,
		"confidence":          inf.Confidence,
		"context_anchors":     decodeJSONList(inf.ContextAnchors.String),
		"model_used":          inf.ModelUsed,
		"reasoning":           inf.Reasoning.String,
		"hallucination_flags": decodeJSONList(inf.HallucinationFlags.String),
		"verified":            inf.Verified,
		"created_at":          inf.CreatedAt.Format(time.RFC3339),
	}
	if inf.PredictedContent.Valid {
		response["predicted_content"] = inf.PredictedContent.String
	}
	if inf.PredictedSender.Valid {
		response["predicted_sender"] = inf.PredictedSender.String
	}

	respondWithJSON(w, http.StatusOK, response)
}

func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		respondWithError(w, http.StatusBadRequest, "Query parameter 'q' is required")
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	rows, err := h.db.Query(`
		SELECT m.session_id, s.name, m.seq, m.sender, m.content, m.timestamp,
			bm25(messages_fts) as score
		FROM messages_fts
		JOIN messages m ON messages_fts.rowid = m.id
		JOIN sessions s ON m.session_id = s.id
		WHERE messages_fts MATCH ?
		ORDER BY score
		LIMIT ?
	`, query, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Search failed")
		return
	}
	defer rows.Close()

	results := []map[string]interface{}{}
	for rows.Next() {
		var hit struct {
			SessionID   string
			SessionName string
			Seq         int
			Sender      string
			Content     sql.NullString
			Timestamp   time.Time
			Score       float64
		}

		err := rows.Scan(
			&hit.SessionID, &hit.SessionName, &hit.Seq, &hit.Sender,
			&hit.Content, &hit.Timestamp, &hit.Score,
		)
		if err != nil {
			continue
		}

		results = append(results, map[string]interface{}{
			"session_id":   hit.SessionID,
			"session_name": hit.SessionName,
			"seq":          hit.Seq,
			"sender":       hit.Sender,
			"content":      hit.Content.String,
			"timestamp":    hit.Timestamp.Format(time.RFC3339),
			"score":        hit.Score,
		})
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"query":   query,
		"results": results,
		"total":   len(results),
	})
}

func (h *Handlers) GetStatistics(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{}

	counts := map[string]string{
		"total_sessions":   "SELECT COUNT(*) FROM sessions",
		"total_messages":   "SELECT COUNT(*) FROM messages",
		"total_gaps":       "SELECT COUNT(*) FROM gaps",
		"total_inferences": "SELECT COUNT(*) FROM inferences",
		"deleted_messages": "SELECT COUNT(*) FROM messages WHERE is_deleted = 1",
	}
	for key, query := range counts {
		var n int
		if err := h.db.QueryRow(query).Scan(&n); err == nil {
			stats[key] = n
		}
	}

	var high int
	if err := h.db.QueryRow("SELECT COUNT(*) FROM gaps WHERE suspicion_score >= ?", 0.6).Scan(&high); err == nil {
		stats["high_suspicion"] = high
	}

	statusBreakdown := map[string]int{}
	rows, err := h.db.Query("SELECT status, COUNT(*) FROM sessions GROUP BY status")
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var status string
			var count int
			if err := rows.Scan(&status, &count); err == nil {
				statusBreakdown[status] = count
			}
		}
	}
	stats["status_breakdown"] = statusBreakdown

	respondWithJSON(w, http.StatusOK, stats)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSessionRow(row rowScanner) (map[string]interface{}, error) {
	var sess struct {
		ID            string
		Name          string
		SourceFormat  string
		SourceFile    sql.NullString
		Participants  sql.NullString
		TotalMessages int
		DetectedGaps  int
		Status        string
		CreatedAt     time.Time
		UpdatedAt     time.Time
	}

	err := row.Scan(
		&sess.ID, &sess.Name, &sess.SourceFormat, &sess.SourceFile,
		&sess.Participants, &sess.TotalMessages, &sess.DetectedGaps,
		&sess.Status, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"id":             sess.ID,
		"name":           sess.Name,
		"source_format":  sess.SourceFormat,
		"source_file":    sess.SourceFile.String,
		"participants":   decodeJSONList(sess.Participants.String),
		"total_messages": sess.TotalMessages,
		"detected_gaps":  sess.DetectedGaps,
		"status":         sess.Status,
		"created_at":     sess.CreatedAt.Format(time.RFC3339),
		"updated_at":     sess.UpdatedAt.Format(time.RFC3339),
	}, nil
}

func decodeJSONList(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return []string{}
	}
	return out
}

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, map[string]string{"error": message})
}
