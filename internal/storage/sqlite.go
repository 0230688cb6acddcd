package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mward/shadowtrace/internal/models"
)

// Store persists sessions, messages, gaps and inferences. It keeps a
// single write connection and a small read pool, the arrangement WAL
// mode likes best.
type Store struct {
	writeDB *sql.DB
	readDB  *sql.DB
	dbPath  string
}

func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(homeDir, ".shadowtrace", "sessions.db")
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	writeDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open write database: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(5)
	readDB.SetMaxIdleConns(5)

	store := &Store{
		writeDB: writeDB,
		readDB:  readDB,
		dbPath:  dbPath,
	}

	if err := store.initializeDB(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := store.createTables(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

func (s *Store) initializeDB() error {
	config := DefaultConfig()
	for _, pragma := range config.pragmas() {
		if _, err := s.writeDB.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) createTables() error {
	queries := []string{
		queryCreateSessionsTable,
		queryCreateMessagesTable,
		queryCreateGapsTable,
		queryCreateInferencesTable,
		queryCreateIndexMessagesSession,
		queryCreateIndexGapsSession,
		queryCreateIndexGapsScore,
		queryCreateIndexSessionsStatus,
		queryCreateIndexSessionsCreated,
		queryCreateMessagesFTS,
		queryCreateMessagesInsertTrigger,
		queryCreateMessagesDeleteTrigger,
	}

	for _, query := range queries {
		if _, err := s.writeDB.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// CreateSession saves the session and its full message sequence in one
// transaction: either the whole parse lands or none of it does.
func (s *Store) CreateSession(sess *models.Session, msgs []models.Message) error {
	tx, err := s.writeDB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	participantsJSON, _ := json.Marshal(sess.Participants)

	_, err = tx.Exec(
		queryInsertSession,
		sess.ID, sess.Name, sess.SourceFormat, sess.SourceFile, string(participantsJSON),
		sess.StartAt, sess.EndAt, sess.TotalMessages, sess.DetectedGaps,
		string(sess.Status), sess.ErrorMessage, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return err
	}

	for i := range msgs {
		m := &msgs[i]
		var content any
		if !m.IsDeleted {
			content = m.Content
		}
		result, err := tx.Exec(
			queryInsertMessage,
			sess.ID, m.Seq, m.Sender, content, m.Timestamp,
			string(m.Kind), m.IsDeleted, m.WordCount, m.HasMedia, m.ReplyToSeq,
		)
		if err != nil {
			return err
		}
		id, _ := result.LastInsertId()
		m.ID = id
		m.SessionID = sess.ID
	}

	return tx.Commit()
}

// GetSession returns nil, nil when the session does not exist.
func (s *Store) GetSession(id string) (*models.Session, error) {
	row := s.readDB.QueryRow(querySelectSession, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sess, err
}

func (s *Store) ListSessions(limit, offset int) ([]models.Session, error) {
	rows, err := s.readDB.Query(querySelectSessions, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

func (s *Store) GetMessages(sessionID string) ([]models.Message, error) {
	rows, err := s.readDB.Query(querySelectMessages, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		var content sql.NullString
		var replyTo sql.NullInt64
		err := rows.Scan(&m.ID, &m.SessionID, &m.Seq, &m.Sender, &content, &m.Timestamp,
			&m.Kind, &m.IsDeleted, &m.WordCount, &m.HasMedia, &replyTo)
		if err != nil {
			return nil, err
		}
		m.Content = content.String
		if replyTo.Valid {
			v := int(replyTo.Int64)
			m.ReplyToSeq = &v
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Store) UpdateSessionStatus(id string, status models.SessionStatus, errMsg string, detectedGaps int) error {
	_, err := s.writeDB.Exec(queryUpdateSessionStatus, string(status), errMsg, detectedGaps, time.Now().UTC(), id)
	return err
}

// MarkSessionFailed records a failure without touching detected_gaps,
// which must keep matching the gap set the failure left in place.
func (s *Store) MarkSessionFailed(id string, errMsg string) error {
	_, err := s.writeDB.Exec(queryMarkSessionFailed, string(models.StatusFailed), errMsg, time.Now().UTC(), id)
	return err
}

// ReplaceGaps swaps the session's entire gap set in one transaction.
// An in-progress analysis never leaves a partial set visible. Deleting
// the old gaps cascades away their inferences.
func (s *Store) ReplaceGaps(sessionID string, gaps []models.Gap) error {
	tx, err := s.writeDB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(queryDeleteGapsForSession, sessionID); err != nil {
		return err
	}

	for i := range gaps {
		g := &gaps[i]
		contributing, _ := json.Marshal(g.Contributing)
		reasons, _ := json.Marshal(g.Reasons)
		ctxBefore, _ := json.Marshal(g.ContextBefore)
		ctxAfter, _ := json.Marshal(g.ContextAfter)

		_, err := tx.Exec(
			queryInsertGap,
			g.ID, g.SessionID, g.BeforeSeq, g.AfterSeq, g.ElapsedSeconds, g.EstimatedMissing,
			string(g.DetectionType), string(contributing), g.SuspicionScore, string(reasons),
			g.MedianSeconds, g.Similarity, string(ctxBefore), string(ctxAfter), g.CreatedAt,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) GapsForSession(sessionID string) ([]models.Gap, error) {
	rows, err := s.readDB.Query(querySelectGapsForSession, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gaps []models.Gap
	for rows.Next() {
		g, err := scanGap(rows)
		if err != nil {
			return nil, err
		}
		gaps = append(gaps, *g)
	}
	return gaps, rows.Err()
}

// GetGap returns nil, nil when the gap does not exist.
func (s *Store) GetGap(id string) (*models.Gap, error) {
	g, err := scanGap(s.readDB.QueryRow(querySelectGap, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return g, err
}

// ReplaceInference supersedes any prior inference for the same gap.
func (s *Store) ReplaceInference(inf *models.Inference) error {
	tx, err := s.writeDB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(queryDeleteInferenceForGap, inf.GapID); err != nil {
		return err
	}

	anchors, _ := json.Marshal(inf.ContextAnchors)
	flags, _ := json.Marshal(inf.HallucinationFlags)

	_, err = tx.Exec(
		queryInsertInference,
		inf.ID, inf.GapID, inf.PredictedIntent, inf.PredictedContent, inf.PredictedSender,
		inf.Confidence, string(anchors), inf.ModelUsed, inf.Reasoning, string(flags),
		string(inf.Verified), inf.CreatedAt,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetInference returns nil, nil when the gap has no current inference.
func (s *Store) GetInference(gapID string) (*models.Inference, error) {
	var inf models.Inference
	var content, sender sql.NullString
	var anchorsJSON, reasoning, flagsJSON sql.NullString

	err := s.readDB.QueryRow(querySelectInference, gapID).Scan(
		&inf.ID, &inf.GapID, &inf.PredictedIntent, &content, &sender,
		&inf.Confidence, &anchorsJSON, &inf.ModelUsed, &reasoning, &flagsJSON,
		&inf.Verified, &inf.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if content.Valid {
		inf.PredictedContent = &content.String
	}
	if sender.Valid {
		inf.PredictedSender = &sender.String
	}
	inf.Reasoning = reasoning.String
	if anchorsJSON.String != "" {
		json.Unmarshal([]byte(anchorsJSON.String), &inf.ContextAnchors)
	}
	if flagsJSON.String != "" {
		json.Unmarshal([]byte(flagsJSON.String), &inf.HallucinationFlags)
	}
	return &inf, nil
}

// SetVerification moves a pending inference to confirmed or rejected.
// Verification is terminal: re-reviewing a reviewed inference fails.
func (s *Store) SetVerification(gapID string, v models.Verification) error {
	if v != models.VerifiedConfirmed && v != models.VerifiedRejected {
		return fmt.Errorf("invalid verification %q", v)
	}
	result, err := s.writeDB.Exec(queryUpdateInferenceVerified, string(v), gapID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no pending inference for gap %s", gapID)
	}
	return nil
}

func (s *Store) SearchMessages(query string, limit int) ([]models.SearchResult, error) {
	rows, err := s.readDB.Query(querySearchMessages, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var r models.SearchResult
		var content sql.NullString
		var replyTo sql.NullInt64
		err := rows.Scan(
			&r.Message.ID, &r.Message.SessionID, &r.Message.Seq, &r.Message.Sender,
			&content, &r.Message.Timestamp, &r.Message.Kind, &r.Message.IsDeleted,
			&r.Message.WordCount, &r.Message.HasMedia, &replyTo,
			&r.Session.Name, &r.Session.SourceFormat, &r.Session.Status,
			&r.Score,
		)
		if err != nil {
			return nil, err
		}
		r.Message.Content = content.String
		r.Session.ID = r.Message.SessionID
		if replyTo.Valid {
			v := int(replyTo.Int64)
			r.Message.ReplyToSeq = &v
		}
		r.Snippet = truncateContent(r.Message.Content, 200)
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *Store) Stats() (*models.SessionStats, error) {
	stats := &models.SessionStats{
		FormatBreakdown: make(map[string]int),
		StatusBreakdown: make(map[string]int),
	}

	counts := []struct {
		query string
		dst   *int
	}{
		{queryCountSessions, &stats.TotalSessions},
		{queryCountMessages, &stats.TotalMessages},
		{queryCountGaps, &stats.TotalGaps},
		{queryCountInferences, &stats.TotalInferences},
		{queryCountDeleted, &stats.DeletedMessages},
	}
	for _, c := range counts {
		if err := s.readDB.QueryRow(c.query).Scan(c.dst); err != nil {
			return nil, err
		}
	}

	if err := s.readDB.QueryRow(queryCountHighSuspicion, 0.6).Scan(&stats.HighSuspicion); err != nil {
		return nil, err
	}

	for query, dst := range map[string]map[string]int{
		queryGroupByFormat: stats.FormatBreakdown,
		queryGroupByStatus: stats.StatusBreakdown,
	} {
		rows, err := s.readDB.Query(query)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var key string
			var count int
			if err := rows.Scan(&key, &count); err == nil {
				dst[key] = count
			}
		}
		rows.Close()
	}

	return stats, nil
}

func (s *Store) DeleteSession(id string) error {
	_, err := s.writeDB.Exec(queryDeleteSession, id)
	return err
}

func (s *Store) Close() error {
	var errs []error

	if _, err := s.writeDB.Exec("PRAGMA optimize"); err != nil {
		errs = append(errs, fmt.Errorf("failed to optimize: %w", err))
	}
	if err := s.readDB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close read db: %w", err))
	}
	if err := s.writeDB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close write db: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	sess := &models.Session{}
	var participantsJSON, sourceFile, errMsg sql.NullString
	var startAt, endAt sql.NullTime

	err := row.Scan(
		&sess.ID, &sess.Name, &sess.SourceFormat, &sourceFile, &participantsJSON,
		&startAt, &endAt, &sess.TotalMessages, &sess.DetectedGaps,
		&sess.Status, &errMsg, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sess.SourceFile = sourceFile.String
	sess.ErrorMessage = errMsg.String
	sess.StartAt = startAt.Time
	sess.EndAt = endAt.Time
	if participantsJSON.String != "" {
		json.Unmarshal([]byte(participantsJSON.String), &sess.Participants)
	}
	return sess, nil
}

func scanGap(row rowScanner) (*models.Gap, error) {
	g := &models.Gap{}
	var estimated sql.NullInt64
	var contributing, reasons, ctxBefore, ctxAfter sql.NullString

	err := row.Scan(
		&g.ID, &g.SessionID, &g.BeforeSeq, &g.AfterSeq, &g.ElapsedSeconds, &estimated,
		&g.DetectionType, &contributing, &g.SuspicionScore, &reasons,
		&g.MedianSeconds, &g.Similarity, &ctxBefore, &ctxAfter, &g.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if estimated.Valid {
		v := int(estimated.Int64)
		g.EstimatedMissing = &v
	}
	if contributing.String != "" {
		json.Unmarshal([]byte(contributing.String), &g.Contributing)
	}
	if reasons.String != "" {
		json.Unmarshal([]byte(reasons.String), &g.Reasons)
	}
	if ctxBefore.String != "" {
		json.Unmarshal([]byte(ctxBefore.String), &g.ContextBefore)
	}
	if ctxAfter.String != "" {
		json.Unmarshal([]byte(ctxAfter.String), &g.ContextAfter)
	}
	return g, nil
}

func truncateContent(content string, maxLen int) string {
	if len(content) <= maxLen {
		return content
	}
	return strings.TrimSpace(content[:maxLen]) + "..."
}
