package storage

// Database schema queries
const (
	queryCreateSessionsTable = `CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		source_format TEXT NOT NULL,
		source_file TEXT,
		participants TEXT,
		start_at DATETIME,
		end_at DATETIME,
		total_messages INTEGER DEFAULT 0,
		detected_gaps INTEGER DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		error_message TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`

	queryCreateMessagesTable = `CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		sender TEXT NOT NULL,
		content TEXT,
		timestamp DATETIME NOT NULL,
		kind TEXT NOT NULL DEFAULT 'text',
		is_deleted INTEGER NOT NULL DEFAULT 0,
		word_count INTEGER NOT NULL DEFAULT 0,
		has_media INTEGER NOT NULL DEFAULT 0,
		reply_to_seq INTEGER,
		UNIQUE(session_id, seq),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	)`

	queryCreateGapsTable = `CREATE TABLE IF NOT EXISTS gaps (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		before_seq INTEGER NOT NULL,
		after_seq INTEGER NOT NULL,
		elapsed_seconds INTEGER NOT NULL,
		estimated_missing INTEGER,
		detection_type TEXT NOT NULL,
		contributing TEXT NOT NULL,
		suspicion_score REAL NOT NULL DEFAULT 0,
		reasons TEXT,
		median_seconds REAL NOT NULL DEFAULT 0,
		similarity REAL NOT NULL DEFAULT 1,
		context_before TEXT,
		context_after TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	)`

	queryCreateInferencesTable = `CREATE TABLE IF NOT EXISTS inferences (
		id TEXT PRIMARY KEY,
		gap_id TEXT NOT NULL UNIQUE,
		predicted_intent TEXT NOT NULL,
		predicted_content TEXT,
		predicted_sender TEXT,
		confidence REAL NOT NULL,
		context_anchors TEXT,
		model_used TEXT NOT NULL,
		reasoning TEXT,
		hallucination_flags TEXT,
		verified TEXT NOT NULL DEFAULT 'pending',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (gap_id) REFERENCES gaps(id) ON DELETE CASCADE
	)`

	queryCreateMessagesFTS = `CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
		content,
		content=messages,
		content_rowid=id
	)`

	queryCreateIndexMessagesSession = `CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id)`
	queryCreateIndexGapsSession     = `CREATE INDEX IF NOT EXISTS idx_gaps_session ON gaps(session_id)`
	queryCreateIndexGapsScore       = `CREATE INDEX IF NOT EXISTS idx_gaps_score ON gaps(suspicion_score)`
	queryCreateIndexSessionsStatus  = `CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status)`
	queryCreateIndexSessionsCreated = `CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at)`

	queryCreateMessagesInsertTrigger = `CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages
	BEGIN
		INSERT INTO messages_fts(rowid, content) VALUES (new.id, COALESCE(new.content, ''));
	END`

	queryCreateMessagesDeleteTrigger = `CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages
	BEGIN
		DELETE FROM messages_fts WHERE rowid = old.id;
	END`

	queryInsertSession = `INSERT INTO sessions (id, name, source_format, source_file, participants, start_at, end_at, total_messages, detected_gaps, status, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryInsertMessage = `INSERT INTO messages (session_id, seq, sender, content, timestamp, kind, is_deleted, word_count, has_media, reply_to_seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	querySelectSession = `SELECT id, name, source_format, source_file, participants, start_at, end_at, total_messages, detected_gaps, status, error_message, created_at, updated_at
		FROM sessions WHERE id = ?`

	querySelectSessions = `SELECT id, name, source_format, source_file, participants, start_at, end_at, total_messages, detected_gaps, status, error_message, created_at, updated_at
		FROM sessions ORDER BY created_at DESC LIMIT ? OFFSET ?`

	querySelectMessages = `SELECT id, session_id, seq, sender, content, timestamp, kind, is_deleted, word_count, has_media, reply_to_seq
		FROM messages WHERE session_id = ? ORDER BY seq`

	queryUpdateSessionStatus = `UPDATE sessions SET status = ?, error_message = ?, detected_gaps = ?, updated_at = ? WHERE id = ?`

	queryMarkSessionFailed = `UPDATE sessions SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`

	queryDeleteSession = `DELETE FROM sessions WHERE id = ?`

	queryDeleteGapsForSession = `DELETE FROM gaps WHERE session_id = ?`

	queryInsertGap = `INSERT INTO gaps (id, session_id, before_seq, after_seq, elapsed_seconds, estimated_missing, detection_type, contributing, suspicion_score, reasons, median_seconds, similarity, context_before, context_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	querySelectGapsForSession = `SELECT id, session_id, before_seq, after_seq, elapsed_seconds, estimated_missing, detection_type, contributing, suspicion_score, reasons, median_seconds, similarity, context_before, context_after, created_at
		FROM gaps WHERE session_id = ? ORDER BY suspicion_score DESC, before_seq`

	querySelectGap = `SELECT id, session_id, before_seq, after_seq, elapsed_seconds, estimated_missing, detection_type, contributing, suspicion_score, reasons, median_seconds, similarity, context_before, context_after, created_at
		FROM gaps WHERE id = ?`

	queryDeleteInferenceForGap = `DELETE FROM inferences WHERE gap_id = ?`

	queryInsertInference = `INSERT INTO inferences (id, gap_id, predicted_intent, predicted_content, predicted_sender, confidence, context_anchors, model_used, reasoning, hallucination_flags, verified, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	querySelectInference = `SELECT id, gap_id, predicted_intent, predicted_content, predicted_sender, confidence, context_anchors, model_used, reasoning, hallucination_flags, verified, created_at
		FROM inferences WHERE gap_id = ?`

	queryUpdateInferenceVerified = `UPDATE inferences SET verified = ? WHERE gap_id = ? AND verified = 'pending'`

	querySearchMessages = `
		SELECT m.id, m.session_id, m.seq, m.sender, m.content, m.timestamp, m.kind, m.is_deleted, m.word_count, m.has_media, m.reply_to_seq,
			s.name, s.source_format, s.status,
			bm25(messages_fts) as score
		FROM messages_fts
		JOIN messages m ON messages_fts.rowid = m.id
		JOIN sessions s ON m.session_id = s.id
		WHERE messages_fts MATCH ?
		ORDER BY score
		LIMIT ?`

	queryCountSessions      = `SELECT COUNT(*) FROM sessions`
	queryCountMessages      = `SELECT COUNT(*) FROM messages`
	queryCountGaps          = `SELECT COUNT(*) FROM gaps`
	queryCountInferences    = `SELECT COUNT(*) FROM inferences`
	queryCountDeleted       = `SELECT COUNT(*) FROM messages WHERE is_deleted = 1`
	queryCountHighSuspicion = `SELECT COUNT(*) FROM gaps WHERE suspicion_score >= ?`
	queryGroupByFormat      = `SELECT source_format, COUNT(*) FROM sessions GROUP BY source_format`
	queryGroupByStatus      = `SELECT status, COUNT(*) FROM sessions GROUP BY status`
)
