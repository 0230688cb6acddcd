package audit

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Actions recorded on the trail. Every state-changing operation against a
// case database should leave exactly one event.
const (
	ActionImport  = "import"
	ActionAnalyze = "analyze"
	ActionInfer   = "infer"
	ActionReview  = "review"
	ActionDelete  = "delete"
)

// Event is a single chain-of-custody record. Events are append-only and
// written as one JSON object per line.
type Event struct {
	Action    string    `json:"action"`
	SessionID string    `json:"session_id,omitempty"`
	GapID     string    `json:"gap_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
	Shard     string    `json:"shard,omitempty"`
}

// Trail writes events to size-rotated JSONL shards under a base directory.
// Rotated shards are optionally gzip-compressed. Safe for concurrent use.
type Trail struct {
	baseDir      string
	maxShardSize int64
	compress     bool

	mu     sync.Mutex
	active *shardWriter

	stopFlush chan struct{}
	flushDone chan struct{}
}

type shardWriter struct {
	file    *os.File
	buf     *bufio.Writer
	gz      *gzip.Writer
	path    string
	written int64
}

// Option configures a Trail.
type Option func(*Trail)

// WithMaxShardSize sets the rotation threshold in bytes.
func WithMaxShardSize(n int64) Option {
	return func(t *Trail) { t.maxShardSize = n }
}

// WithCompression enables gzip compression of shard files.
func WithCompression(on bool) Option {
	return func(t *Trail) { t.compress = on }
}

// NewTrail opens (or creates) an audit trail rooted at baseDir.
func NewTrail(baseDir string, opts ...Option) (*Trail, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	t := &Trail{
		baseDir:      baseDir,
		maxShardSize: 8 << 20,
		stopFlush:    make(chan struct{}),
		flushDone:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	if err := t.rotate(); err != nil {
		return nil, err
	}
	go t.backgroundFlush()
	return t, nil
}

// Record appends one event to the active shard, rotating first when the
// shard has grown past the size threshold.
func (t *Trail) Record(ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active == nil {
		return fmt.Errorf("audit trail closed")
	}
	if t.active.written >= t.maxShardSize {
		if err := t.rotateLocked(); err != nil {
			return err
		}
	}
	ev.Shard = filepath.Base(t.active.path)

	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	line = append(line, '\n')

	n, err := t.active.write(line)
	t.active.written += int64(n)
	if err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

func (w *shardWriter) write(p []byte) (int, error) {
	if w.gz != nil {
		return w.gz.Write(p)
	}
	return w.buf.Write(p)
}

func (t *Trail) rotate() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rotateLocked()
}

func (t *Trail) rotateLocked() error {
	if t.active != nil {
		if err := t.active.close(); err != nil {
			return err
		}
		t.active = nil
	}

	name := fmt.Sprintf("trail_%s.jsonl", time.Now().UTC().Format("20060102_150405"))
	if t.compress {
		name += ".gz"
	}
	path := filepath.Join(t.baseDir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit shard: %w", err)
	}

	w := &shardWriter{file: f, buf: bufio.NewWriter(f), path: path}
	if t.compress {
		w.gz = gzip.NewWriter(w.buf)
	}
	t.active = w
	return nil
}

func (w *shardWriter) flush() error {
	if w.gz != nil {
		if err := w.gz.Flush(); err != nil {
			return err
		}
	}
	return w.buf.Flush()
}

func (w *shardWriter) close() error {
	if w.gz != nil {
		if err := w.gz.Close(); err != nil {
			return err
		}
	}
	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}

func (t *Trail) backgroundFlush() {
	defer close(t.flushDone)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopFlush:
			return
		case <-ticker.C:
			t.mu.Lock()
			if t.active != nil {
				t.active.flush()
			}
			t.mu.Unlock()
		}
	}
}

// Shards returns the trail's shard files, oldest first.
func (t *Trail) Shards() ([]string, error) {
	return ListShards(t.baseDir)
}

// ListShards returns the shard files under baseDir, oldest first. It does
// not require an open trail.
func ListShards(baseDir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(baseDir, "trail_*.jsonl*"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// Close stops the background flusher and finalizes the active shard.
func (t *Trail) Close() error {
	close(t.stopFlush)
	<-t.flushDone

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return nil
	}
	err := t.active.close()
	t.active = nil
	return err
}
