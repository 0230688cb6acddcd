// Package watcher imports chat exports dropped into a watched
// directory, so an analyst can feed a case folder without touching the
// CLI for every file.
package watcher

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mward/shadowtrace/internal/models"
)

// Importer is the slice of the coordinator the watcher needs.
type Importer interface {
	Import(name, format, sourceFile, raw string) (*models.Session, error)
}

// Config controls the export watcher.
type Config struct {
	// WatchDir is the directory scanned for new exports.
	WatchDir string
	// Pattern matches export file names, e.g. "*.txt".
	Pattern string
	// Format is the source-format tag handed to the parser.
	Format string
	// SettleDelay is how long a file must sit unchanged before import;
	// exports are often still being written when Create fires.
	SettleDelay time.Duration
}

func DefaultConfig(dir string) Config {
	return Config{
		WatchDir:    dir,
		Pattern:     "*.txt",
		Format:      "whatsapp",
		SettleDelay: 2 * time.Second,
	}
}

// ExportWatcher watches one directory and imports each new export once.
type ExportWatcher struct {
	watcher  *fsnotify.Watcher
	cfg      Config
	importer Importer

	mu       sync.Mutex
	imported map[string]bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewExportWatcher(cfg Config, importer Importer) (*ExportWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fs watcher: %w", err)
	}

	return &ExportWatcher{
		watcher:  fsWatcher,
		cfg:      cfg,
		importer: importer,
		imported: make(map[string]bool),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start imports exports already sitting in the directory, then begins
// watching for new ones.
func (w *ExportWatcher) Start() error {
	dir := w.cfg.WatchDir
	if len(dir) >= 2 && dir[:2] == "~/" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, dir[2:])
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("directory does not exist: %s", dir)
	}
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, w.cfg.Pattern))
	if err != nil {
		return fmt.Errorf("failed to scan directory: %w", err)
	}
	for _, path := range matches {
		w.importFile(path)
	}

	w.wg.Add(1)
	go w.watchLoop()
	return nil
}

// Stop stops the watcher.
func (w *ExportWatcher) Stop() error {
	close(w.stopCh)
	w.wg.Wait()
	return w.watcher.Close()
}

func (w *ExportWatcher) watchLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			matched, _ := filepath.Match(w.cfg.Pattern, filepath.Base(event.Name))
			if !matched {
				continue
			}
			// Let the writer finish before reading.
			select {
			case <-w.stopCh:
				return
			case <-time.After(w.cfg.SettleDelay):
			}
			w.importFile(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("watcher error: %v", err)
		}
	}
}

func (w *ExportWatcher) importFile(path string) {
	w.mu.Lock()
	if w.imported[path] {
		w.mu.Unlock()
		return
	}
	w.imported[path] = true
	w.mu.Unlock()

	raw, err := os.ReadFile(path)
	if err != nil {
		log.Printf("failed to read %s: %v", path, err)
		return
	}

	name := baseName(path)
	sess, err := w.importer.Import(name, w.cfg.Format, path, string(raw))
	if err != nil {
		log.Printf("failed to import %s: %v", path, err)
		// Leave it marked; a broken export stays broken on re-events.
		return
	}
	log.Printf("imported %s as session %s (%d messages)", path, sess.ID, sess.TotalMessages)
}

func baseName(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)]
}
