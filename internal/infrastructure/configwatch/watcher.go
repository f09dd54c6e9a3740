// Package configwatch reloads the engine tunables file when it changes on
// disk and hands each valid version to a callback.
package configwatch

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/loes-hub/outcome-engine/config"
	"github.com/loes-hub/outcome-engine/pkg/logger"
)

// Config configures the watcher.
type Config struct {
	// Path is the tunables file.
	Path string

	// DebounceDelay is how long to wait for more writes before reloading
	// (default: 200ms).
	DebounceDelay time.Duration

	// Logger for logging events
	Logger *slog.Logger
}

// Watcher watches one tunables file. Editors that save by writing a temp
// file and renaming it over the original are handled by watching the
// parent directory.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
	fsw      *fsnotify.Watcher
	onChange func(*config.EngineConfig)

	current atomic.Pointer[config.EngineConfig]

	pendingMu sync.Mutex
	pending   bool
	lastHash  [sha256.Size]byte

	reloads  atomic.Int64
	failures atomic.Int64
}

// New loads the file once and prepares the watch. onChange is called from
// the watch goroutine after every successful reload whose content differs.
func New(cfg Config, onChange func(*config.EngineConfig)) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, errors.New("configwatch: path is required")
	}
	path, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("configwatch: %w", err)
	}
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 200 * time.Millisecond
	}

	w := &Watcher{
		path:     path,
		debounce: cfg.DebounceDelay,
		logger:   logger.OrDefault(cfg.Logger).With(logger.Component("configwatch"), slog.String("path", path)),
		onChange: onChange,
	}

	engine, hash, err := w.load()
	if err != nil {
		return nil, err
	}
	w.current.Store(engine)
	w.lastHash = hash

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("configwatch: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("configwatch: watch %s: %w", filepath.Dir(path), err)
	}
	w.fsw = fsw

	return w, nil
}

// Current returns the last valid tunables.
func (w *Watcher) Current() *config.EngineConfig {
	return w.current.Load()
}

// Reloads returns how many reloads were applied and how many were rejected.
func (w *Watcher) Reloads() (applied, rejected int64) {
	return w.reloads.Load(), w.failures.Load()
}

// Run processes file events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	w.logger.Info("tunables watcher started", slog.Duration("debounce", w.debounce))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", logger.Err(err))
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	w.pendingMu.Lock()
	w.pending = true
	w.pendingMu.Unlock()
	w.logger.Debug("tunables change detected", slog.String("op", event.Op.String()))
}

// flush reloads once per burst of events.
func (w *Watcher) flush() {
	w.pendingMu.Lock()
	if !w.pending {
		w.pendingMu.Unlock()
		return
	}
	w.pending = false
	w.pendingMu.Unlock()

	engine, hash, err := w.load()
	if err != nil {
		// A half-written or removed file keeps the previous tunables.
		w.failures.Add(1)
		w.logger.Warn("tunables reload rejected, keeping previous values", logger.Err(err))
		return
	}
	if hash == w.lastHash {
		return
	}
	w.lastHash = hash
	w.current.Store(engine)
	w.reloads.Add(1)

	w.logger.Info("tunables reloaded")
	if w.onChange != nil {
		w.onChange(engine)
	}
}

func (w *Watcher) load() (*config.EngineConfig, [sha256.Size]byte, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, [sha256.Size]byte{}, fmt.Errorf("configwatch: %w", err)
	}
	engine, err := config.ParseEngine(data)
	if err != nil {
		return nil, [sha256.Size]byte{}, fmt.Errorf("configwatch: %w", err)
	}
	return engine, sha256.Sum256(data), nil
}
