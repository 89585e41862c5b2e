package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/triage-ai/portfolio-guard/internal/engine"
	"go.uber.org/zap"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 100 * time.Millisecond

// RuleReloader receives a freshly built rule set.
type RuleReloader interface {
	Reload(rules []engine.Rule)
}

// RulesWatcher reloads the classifier when the rules file changes.
// A file that fails to parse is logged and the previous rules stay active.
type RulesWatcher struct {
	path     string
	target   RuleReloader
	debounce time.Duration
	logger   *zap.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// NewRulesWatcher creates a watcher for path. debounce <= 0 uses DefaultDebounce.
func NewRulesWatcher(path string, target RuleReloader, debounce time.Duration, logger *zap.Logger) *RulesWatcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &RulesWatcher{
		path:     filepath.Clean(path),
		target:   target,
		debounce: debounce,
		logger:   logger,
	}
}

// Run watches until ctx is cancelled. The parent directory is watched rather
// than the file itself so that editors which save by rename are picked up.
func (w *RulesWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("RulesWatcher.Run: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("RulesWatcher.Run: watch %s: %w", w.path, err)
	}

	w.logger.Info("rules watcher started",
		zap.String("path", w.path),
		zap.Duration("debounce", w.debounce),
	)

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			w.logger.Info("rules watcher stopped")
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return fmt.Errorf("RulesWatcher.Run: events channel closed")
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug("rules file event", zap.String("op", event.Op.String()))
			w.schedule()

		case err, ok := <-fw.Errors:
			if !ok {
				return fmt.Errorf("RulesWatcher.Run: errors channel closed")
			}
			w.logger.Error("rules watcher error", zap.Error(err))
		}
	}
}

func (w *RulesWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *RulesWatcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *RulesWatcher) reload() {
	rf, err := LoadRules(w.path)
	if err != nil {
		w.logger.Error("rules reload failed, keeping previous rules", zap.Error(err))
		return
	}
	w.target.Reload(rf.Rules())
	w.logger.Info("rules reloaded", zap.String("path", w.path))
}
