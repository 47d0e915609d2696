package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/mindmap"
)

// LimitsWatcher watches a YAML limits file and pushes validated updates
// to registered listeners, so structural bounds can be tuned without a
// restart. An invalid or unparsable file keeps the current limits.
type LimitsWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	mu       sync.RWMutex
	current  mindmap.Limits
	onChange []func(mindmap.Limits)
	logger   *zap.Logger
	stopCh   chan struct{}
}

// NewLimitsWatcher loads the initial limits from the file and prepares
// the watcher. Call Start to begin receiving updates.
func NewLimitsWatcher(path string, logger *zap.Logger) (*LimitsWatcher, error) {
	limits, err := loadLimitsFile(path)
	if err != nil {
		return nil, fmt.Errorf("load initial limits: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch limits file: %w", err)
	}
	// Watch the directory too: editors and config mounts replace the
	// file with a rename rather than writing in place.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		logger.Warn("failed to watch limits directory", zap.Error(err))
	}

	return &LimitsWatcher{
		path:    path,
		watcher: watcher,
		current: limits,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}, nil
}

// Current returns the limits most recently loaded.
func (w *LimitsWatcher) Current() mindmap.Limits {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers a listener invoked with each validated reload.
// Register all listeners before Start.
func (w *LimitsWatcher) OnChange(fn func(mindmap.Limits)) {
	w.onChange = append(w.onChange, fn)
}

// Start begins watching for file changes.
func (w *LimitsWatcher) Start() {
	go w.watchLoop()
	w.logger.Info("limits watcher started", zap.String("path", w.path))
}

// Stop stops watching.
func (w *LimitsWatcher) Stop() {
	close(w.stopCh)
	w.watcher.Close()
}

func (w *LimitsWatcher) watchLoop() {
	var debounce *time.Timer
	const debounceDuration = 100 * time.Millisecond

	for {
		select {
		case <-w.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDuration, w.reload)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("limits watcher error", zap.Error(err))
		}
	}
}

func (w *LimitsWatcher) reload() {
	limits, err := loadLimitsFile(w.path)
	if err != nil {
		w.logger.Error("failed to reload limits, keeping current", zap.Error(err))
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = limits
	w.mu.Unlock()

	if old == limits {
		return
	}
	w.logger.Info("limits reloaded",
		zap.Int("maxLabelLength", limits.MaxLabelLength),
		zap.Float64("maxCoordinate", limits.MaxCoordinate),
		zap.Int("maxNodesPerMap", limits.MaxNodesPerMap),
		zap.Int("maxEdgesPerMap", limits.MaxEdgesPerMap),
	)
	for _, fn := range w.onChange {
		fn(limits)
	}
}

func loadLimitsFile(path string) (mindmap.Limits, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return mindmap.Limits{}, err
	}
	limits := mindmap.DefaultLimits()
	if err := yaml.Unmarshal(data, &limits); err != nil {
		return mindmap.Limits{}, fmt.Errorf("parse limits file: %w", err)
	}
	if err := ValidateLimits(limits); err != nil {
		return mindmap.Limits{}, err
	}
	return limits, nil
}
