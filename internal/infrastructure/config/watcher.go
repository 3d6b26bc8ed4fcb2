package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jbctechsolutions/agentmon/internal/infrastructure/logging"
)

// DefaultDebounce is how long the file must stay quiet before it is reloaded.
const DefaultDebounce = 250 * time.Millisecond

// WatcherConfig holds configuration for the config file watcher.
type WatcherConfig struct {
	Path     string
	Loader   *Loader
	Logger   *logging.Logger
	Debounce time.Duration

	// Apply receives every successfully loaded and validated config.
	Apply func(*Config)
}

// Watcher reloads the config file when it changes. Editors that replace the file
// instead of writing it in place are handled by watching the parent directory.
type Watcher struct {
	cfg       WatcherConfig
	path      string
	fsWatcher *fsnotify.Watcher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewWatcher creates a watcher for cfg.Path.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}

	return &Watcher{
		cfg:       cfg,
		path:      filepath.Clean(ExpandPath(cfg.Path)),
		fsWatcher: fsWatcher,
	}, nil
}

// Start begins watching. The watcher stops when ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.fsWatcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}
	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path || !relevant(event.Op) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.cfg.Debounce)
			} else {
				timer.Reset(w.cfg.Debounce)
			}
			timerCh = timer.C

		case <-timerCh:
			timerCh = nil
			w.reload()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.cfg.Logger.Warn("config watcher error", "error", err.Error())
		}
	}
}

func relevant(op fsnotify.Op) bool {
	return op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (w *Watcher) reload() {
	cfg, err := w.cfg.Loader.LoadFromFile(w.path)
	if err != nil {
		w.cfg.Logger.Warn("config reload failed", "path", w.path, "error", err.Error())
		return
	}
	if err := cfg.Validate(); err != nil {
		w.cfg.Logger.Warn("reloaded config is invalid, keeping the previous one", "path", w.path, "error", err.Error())
		return
	}

	w.cfg.Logger.Info("config reloaded", "path", w.path)
	if w.cfg.Apply != nil {
		w.cfg.Apply(cfg)
	}
}
