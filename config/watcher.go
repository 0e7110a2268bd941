package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/c360/semwidgets/errors"
)

// DefaultWatchDebounce collapses the burst of events an editor save produces.
const DefaultWatchDebounce = 250 * time.Millisecond

// Watcher reloads the layered configuration when one of its files changes
// and hands the result to a callback. A reload that fails to load or
// validate is logged and the previous configuration stays in effect.
type Watcher struct {
	loader   *Loader
	watcher  *fsnotify.Watcher
	files    map[string]bool
	debounce time.Duration
	onChange func(*Config)
	logger   *slog.Logger
}

// Layers returns the file layers in load order.
func (l *Loader) Layers() []string {
	return append([]string(nil), l.layers...)
}

// NewWatcher watches the directories of the loader's layers. Directories are
// watched rather than files so atomic renames and symlink swaps are seen.
func NewWatcher(loader *Loader, onChange func(*Config), logger *slog.Logger) (*Watcher, error) {
	if loader == nil || onChange == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Watcher", "NewWatcher", "loader and callback are required")
	}
	layers := loader.Layers()
	if len(layers) == 0 {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Watcher", "NewWatcher", "no configuration files to watch")
	}
	if logger == nil {
		logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WrapFatal(err, "Watcher", "NewWatcher", "create file watcher")
	}
	w := &Watcher{
		loader:   loader,
		watcher:  fw,
		files:    make(map[string]bool, len(layers)),
		debounce: DefaultWatchDebounce,
		onChange: onChange,
		logger:   logger,
	}
	dirs := make(map[string]bool)
	for _, path := range layers {
		abs, err := filepath.Abs(path)
		if err != nil {
			_ = fw.Close()
			return nil, errors.WrapInvalid(err, "Watcher", "NewWatcher", fmt.Sprintf("resolve %s", path))
		}
		w.files[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return nil, errors.WrapInvalid(err, "Watcher", "NewWatcher", fmt.Sprintf("watch %s", dir))
		}
		dirs[dir] = true
	}
	return w, nil
}

// SetDebounce changes the quiet period before a reload. Call before Run.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// Run processes file events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("configuration file changed", "file", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("configuration watcher error", "error", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return w.files[abs]
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load()
	if err != nil {
		w.logger.Warn("configuration reload rejected", "error", err)
		return
	}
	w.logger.Info("configuration reloaded", "layers", w.loader.Layers())
	w.onChange(cfg)
}
