package config

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher holds the active configuration and hot-reloads it when the
// project config file changes. Readers call Current per operation and see
// a consistent value; a reload swaps the pointer atomically between
// operations, never mid-call. A reload that fails validation is logged and
// discarded, keeping the previous value in effect.
type Watcher struct {
	root    string
	current atomic.Pointer[Config]
	fsw     *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher loads the effective config for root and starts watching the
// project config directory for changes.
func NewWatcher(root string) (*Watcher, error) {
	cfg, err := Load(root)
	if err != nil {
		return nil, err
	}

	w := &Watcher{root: root, done: make(chan struct{})}
	w.current.Store(&cfg)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	w.fsw = fsw

	// Watch the directory, not the file: editors replace files on save and
	// a file-level watch dies with the inode.
	if err := fsw.Add(ProjectDir(root)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", ProjectDir(root), err)
	}

	go w.loop()
	return w, nil
}

// Current returns the active configuration value.
func (w *Watcher) Current() Config {
	return *w.current.Load()
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	var debounce *time.Timer
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Name != ProjectConfigPath(w.root) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			// Debounce: editors fire several events per save.
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, w.reload)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("[config] watch error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.root)
	if err != nil {
		log.Printf("[config] reload rejected, keeping previous config: %v", err)
		return
	}
	w.current.Store(&cfg)
	log.Printf("[config] reloaded from %s", ProjectConfigPath(w.root))
}
