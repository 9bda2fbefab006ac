// Package signals watches .delegate/signals for out-of-band control files.
// Writing a "kill" file aborts the run in progress.
package signals

import (
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const killFile = "kill"

// DefaultPollInterval is used when fsnotify is unavailable.
const DefaultPollInterval = 250 * time.Millisecond

// Option configures a Watcher.
type Option func(*Watcher)

// WithPollInterval sets the polling fallback interval.
func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// Dir returns the signals directory for a project.
func Dir(projectRoot string) string {
	return filepath.Join(projectRoot, ".delegate", "signals")
}

// Watcher reports when a kill signal appears.
type Watcher struct {
	dir      string
	interval time.Duration

	mu       sync.Mutex
	stopped  bool
	stopCh   chan struct{}
	watcher  *fsnotify.Watcher
	done     chan struct{}
	closeOne sync.Once
}

// NewWatcher watches the signals directory of projectRoot, creating it if
// needed. A kill file left over from an earlier run is cleared first.
func NewWatcher(projectRoot string, opts ...Option) (*Watcher, error) {
	dir := Dir(projectRoot)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	os.Remove(filepath.Join(dir, killFile))

	w := &Watcher{
		dir:      dir,
		interval: DefaultPollInterval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("[signals] fsnotify unavailable, polling: %v", err)
		go w.poll()
		return w, nil
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		log.Printf("[signals] cannot watch %s, polling: %v", dir, err)
		go w.poll()
		return w, nil
	}
	w.watcher = watcher

	go w.watch()
	return w, nil
}

func (w *Watcher) watch() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) == killFile && event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.trip()
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if w.killPresent() {
				w.trip()
			}
		}
	}
}

func (w *Watcher) killPresent() bool {
	_, err := os.Stat(filepath.Join(w.dir, killFile))
	return err == nil
}

func (w *Watcher) trip() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	close(w.stopCh)
}

// Stopped is closed once a kill signal has been seen.
func (w *Watcher) Stopped() <-chan struct{} {
	return w.stopCh
}

// ShouldStop returns true if a kill signal has been received.
func (w *Watcher) ShouldStop() bool {
	// Also check the file directly in case the watcher missed it.
	if w.killPresent() {
		w.trip()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}

// Clear removes the kill file. A watcher that already tripped stays tripped.
func (w *Watcher) Clear() {
	os.Remove(filepath.Join(w.dir, killFile))
}

// Close stops watching.
func (w *Watcher) Close() {
	w.closeOne.Do(func() {
		close(w.done)
		if w.watcher != nil {
			w.watcher.Close()
		}
	})
}

// SendKill writes the kill file for projectRoot.
func SendKill(projectRoot string) error {
	dir := Dir(projectRoot)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, killFile), []byte(time.Now().Format(time.RFC3339)), 0644)
}
