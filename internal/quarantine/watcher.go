package quarantine

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"relaymatrix/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

const (
	// DefaultDebounceInterval collapses bursts of writes into one reload.
	DefaultDebounceInterval = 250 * time.Millisecond
	// DefaultPollInterval is the fallback polling interval when fsnotify is
	// not available.
	DefaultPollInterval = 5 * time.Second
)

// Watcher appends entries added to a quarantine file while a run is in
// progress. Entries removed from the file stay quarantined until the next run.
type Watcher struct {
	path     string
	registry *Registry

	// Debounce and PollInterval may be tuned before Start.
	Debounce     time.Duration
	PollInterval time.Duration
	// OnReload, if set, is called after each reload with the number of new entries.
	OnReload func(added int)

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	fsWatcher *fsnotify.Watcher
	lastMod   time.Time

	debounceTimer *time.Timer
	debounceMu    sync.Mutex
}

// NewWatcher creates a watcher for path feeding registry.
func NewWatcher(path string, registry *Registry) *Watcher {
	return &Watcher{
		path:         path,
		registry:     registry,
		Debounce:     DefaultDebounceInterval,
		PollInterval: DefaultPollInterval,
	}
}

// Start begins watching. The directory is watched rather than the file so
// that editors which replace the file on save are still observed.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}
	w.stopCh = make(chan struct{})
	w.running = true

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn("QuarantineWatcher", "fsnotify not available, falling back to polling: %v", err)
		go w.pollForChanges()
		return nil
	}

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		logging.Warn("QuarantineWatcher", "Failed to watch directory %s, falling back to polling: %v", dir, err)
		watcher.Close()
		go w.pollForChanges()
		return nil
	}
	w.fsWatcher = watcher

	go w.processEvents(watcher.Events, watcher.Errors)

	logging.Info("QuarantineWatcher", "Watching %s for new quarantine entries", w.path)
	return nil
}

func (w *Watcher) processEvents(eventsCh <-chan fsnotify.Event, errorsCh <-chan error) {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.triggerReloadDebounced()
		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			logging.Error("QuarantineWatcher", err, "fsnotify error")
		}
	}
}

func (w *Watcher) triggerReloadDebounced() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.Debounce, w.reload)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()
	if !running {
		return
	}

	added, err := LoadInto(w.registry, w.path)
	if err != nil {
		// A half-written file is common mid-save; the next event retries.
		logging.Warn("QuarantineWatcher", "Failed to reload %s: %v", w.path, err)
		return
	}
	if added > 0 {
		logging.Info("QuarantineWatcher", "Quarantined %d additional job(s) from %s", added, w.path)
	}
	if w.OnReload != nil {
		w.OnReload(added)
	}
}

func (w *Watcher) pollForChanges() {
	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()

	if info, err := os.Stat(w.path); err == nil {
		w.lastMod = info.ModTime()
	}

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			info, err := os.Stat(w.path)
			if err != nil {
				continue
			}
			if info.ModTime().After(w.lastMod) {
				w.lastMod = info.ModTime()
				w.triggerReloadDebounced()
			}
		}
	}
}

// Stop ends watching. It is safe to call more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false
	close(w.stopCh)

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.debounceMu.Unlock()

	if w.fsWatcher != nil {
		if err := w.fsWatcher.Close(); err != nil {
			logging.Warn("QuarantineWatcher", "Error closing fsnotify watcher: %v", err)
		}
		w.fsWatcher = nil
	}
	return nil
}
