package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher monitors the backend registry file and triggers reloads
type Watcher struct {
	config      *AppConfig
	watcher     *fsnotify.Watcher
	callbacks   []func(*AppConfig)
	stopCh      chan struct{}
	mu          sync.RWMutex
	running     bool
	lastModTime time.Time
}

// NewWatcher creates a new registry watcher
func NewWatcher(config *AppConfig) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		config:  config,
		watcher: watcher,
		stopCh:  make(chan struct{}),
	}, nil
}

// AddCallback registers a function called after each successful reload
func (w *Watcher) AddCallback(callback func(*AppConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start begins watching for registry changes
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher is already running")
	}

	if stat, err := os.Stat(w.config.ConfigFile()); err == nil {
		w.lastModTime = stat.ModTime()
	}

	// Watch the directory rather than the file: editors and atomic saves
	// replace the file, which drops a file-level watch
	if err := w.watcher.Add(w.config.ConfigDir()); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	w.running = true
	go w.watchLoop()
	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false
	close(w.stopCh)
	return w.watcher.Close()
}

func (w *Watcher) watchLoop() {
	var debounceTimer *time.Timer

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.config.ConfigFile() {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			// Debounce rapid successive writes
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(500*time.Millisecond, w.handleChange)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logrus.Warnf("Config watcher error: %v", err)

		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) handleChange() {
	stat, err := os.Stat(w.config.ConfigFile())
	if err != nil {
		return
	}

	w.mu.Lock()
	if !stat.ModTime().After(w.lastModTime) {
		w.mu.Unlock()
		return
	}
	w.lastModTime = stat.ModTime()
	w.mu.Unlock()

	if err := w.config.Reload(); err != nil {
		logrus.Errorf("Failed to reload backend registry: %v", err)
		return
	}

	w.mu.RLock()
	callbacks := make([]func(*AppConfig), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	for _, callback := range callbacks {
		callback(w.config)
	}

	logrus.Info("Backend registry reloaded")
}
