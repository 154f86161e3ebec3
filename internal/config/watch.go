package config

import (
	"bytes"
	"context"
	"os"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/overlaymesh/ronet/internal/bus"
)

// TopicConfigUpdated is published whenever a hot reload applies a new
// config; no-op reloads are suppressed and invalid reloads are logged
// and ignored.
const TopicConfigUpdated = "config.updated"

// ConfigUpdated is the bus event carrying the freshly applied config.
type ConfigUpdated struct {
	Version int
	Config  Config
}

const debounceInterval = 200 * time.Millisecond

// Watcher loads a config file once, then watches it for changes, applying
// debounced reloads and publishing ConfigUpdated on the given bus.
type Watcher struct {
	path   string
	opts   LoadOptions
	bus    *bus.Bus
	logger *logrus.Logger

	mu        sync.RWMutex
	lastBytes []byte
	current   Config
}

// NewWatcher reads path once via opts and returns a Watcher primed with
// the initial config. b and logger may be nil.
func NewWatcher(path string, opts LoadOptions, b *bus.Bus, logger *logrus.Logger) (*Watcher, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	loadOpts := opts
	loadOpts.FilePath = ""
	loadOpts.FileBytes = raw
	cfg, err := Load(loadOpts)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Watcher{path: path, opts: opts, bus: b, logger: logger, lastBytes: raw, current: cfg}, nil
}

// Current returns the most recently applied config.
func (w *Watcher) Current() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Run watches the config file until ctx is cancelled, applying debounced
// reloads as it observes writes.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.path); err != nil {
		return err
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceInterval)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounceInterval)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			w.reload()
		case ferr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(ferr).Warn("config watcher error")
		}
	}
}

func (w *Watcher) reload() {
	raw, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.WithError(err).Warn("config reload: read failed, ignoring")
		return
	}

	w.mu.RLock()
	noop := bytes.Equal(raw, w.lastBytes)
	w.mu.RUnlock()
	if noop {
		return
	}

	loadOpts := w.opts
	loadOpts.FilePath = ""
	loadOpts.FileBytes = raw
	next, err := Load(loadOpts)
	if err != nil {
		w.logger.WithError(err).Warn("config reload: invalid, ignoring")
		return
	}

	w.mu.Lock()
	prev := w.current
	if next.Version == prev.Version && !reflect.DeepEqual(next, prev) {
		// Content changed but the author forgot to bump version (e.g. an
		// amnesia-only edit) — autobump so subscribers still see a
		// monotonic counter.
		next.Version = prev.Version + 1
	}
	w.current = next
	w.lastBytes = raw
	w.mu.Unlock()

	w.logger.WithField("version", next.Version).Info("config reloaded")
	if w.bus != nil {
		w.bus.TryPublish(TopicConfigUpdated, ConfigUpdated{Version: next.Version, Config: next})
	}
}
