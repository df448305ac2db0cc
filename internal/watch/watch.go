// Package watch is C16: it watches a bundle directory for changes and
// debounces them into a single re-sign invocation, grounded on the same
// fsnotify event-loop-plus-debounce-timer shape used elsewhere in the
// example corpus for watching a directory of config files.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const debounceInterval = 750 * time.Millisecond

// Watcher watches one bundle directory tree and calls onChange (debounced)
// whenever a relevant filesystem event occurs inside it. It is the one
// long-lived loop in the engine, so it is the one place governed by a
// context.Context — cancelling ctx (e.g. from the CLI's signal handling)
// stops it the same way calling Stop does.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	onChange  func()
	logger    *logrus.Logger
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// New creates a Watcher rooted at dir and every subdirectory inside it,
// and starts its event loop. The loop exits when ctx is cancelled or
// Stop is called, whichever comes first.
func New(ctx context.Context, dir string, logger *logrus.Logger, onChange func()) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		onChange:  onChange,
		logger:    logger,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}

	if err := addRecursive(fsWatcher, dir); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	go w.eventLoop(ctx)
	return w, nil
}

func addRecursive(fsWatcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return fsWatcher.Add(p)
		}
		return nil
	})
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer close(w.stoppedCh)

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time
	dirty := false

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !isRelevantEvent(event) {
				continue
			}
			dirty = true
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(debounceInterval)
			debounceCh = debounceTimer.C

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("watch: fsnotify error")

		case <-debounceCh:
			debounceCh = nil
			if dirty && w.onChange != nil {
				dirty = false
				w.onChange()
			}
		}
	}
}

func isRelevantEvent(event fsnotify.Event) bool {
	for p := event.Name; p != "." && p != string(filepath.Separator); p = filepath.Dir(p) {
		if filepath.Base(p) == ".zsign_cache" {
			return false
		}
	}
	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0
}

// Stop halts the watcher's event loop and releases its fsnotify handle.
func (w *Watcher) Stop() {
	select {
	case <-w.stopCh:
		return
	default:
		close(w.stopCh)
	}
	w.fsWatcher.Close()
	<-w.stoppedCh
}
