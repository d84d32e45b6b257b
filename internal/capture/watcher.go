package capture

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// InboxWatcher monitors the recordings directory and captures audio files as
// they appear. A file is considered settled once no write events have been
// seen for the settle window; fsnotify reports Create before the recorder
// finishes writing, so capturing on the first event would read a partial file.
type InboxWatcher struct {
	dir        string
	controller *Controller
	watcher    *fsnotify.Watcher
	ctx        context.Context
	cancel     context.CancelFunc
	settle     time.Duration

	mu      sync.Mutex
	running bool
	pending map[string]*time.Timer
}

// NewInboxWatcher creates a watcher for the given recordings directory.
func NewInboxWatcher(ctx context.Context, dir string, controller *Controller) (*InboxWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	return &InboxWatcher{
		dir:        dir,
		controller: controller,
		watcher:    fsw,
		ctx:        ctx,
		cancel:     cancel,
		settle:     500 * time.Millisecond,
		pending:    make(map[string]*time.Timer),
	}, nil
}

// Start begins watching for new recordings.
func (w *InboxWatcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}

	go w.watchLoop()
	log.Info().Str("dir", w.dir).Msg("Watching recordings directory")
	return nil
}

// Stop stops the watcher and cancels pending captures.
func (w *InboxWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false

	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.cancel()
	return w.watcher.Close()
}

// watchLoop is the main event loop.
func (w *InboxWatcher) watchLoop() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isAudioArtifact(event.Name) {
				continue
			}
			w.resetSettleTimer(filepath.Clean(event.Name))

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Inbox watcher error")
		}
	}
}

// resetSettleTimer (re)starts the settle countdown for a path. Each write
// pushes the capture out until the file goes quiet.
func (w *InboxWatcher) resetSettleTimer(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	if timer, exists := w.pending[path]; exists {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(w.settle, func() {
		w.captureSettled(path)
	})
}

// captureSettled captures a file that has gone quiet.
func (w *InboxWatcher) captureSettled(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	running := w.running
	w.mu.Unlock()

	if !running {
		return
	}

	_, err := w.controller.Capture(w.ctx, path)
	switch {
	case err == nil:
	case errors.Is(err, ErrDuplicateArtifact):
		log.Debug().Str("path", path).Msg("Artifact already in catalog, skipping")
	default:
		log.Error().Err(err).Str("path", path).Msg("Failed to capture recording")
	}
}

// isAudioArtifact reports whether the path looks like a captured recording.
func isAudioArtifact(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".m4a")
}
