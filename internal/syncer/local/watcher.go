package local

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"mimic/internal/logger"
	"mimic/internal/model"
	"mimic/internal/pipeline"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

type WatcherOptions struct {
	// RenameWindow is how long a rename waits for the create that carries
	// its new name. An unpaired rename is reported as a delete.
	RenameWindow  time.Duration
	RearmAttempts int
	RearmBackoff  time.Duration
}

type WatcherStats struct {
	Received     int64
	Overflows    int64
	Inaccessible int64
}

// Watcher is the event source for one watched root. It pushes every
// notification onto the queue unfiltered and never blocks on the consumer.
type Watcher struct {
	root  string
	queue *pipeline.Queue
	opts  WatcherOptions

	fw     *fsnotify.Watcher
	errCh  chan model.SourceError
	doneCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	// owned by the run goroutine
	pending     *pendingRename
	renameTimer *time.Timer
	lastDirMove *dirMove

	rearming     atomic.Bool
	received     atomic.Int64
	overflows    atomic.Int64
	inaccessible atomic.Int64
}

type pendingRename struct {
	path string
	at   time.Time
}

// dirMove is the directory rename paired last. On Linux the moved directory
// also reports its own move, under the old name, after the pair.
type dirMove struct {
	oldPath string
	newPath string
	at      time.Time
}

const selfMoveWindow = time.Second

func NewWatcher(root string, queue *pipeline.Queue, opts WatcherOptions) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	if opts.RenameWindow <= 0 {
		opts.RenameWindow = 100 * time.Millisecond
	}
	if opts.RearmBackoff <= 0 {
		opts.RearmBackoff = 30 * time.Second
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	timer := time.NewTimer(opts.RenameWindow)
	timer.Stop()

	return &Watcher{
		root:        absRoot,
		queue:       queue,
		opts:        opts,
		fw:          fw,
		errCh:       make(chan model.SourceError, 16),
		doneCh:      make(chan struct{}),
		renameTimer: timer,
	}, nil
}

func (w *Watcher) Start() error {
	if _, err := os.Stat(w.root); err != nil {
		return fmt.Errorf("source directory not found: %w", err)
	}

	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.run()

	logger.Log.Info("watcher started",
		zap.String("root", w.root))
	return nil
}

// Stop closes the subscription and waits for the event loop and any re-arm
// loop to exit. Calling Stop more than once is safe.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.doneCh)
		_ = w.fw.Close()
		w.wg.Wait()
		w.renameTimer.Stop()
		close(w.errCh)

		logger.Log.Info("watcher stopped",
			zap.String("root", w.root))
	})
}

func (w *Watcher) Errors() <-chan model.SourceError {
	return w.errCh
}

func (w *Watcher) Root() string {
	return w.root
}

func (w *Watcher) Stats() WatcherStats {
	return WatcherStats{
		Received:     w.received.Load(),
		Overflows:    w.overflows.Load(),
		Inaccessible: w.inaccessible.Load(),
	}
}

func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.doneCh:
			w.flushRename()
			return

		case fsEvent, ok := <-w.fw.Events:
			if !ok {
				w.flushRename()
				return
			}
			w.handleEvent(fsEvent)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.handleError(err)

		case <-w.renameTimer.C:
			w.flushRename()
		}
	}
}

func (w *Watcher) handleEvent(fsEvent fsnotify.Event) {
	w.received.Add(1)
	now := time.Now()

	if fsEvent.Has(fsnotify.Create) {
		if w.pending != nil {
			old := w.pending.path
			w.pending = nil
			w.renameTimer.Stop()

			if isDir(fsEvent.Name) {
				w.rewatchMoved(old, fsEvent.Name)
				w.lastDirMove = &dirMove{oldPath: old, newPath: fsEvent.Name, at: now}
			}

			w.queue.Enqueue(model.FileEvent{
				Kind:      model.EventRenamed,
				Path:      fsEvent.Name,
				OldPath:   old,
				Timestamp: now,
			})
			return
		}

		if w.lastDirMove != nil && w.lastDirMove.oldPath == fsEvent.Name {
			w.lastDirMove = nil
		}

		w.watchIfDir(fsEvent.Name)
		w.queue.Enqueue(model.FileEvent{Kind: model.EventCreated, Path: fsEvent.Name, Timestamp: now})
		return
	}

	if fsEvent.Has(fsnotify.Rename) {
		if w.selfMove(fsEvent.Name, now) {
			return
		}
		// a directory moved out of the tree reports its own move as well
		if w.pending != nil && w.pending.path == fsEvent.Name {
			return
		}
	}

	// anything other than the paired create closes the rename window
	w.flushRename()

	switch {
	case fsEvent.Has(fsnotify.Rename):
		if fsEvent.Name == w.root {
			w.rootLost(errors.New("watched root was renamed"))
			return
		}
		w.pending = &pendingRename{path: fsEvent.Name, at: now}
		w.renameTimer.Reset(w.opts.RenameWindow)

	case fsEvent.Has(fsnotify.Remove):
		if fsEvent.Name == w.root {
			w.rootLost(errors.New("watched root was removed"))
			return
		}
		w.queue.Enqueue(model.FileEvent{Kind: model.EventDeleted, Path: fsEvent.Name, Timestamp: now})

	case fsEvent.Has(fsnotify.Write):
		w.queue.Enqueue(model.FileEvent{Kind: model.EventChanged, Path: fsEvent.Name, Timestamp: now})

	default:
		logger.Log.Debug("ignoring notification",
			zap.String("op", fsEvent.Op.String()),
			zap.String("path", fsEvent.Name))
	}
}

// flushRename reports a rename that never got its create as a delete: the
// entry moved out of the watched tree.
func (w *Watcher) flushRename() {
	if w.pending == nil {
		return
	}

	old := w.pending
	w.pending = nil
	w.renameTimer.Stop()

	w.unwatchTree(old.path)
	w.queue.Enqueue(model.FileEvent{Kind: model.EventDeleted, Path: old.path, Timestamp: old.at})
}

// selfMove consumes the move event a renamed directory reports for itself.
// fsnotify drops the directory's watch when it sees that event, so the tree
// is watched again and re-copied to cover writes made while it was unwatched.
func (w *Watcher) selfMove(name string, now time.Time) bool {
	m := w.lastDirMove
	w.lastDirMove = nil

	if m == nil || name != m.oldPath || now.Sub(m.at) > selfMoveWindow {
		return false
	}

	w.rewatchMoved(m.oldPath, m.newPath)
	w.queue.Enqueue(model.FileEvent{Kind: model.EventCreated, Path: m.newPath, Timestamp: now})
	return true
}

// rewatchMoved replaces the watches still registered under the old name of a
// moved directory. Re-adding the same inodes would keep the old path names.
func (w *Watcher) rewatchMoved(oldPath, newPath string) {
	w.unwatchTree(oldPath)
	w.watchIfDir(newPath)
}

func (w *Watcher) unwatchTree(dir string) {
	prefix := dir + string(filepath.Separator)

	for _, path := range w.fw.WatchList() {
		if path != dir && !strings.HasPrefix(path, prefix) {
			continue
		}
		if err := w.fw.Remove(path); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
			logger.Log.Debug("failed to remove stale watch",
				zap.String("path", path),
				zap.Error(err))
		}
	}
}

func (w *Watcher) handleError(err error) {
	if errors.Is(err, fsnotify.ErrEventOverflow) {
		w.overflows.Add(1)
		logger.Log.Error("notification buffer overflow, changes were lost",
			zap.String("category", string(model.SourceOverflow)),
			zap.String("root", w.root),
			zap.Error(err))

		w.report(model.SourceError{Kind: model.SourceOverflow, Root: w.root, Err: err, At: time.Now()})
		return
	}

	if _, statErr := os.Stat(w.root); statErr != nil {
		w.rootLost(fmt.Errorf("%w (%v)", err, statErr))
		return
	}

	w.inaccessible.Add(1)
	logger.Log.Error("watcher error",
		zap.String("category", string(model.SourceInaccessible)),
		zap.String("root", w.root),
		zap.Error(err))

	w.report(model.SourceError{Kind: model.SourceInaccessible, Root: w.root, Err: err, At: time.Now()})
}

func (w *Watcher) rootLost(err error) {
	w.inaccessible.Add(1)
	logger.Log.Error("watched root not accessible",
		zap.String("category", string(model.SourceInaccessible)),
		zap.String("root", w.root),
		zap.Error(err))

	w.report(model.SourceError{Kind: model.SourceInaccessible, Root: w.root, Err: err, At: time.Now()})
	w.startRearm()
}

func (w *Watcher) report(srcErr model.SourceError) {
	select {
	case <-w.doneCh:
		return
	default:
	}

	select {
	case w.errCh <- srcErr:
	default:
		logger.Log.Debug("source error channel full, dropping report",
			zap.String("root", w.root))
	}
}

func (w *Watcher) startRearm() {
	if w.opts.RearmAttempts <= 0 || !w.rearming.CompareAndSwap(false, true) {
		return
	}

	w.wg.Add(1)
	go w.rearm()
}

// rearm waits for the root to come back and re-adds the recursive watch. The
// gap is reported as a create of the root so the worker re-copies it.
func (w *Watcher) rearm() {
	defer w.wg.Done()
	defer w.rearming.Store(false)

	for attempt := 1; attempt <= w.opts.RearmAttempts; attempt++ {
		select {
		case <-w.doneCh:
			return
		case <-time.After(w.opts.RearmBackoff):
		}

		info, err := os.Stat(w.root)
		if err != nil || !info.IsDir() {
			logger.Log.Debug("watched root still unavailable",
				zap.String("root", w.root),
				zap.Int("attempt", attempt))
			continue
		}

		if err := w.addRecursive(w.root); err != nil {
			logger.Log.Warn("failed to re-arm watch",
				zap.String("root", w.root),
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}

		logger.Log.Info("watch re-armed",
			zap.String("root", w.root),
			zap.Int("attempt", attempt))

		w.queue.Enqueue(model.FileEvent{Kind: model.EventCreated, Path: w.root, Timestamp: time.Now()})
		return
	}

	logger.Log.Error("giving up re-arming watch",
		zap.String("root", w.root),
		zap.Int("attempts", w.opts.RearmAttempts))
}

func isDir(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.IsDir()
}

func (w *Watcher) watchIfDir(path string) {
	if !isDir(path) {
		return
	}

	if err := w.addRecursive(path); err != nil {
		logger.Log.Warn("failed to watch new directory",
			zap.String("path", path),
			zap.Error(err))
		return
	}

	logger.Log.Debug("added new directory to watch",
		zap.String("path", path))
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// entries can vanish between readdir and lstat
			if os.IsNotExist(err) && path != dir {
				return nil
			}
			return err
		}

		if d.IsDir() {
			if err := w.fw.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
			logger.Log.Debug("watching directory",
				zap.String("path", path))
		}

		return nil
	})
}
