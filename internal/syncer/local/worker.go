package local

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"mimic/internal/logger"
	"mimic/internal/model"
	"mimic/internal/pipeline"
	"mimic/internal/syncer"

	"go.uber.org/zap"
)

type WorkerOptions struct {
	IdleInterval time.Duration
	Debounce     time.Duration
	OnResult     func(model.MirrorResult)
}

// Worker is the single consumer of one root's queue. All mutations of the
// destination tree happen on its goroutine.
type Worker struct {
	spec      model.WatchSpec
	queue     *pipeline.Queue
	mirror    syncer.Mirror
	matcher   *pipeline.Matcher
	debouncer *pipeline.WriteDebouncer
	idle      time.Duration
	onResult  func(model.MirrorResult)

	stopping atomic.Bool
	started  atomic.Bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

func NewWorker(spec model.WatchSpec, queue *pipeline.Queue, mirror syncer.Mirror, opts WorkerOptions) (*Worker, error) {
	matcher, err := pipeline.NewMatcher(spec.Exclusions)
	if err != nil {
		return nil, err
	}

	if opts.IdleInterval <= 0 {
		opts.IdleInterval = 200 * time.Millisecond
	}

	return &Worker{
		spec:      spec,
		queue:     queue,
		mirror:    mirror,
		matcher:   matcher,
		debouncer: pipeline.NewWriteDebouncer(opts.Debounce),
		idle:      opts.IdleInterval,
		onResult:  opts.OnResult,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

func (w *Worker) Start() {
	if !w.started.CompareAndSwap(false, true) {
		return
	}

	go w.Run()
}

// Run loops until Stop. Pending events left in the queue at that point are
// abandoned.
func (w *Worker) Run() {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.idle)
	defer ticker.Stop()

	logger.Log.Info("mirror worker started",
		zap.String("src", w.spec.WatchRoot),
		zap.String("dst", w.spec.DestRoot))

	for !w.stopping.Load() {
		if w.queue.Len() == 0 {
			select {
			case <-w.stopCh:
			case <-w.queue.Ready():
			case <-ticker.C:
			}
			continue
		}

		w.drain()
	}

	logger.Log.Info("mirror worker stopped",
		zap.String("src", w.spec.WatchRoot),
		zap.Int("abandoned", w.queue.Len()))
}

// Stop asks the loop to exit and waits for the in-flight mutation, if any.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.stopping.Store(true)
		close(w.stopCh)
	})

	if w.started.Load() {
		<-w.doneCh
	}
}

func (w *Worker) State() model.WorkerStatus {
	switch {
	case !w.stopping.Load():
		return model.WorkerRunning
	case isClosed(w.doneCh):
		return model.WorkerStopped
	default:
		return model.WorkerStopping
	}
}

func (w *Worker) drain() {
	for !w.stopping.Load() {
		event, ok := w.queue.TryDequeue()
		if !ok {
			break
		}
		w.process(event)
	}

	logger.Log.Debug("queue drained",
		zap.String("src", w.spec.WatchRoot))
}

// process is the per-event failure boundary: nothing raised while mirroring
// one event may end the loop.
func (w *Worker) process(event model.FileEvent) {
	defer func() {
		if r := recover(); r != nil {
			w.report(model.MirrorResult{
				Event:   event,
				SrcPath: event.Path,
				Err:     fmt.Errorf("panic while mirroring: %v", r),
			})
		}
	}()

	w.report(w.handle(event))
}

func (w *Worker) handle(event model.FileEvent) model.MirrorResult {
	if event.Kind == model.EventRenamed {
		return w.handleRename(event)
	}

	result := model.MirrorResult{
		Event:   event,
		SrcPath: event.Path,
	}

	if w.matcher.IsExcluded(event.Path) {
		return skipped(result, "excluded")
	}

	if next, ok := w.queue.Peek(); ok && next.Path == event.Path {
		return skipped(result, "superseded by next event")
	}

	result.DstPath = MapPath(event.Path, w.spec.WatchRoot, w.spec.DestRoot)

	switch event.Kind {
	case model.EventChanged:
		if info, err := os.Stat(event.Path); err == nil {
			if info.IsDir() {
				return skipped(result, "directory change")
			}
			if w.debouncer.Seen(event.Path, info.ModTime()) {
				return skipped(result, "duplicate change")
			}
		}
		return w.copy(result, event.Path, result.DstPath)

	case model.EventCreated:
		return w.copy(result, event.Path, result.DstPath)

	case model.EventDeleted:
		w.debouncer.Forget(event.Path)
		result.Op = model.OpDelete
		result.Err = w.mirror.DeletePath(result.DstPath)
		return result

	default:
		return skipped(result, "unknown event kind")
	}
}

// handleRename applies a rename with the exclusion of each side considered on
// its own. A move into an excluded location deletes the old mirror, so the
// destination never keeps an entry the source no longer has at that path.
// The source side is paired by timing alone, so after a rename the new mirror
// is checked against the source and re-copied when they differ.
func (w *Worker) handleRename(event model.FileEvent) model.MirrorResult {
	result := model.MirrorResult{
		Event:   event,
		SrcPath: event.Path,
		DstPath: MapPath(event.Path, w.spec.WatchRoot, w.spec.DestRoot),
	}
	oldDst := MapPath(event.OldPath, w.spec.WatchRoot, w.spec.DestRoot)

	oldExcluded := w.matcher.IsExcluded(event.OldPath)
	newExcluded := w.matcher.IsExcluded(event.Path)

	w.debouncer.Forget(event.OldPath)

	switch {
	case oldExcluded && newExcluded:
		return skipped(result, "excluded")

	case newExcluded:
		// moved into an excluded location: the mirror copy must go
		result.SrcPath = event.OldPath
		result.DstPath = oldDst
		result.Op = model.OpDelete
		result.Err = w.mirror.DeletePath(oldDst)
		return result

	case oldExcluded:
		return w.copy(result, event.Path, result.DstPath)
	}

	result.Op = model.OpRename
	result.OldDstPath = oldDst

	err := w.mirror.RenamePath(oldDst, result.DstPath)
	if errors.Is(err, ErrSourceMissing) {
		logger.Log.Warn("rename source missing at destination, copying instead",
			zap.String("old_dst", oldDst),
			zap.String("dst", result.DstPath))
		result.OldDstPath = ""
		return w.copy(result, event.Path, result.DstPath)
	}

	if err == nil && targetDiffers(event.Path, result.DstPath) {
		logger.Log.Debug("renamed mirror differs from source, copying",
			zap.String("src", event.Path),
			zap.String("dst", result.DstPath))

		err = w.mirror.CopyRecursiveOverwrite(event.Path, result.DstPath)
		if errors.Is(err, ErrSourceMissing) {
			err = nil
		}
	}

	result.Err = err
	return result
}

// targetDiffers reports whether dst may not hold what src holds. Directories
// always count as different. A source that is gone never does; its delete is
// still queued.
func targetDiffers(src, dst string) bool {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return false
	}
	if srcInfo.IsDir() {
		return true
	}

	dstInfo, err := os.Stat(dst)
	if err != nil || dstInfo.IsDir() {
		return true
	}

	return srcInfo.Size() != dstInfo.Size() || !srcInfo.ModTime().Equal(dstInfo.ModTime())
}

// copy treats a source that vanished before it could be mirrored as a skip:
// the delete that follows it in the queue settles the destination.
func (w *Worker) copy(result model.MirrorResult, src, dst string) model.MirrorResult {
	result.Op = model.OpCopy

	err := w.mirror.CopyRecursiveOverwrite(src, dst)
	if errors.Is(err, ErrSourceMissing) {
		return skipped(result, "source missing")
	}

	result.Err = err
	return result
}

func (w *Worker) report(result model.MirrorResult) {
	switch {
	case result.Err != nil:
		logger.Log.Error("mirror failed",
			zap.String("op", string(result.Op)),
			zap.String("event", string(result.Event.Kind)),
			zap.String("src", result.SrcPath),
			zap.String("dst", result.DstPath),
			zap.Error(result.Err))

	case result.Op == model.OpSkip:
		logger.Log.Debug("event skipped",
			zap.String("event", string(result.Event.Kind)),
			zap.String("path", result.SrcPath),
			zap.String("reason", result.Reason))

	case result.Op == model.OpRename:
		logger.Log.Info("mirrored",
			zap.String("op", string(result.Op)),
			zap.String("from", result.OldDstPath),
			zap.String("to", result.DstPath))

	default:
		logger.Log.Info("mirrored",
			zap.String("op", string(result.Op)),
			zap.String("src", result.SrcPath),
			zap.String("dst", result.DstPath))
	}

	if w.onResult != nil {
		w.onResult(result)
	}
}

func skipped(result model.MirrorResult, reason string) model.MirrorResult {
	result.Op = model.OpSkip
	result.Reason = reason
	return result
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
