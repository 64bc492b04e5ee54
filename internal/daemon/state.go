package daemon

import (
	"sync"
	"time"

	"mimic/internal/model"
)

// WorkerState holds the counters reported by /status for one watched root.
type WorkerState struct {
	mu           sync.RWMutex
	WatchRoot    string
	DestRoot     string
	Status       model.WorkerStatus
	StartedAt    time.Time
	Mirrored     int
	Failed       int
	Skipped      int
	Overflows    int
	Inaccessible int
	LastMirror   *time.Time
}

func NewWorkerState(spec model.WatchSpec) *WorkerState {
	return &WorkerState{
		WatchRoot: spec.WatchRoot,
		DestRoot:  spec.DestRoot,
		Status:    model.WorkerRunning,
		StartedAt: time.Now(),
	}
}

func (s *WorkerState) RecordResult(result model.MirrorResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case result.Err != nil:
		s.Failed++
	case result.Op == model.OpSkip:
		s.Skipped++
	default:
		s.Mirrored++
		s.LastMirror = new(time.Now())
	}
}

func (s *WorkerState) RecordSourceError(kind model.SourceErrorKind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case model.SourceOverflow:
		s.Overflows++
	case model.SourceInaccessible:
		s.Inaccessible++
	}
}

func (s *WorkerState) SetStatus(status model.WorkerStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = status
}

func (s *WorkerState) Snapshot(pending int) model.WorkerSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return model.WorkerSnapshot{
		WatchRoot:    s.WatchRoot,
		DestRoot:     s.DestRoot,
		Status:       s.Status,
		StartedAt:    s.StartedAt,
		Mirrored:     s.Mirrored,
		Failed:       s.Failed,
		Skipped:      s.Skipped,
		Overflows:    s.Overflows,
		Inaccessible: s.Inaccessible,
		Pending:      pending,
		LastMirror:   s.LastMirror,
	}
}
