package daemon

import (
	"errors"
	"fmt"
	"sync"

	"mimic/internal/config"
	"mimic/internal/db"
	"mimic/internal/logger"
	"mimic/internal/model"
	"mimic/internal/pipeline"
	"mimic/internal/repository"
	"mimic/internal/syncer"
	"mimic/internal/syncer/local"

	"go.uber.org/zap"
)

type historySaver interface {
	Save(result model.MirrorResult, watchRoot string) error
}

// mirrorPair is one watched root with its private queue, source and worker.
type mirrorPair struct {
	spec    model.WatchSpec
	queue   *pipeline.Queue
	watcher *local.Watcher
	worker  *local.Worker
	state   *WorkerState
}

// Supervisor owns every mirror pair for the lifetime of the process.
type Supervisor struct {
	mu      sync.RWMutex
	cfg     *config.Config
	specs   []model.WatchSpec
	pairs   []*mirrorPair
	mirror  syncer.Mirror
	history historySaver
	errWg   sync.WaitGroup
	started bool
	stopped bool
}

func NewSupervisor(cfg *config.Config, specs []model.WatchSpec) *Supervisor {
	s := &Supervisor{
		cfg:    cfg,
		specs:  specs,
		mirror: local.Ops{},
	}
	if db.DB != nil {
		s.history = repository.NewHistoryRepository()
	}

	return s
}

// Start launches one worker and one watcher per spec. If any pair fails to
// start, the pairs already running are stopped and the error is returned.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("supervisor already started")
	}
	s.started = true

	for _, spec := range s.specs {
		p, err := s.startPair(spec)
		if err != nil {
			s.stopPairs()
			return fmt.Errorf("failed to start %s: %w", spec.WatchRoot, err)
		}
		s.pairs = append(s.pairs, p)
	}

	logger.Log.Info("supervisor started",
		zap.Int("pairs", len(s.pairs)))
	return nil
}

func (s *Supervisor) startPair(spec model.WatchSpec) (*mirrorPair, error) {
	p := &mirrorPair{
		spec:  spec,
		queue: pipeline.NewQueue(),
		state: NewWorkerState(spec),
	}

	worker, err := local.NewWorker(spec, p.queue, s.mirror, local.WorkerOptions{
		IdleInterval: s.cfg.IdleInterval,
		Debounce:     s.cfg.Debounce,
		OnResult:     func(result model.MirrorResult) { s.record(p, result) },
	})
	if err != nil {
		return nil, err
	}

	watcher, err := local.NewWatcher(spec.WatchRoot, p.queue, local.WatcherOptions{
		RenameWindow:  s.cfg.RenameWindow,
		RearmAttempts: s.cfg.RearmAttempts,
		RearmBackoff:  s.cfg.RearmBackoff,
	})
	if err != nil {
		return nil, err
	}

	if err := watcher.Start(); err != nil {
		watcher.Stop()
		return nil, err
	}

	p.worker = worker
	p.watcher = watcher
	worker.Start()

	s.errWg.Add(1)
	go s.watchErrors(p)

	logger.Log.Info("mirroring",
		zap.String("src", spec.WatchRoot),
		zap.String("dst", spec.DestRoot),
		zap.Strings("excluded", spec.Exclusions))

	return p, nil
}

func (s *Supervisor) record(p *mirrorPair, result model.MirrorResult) {
	p.state.RecordResult(result)

	if s.history == nil || result.Op == model.OpSkip {
		return
	}

	if err := s.history.Save(result, p.spec.WatchRoot); err != nil {
		logger.Log.Warn("failed to save history",
			zap.Error(err))
	}
}

// watchErrors exits when the watcher closes its error channel on Stop.
func (s *Supervisor) watchErrors(p *mirrorPair) {
	defer s.errWg.Done()

	for srcErr := range p.watcher.Errors() {
		p.state.RecordSourceError(srcErr.Kind)
	}
}

// Stop stops every source first so nothing is enqueued anymore, then stops
// the workers and waits for their loops to exit.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true

	s.stopPairs()

	logger.Log.Info("supervisor stopped")
}

func (s *Supervisor) stopPairs() {
	for _, p := range s.pairs {
		p.watcher.Stop()
	}

	var wg sync.WaitGroup
	for _, p := range s.pairs {
		p.state.SetStatus(model.WorkerStopping)

		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker.Stop()
			p.state.SetStatus(model.WorkerStopped)
		}()
	}
	wg.Wait()

	s.errWg.Wait()
}

func (s *Supervisor) Snapshots() []model.WorkerSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snaps := make([]model.WorkerSnapshot, 0, len(s.pairs))
	for _, p := range s.pairs {
		snaps = append(snaps, p.state.Snapshot(p.queue.Len()))
	}

	return snaps
}
