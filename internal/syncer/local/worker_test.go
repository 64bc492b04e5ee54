package local

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mimic/internal/model"
	"mimic/internal/pipeline"
	"mimic/internal/syncer"
)

type mirrorCall struct {
	op   model.MirrorOp
	a, b string
}

type fakeMirror struct {
	mu      sync.Mutex
	calls   []mirrorCall
	fail    map[string]error
	panicOn string
}

func (f *fakeMirror) record(op model.MirrorOp, a, b string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if a == f.panicOn && a != "" {
		panic("boom")
	}
	f.calls = append(f.calls, mirrorCall{op: op, a: a, b: b})
	return f.fail[a]
}

func (f *fakeMirror) CopyRecursiveOverwrite(src, dst string) error {
	return f.record(model.OpCopy, src, dst)
}

func (f *fakeMirror) DeletePath(path string) error {
	return f.record(model.OpDelete, path, "")
}

func (f *fakeMirror) RenamePath(oldPath, newPath string) error {
	return f.record(model.OpRename, oldPath, newPath)
}

func (f *fakeMirror) snapshot() []mirrorCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mirrorCall(nil), f.calls...)
}

func (f *fakeMirror) count(op model.MirrorOp) int {
	n := 0
	for _, c := range f.snapshot() {
		if c.op == op {
			n++
		}
	}
	return n
}

type resultLog struct {
	mu      sync.Mutex
	results []model.MirrorResult
}

func (r *resultLog) add(res model.MirrorResult) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
}

func (r *resultLog) all() []model.MirrorResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.MirrorResult(nil), r.results...)
}

func newTestWorker(t *testing.T, spec model.WatchSpec, mirror *fakeMirror) (*Worker, *pipeline.Queue, *resultLog) {
	t.Helper()

	queue := pipeline.NewQueue()
	results := &resultLog{}
	w, err := NewWorker(spec, queue, mirror, WorkerOptions{
		IdleInterval: 10 * time.Millisecond,
		Debounce:     time.Minute,
		OnResult:     results.add,
	})
	if err != nil {
		t.Fatalf("NewWorker() failed: %v", err)
	}

	return w, queue, results
}

func testSpec(t *testing.T, exclusions ...string) model.WatchSpec {
	t.Helper()

	base := t.TempDir()
	spec := model.WatchSpec{
		WatchRoot:  filepath.Join(base, "src"),
		DestRoot:   filepath.Join(base, "dst"),
		Exclusions: exclusions,
	}
	for _, dir := range []string{spec.WatchRoot, spec.DestRoot} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
	}

	return spec
}

func event(kind model.EventKind, path string) model.FileEvent {
	return model.FileEvent{Kind: kind, Path: path, Timestamp: time.Now()}
}

func TestWorkerCoalescesConsecutiveEvents(t *testing.T) {
	spec := testSpec(t)
	mirror := &fakeMirror{}
	w, queue, _ := newTestWorker(t, spec, mirror)

	a := filepath.Join(spec.WatchRoot, "a.txt")
	queue.Enqueue(event(model.EventChanged, a))
	queue.Enqueue(event(model.EventChanged, a))
	queue.Enqueue(event(model.EventDeleted, a))
	w.drain()

	calls := mirror.snapshot()
	if len(calls) != 1 {
		t.Fatalf("calls = %+v, want exactly the delete", calls)
	}
	if calls[0].op != model.OpDelete || calls[0].a != filepath.Join(spec.DestRoot, "a.txt") {
		t.Errorf("call = %+v, want delete of mapped path", calls[0])
	}
}

func TestWorkerNeverCoalescesRenames(t *testing.T) {
	spec := testSpec(t)
	mirror := &fakeMirror{}
	w, queue, _ := newTestWorker(t, spec, mirror)

	a := filepath.Join(spec.WatchRoot, "a.txt")
	b := filepath.Join(spec.WatchRoot, "b.txt")
	c := filepath.Join(spec.WatchRoot, "c.txt")

	queue.Enqueue(model.FileEvent{Kind: model.EventRenamed, OldPath: a, Path: b})
	queue.Enqueue(model.FileEvent{Kind: model.EventRenamed, OldPath: b, Path: c})
	queue.Enqueue(model.FileEvent{Kind: model.EventRenamed, OldPath: c, Path: b})
	queue.Enqueue(event(model.EventChanged, b))
	w.drain()

	if got := mirror.count(model.OpRename); got != 3 {
		t.Errorf("rename calls = %d, want 3", got)
	}
}

func TestWorkerSkipsDirectoryChange(t *testing.T) {
	spec := testSpec(t)
	mirror := &fakeMirror{}
	w, queue, results := newTestWorker(t, spec, mirror)

	dir := filepath.Join(spec.WatchRoot, "sub")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}

	queue.Enqueue(event(model.EventChanged, dir))
	w.drain()

	if calls := mirror.snapshot(); len(calls) != 0 {
		t.Errorf("directory change produced calls: %+v", calls)
	}
	if res := results.all(); len(res) != 1 || res[0].Op != model.OpSkip {
		t.Errorf("results = %+v, want one skip", res)
	}

	queue.Enqueue(event(model.EventCreated, dir))
	w.drain()

	if got := mirror.count(model.OpCopy); got != 1 {
		t.Errorf("directory create copies = %d, want 1", got)
	}
}

func TestWorkerDebouncesDuplicateChange(t *testing.T) {
	spec := testSpec(t)
	mirror := &fakeMirror{}
	w, queue, _ := newTestWorker(t, spec, mirror)

	file := filepath.Join(spec.WatchRoot, "f.txt")
	writeFile(t, file, "one")

	queue.Enqueue(event(model.EventChanged, file))
	w.drain()
	queue.Enqueue(event(model.EventChanged, file))
	w.drain()

	if got := mirror.count(model.OpCopy); got != 1 {
		t.Fatalf("copies = %d, want 1 for a duplicate change", got)
	}

	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(file, later, later); err != nil {
		t.Fatal(err)
	}
	queue.Enqueue(event(model.EventChanged, file))
	w.drain()

	if got := mirror.count(model.OpCopy); got != 2 {
		t.Errorf("copies = %d, want 2 after a real second write", got)
	}
}

func TestWorkerExcludedEventsNeverMutate(t *testing.T) {
	spec := testSpec(t, "**/node_modules/**")
	mirror := &fakeMirror{}
	w, queue, _ := newTestWorker(t, spec, mirror)

	excluded := filepath.Join(spec.WatchRoot, "node_modules", "x")
	other := filepath.Join(spec.WatchRoot, "node_modules", "y")

	queue.Enqueue(event(model.EventCreated, excluded))
	queue.Enqueue(event(model.EventChanged, excluded))
	queue.Enqueue(event(model.EventDeleted, excluded))
	queue.Enqueue(model.FileEvent{Kind: model.EventRenamed, OldPath: excluded, Path: other})
	w.drain()

	if calls := mirror.snapshot(); len(calls) != 0 {
		t.Errorf("excluded events produced calls: %+v", calls)
	}
}

func TestWorkerRenameAcrossExclusionBoundary(t *testing.T) {
	spec := testSpec(t, "**/*.tmp")
	mirror := &fakeMirror{}
	w, queue, _ := newTestWorker(t, spec, mirror)

	tmp := filepath.Join(spec.WatchRoot, "save.tmp")
	saved := filepath.Join(spec.WatchRoot, "save.txt")

	queue.Enqueue(model.FileEvent{Kind: model.EventRenamed, OldPath: tmp, Path: saved})
	queue.Enqueue(model.FileEvent{Kind: model.EventRenamed, OldPath: saved, Path: tmp})
	w.drain()

	calls := mirror.snapshot()
	if len(calls) != 2 {
		t.Fatalf("calls = %+v, want 2", calls)
	}
	if calls[0].op != model.OpCopy || calls[0].a != saved {
		t.Errorf("excluded -> included should copy the new path, got %+v", calls[0])
	}
	if calls[1].op != model.OpDelete || calls[1].a != filepath.Join(spec.DestRoot, "save.txt") {
		t.Errorf("included -> excluded should delete the old mirror, got %+v", calls[1])
	}
}

func TestWorkerSurvivesFailuresAndPanics(t *testing.T) {
	spec := testSpec(t)
	bad := filepath.Join(spec.WatchRoot, "bad.txt")
	explode := filepath.Join(spec.WatchRoot, "explode.txt")
	good := filepath.Join(spec.WatchRoot, "good.txt")

	mirror := &fakeMirror{
		fail:    map[string]error{filepath.Join(spec.DestRoot, "bad.txt"): errors.New("permission denied")},
		panicOn: filepath.Join(spec.DestRoot, "explode.txt"),
	}
	w, queue, results := newTestWorker(t, spec, mirror)

	queue.Enqueue(event(model.EventDeleted, bad))
	queue.Enqueue(event(model.EventDeleted, explode))
	queue.Enqueue(event(model.EventDeleted, good))
	w.drain()

	res := results.all()
	if len(res) != 3 {
		t.Fatalf("results = %d, want 3", len(res))
	}
	if res[0].Err == nil || res[1].Err == nil {
		t.Errorf("failed and panicking events should report errors: %+v", res[:2])
	}
	if res[2].Err != nil || res[2].Op != model.OpDelete {
		t.Errorf("event after failures should still be mirrored: %+v", res[2])
	}
}

func TestWorkerScenarios(t *testing.T) {
	spec := testSpec(t, "**/node_modules/**")
	queue := pipeline.NewQueue()
	w, err := NewWorker(spec, queue, Ops{}, WorkerOptions{Debounce: time.Second})
	if err != nil {
		t.Fatalf("NewWorker() failed: %v", err)
	}

	srcB := filepath.Join(spec.WatchRoot, "a", "b.txt")
	srcC := filepath.Join(spec.WatchRoot, "a", "c.txt")
	dstB := filepath.Join(spec.DestRoot, "a", "b.txt")
	dstC := filepath.Join(spec.DestRoot, "a", "c.txt")

	// created file is copied with its content
	writeFile(t, srcB, "hi")
	queue.Enqueue(event(model.EventCreated, srcB))
	w.drain()
	if got := readFile(t, dstB); got != "hi" {
		t.Fatalf("dst content = %q, want hi", got)
	}

	// rename moves the mirrored file
	if err := os.Rename(srcB, srcC); err != nil {
		t.Fatal(err)
	}
	queue.Enqueue(model.FileEvent{Kind: model.EventRenamed, OldPath: srcB, Path: srcC})
	w.drain()
	if exists(dstB) {
		t.Error("old destination should be gone after rename")
	}
	if got := readFile(t, dstC); got != "hi" {
		t.Errorf("renamed content = %q, want hi", got)
	}

	// delete removes the mirrored file
	if err := os.Remove(srcC); err != nil {
		t.Fatal(err)
	}
	queue.Enqueue(event(model.EventDeleted, srcC))
	w.drain()
	if exists(dstC) {
		t.Error("destination should be gone after delete")
	}

	// excluded create leaves no trace
	excluded := filepath.Join(spec.WatchRoot, "node_modules", "x")
	writeFile(t, excluded, "pkg")
	queue.Enqueue(event(model.EventCreated, excluded))
	w.drain()
	if exists(filepath.Join(spec.DestRoot, "node_modules")) {
		t.Error("excluded path must not appear at the destination")
	}

	// a create whose source already vanished is a skip, not a failure
	queue.Enqueue(event(model.EventCreated, filepath.Join(spec.WatchRoot, "ghost.txt")))
	w.drain()
}

func TestWorkerRenameFallsBackToCopy(t *testing.T) {
	spec := testSpec(t)
	results := &resultLog{}
	queue := pipeline.NewQueue()
	w, err := NewWorker(spec, queue, Ops{}, WorkerOptions{OnResult: results.add})
	if err != nil {
		t.Fatal(err)
	}

	newSrc := filepath.Join(spec.WatchRoot, "new.txt")
	writeFile(t, newSrc, "fresh")

	queue.Enqueue(model.FileEvent{Kind: model.EventRenamed, OldPath: filepath.Join(spec.WatchRoot, "never-mirrored.txt"), Path: newSrc})
	w.drain()

	if got := readFile(t, filepath.Join(spec.DestRoot, "new.txt")); got != "fresh" {
		t.Errorf("fallback copy content = %q", got)
	}
	if res := results.all(); len(res) != 1 || res[0].Op != model.OpCopy || res[0].Err != nil {
		t.Errorf("results = %+v, want one successful copy", res)
	}
}

func TestWorkerRunAndStop(t *testing.T) {
	spec := testSpec(t)
	mirror := &fakeMirror{}
	got := make(chan model.MirrorResult, 4)

	queue := pipeline.NewQueue()
	w, err := NewWorker(spec, queue, mirror, WorkerOptions{
		IdleInterval: 5 * time.Millisecond,
		OnResult:     func(r model.MirrorResult) { got <- r },
	})
	if err != nil {
		t.Fatal(err)
	}

	w.Start()
	if w.State() != model.WorkerRunning {
		t.Errorf("State() = %s, want RUNNING", w.State())
	}

	queue.Enqueue(event(model.EventDeleted, filepath.Join(spec.WatchRoot, "x")))

	select {
	case r := <-got:
		if r.Op != model.OpDelete {
			t.Errorf("result op = %s, want DELETE", r.Op)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not process the event")
	}

	w.Stop()
	if w.State() != model.WorkerStopped {
		t.Errorf("State() = %s, want STOPPED", w.State())
	}

	// a second stop must not block or panic
	w.Stop()
}

func TestNewWorkerRejectsBadPattern(t *testing.T) {
	spec := testSpec(t, "[oops")
	if _, err := NewWorker(spec, pipeline.NewQueue(), &fakeMirror{}, WorkerOptions{}); err == nil {
		t.Fatal("NewWorker() should reject an invalid exclusion pattern")
	}
}

func TestWorkerRenameRecopiesMismatchedTarget(t *testing.T) {
	spec := testSpec(t)
	queue := pipeline.NewQueue()
	w, err := NewWorker(spec, queue, Ops{}, WorkerOptions{})
	if err != nil {
		t.Fatal(err)
	}

	// x.txt left the tree and an unrelated, empty y.txt appeared right after
	writeFile(t, filepath.Join(spec.DestRoot, "x.txt"), "X")
	writeFile(t, filepath.Join(spec.WatchRoot, "y.txt"), "")

	queue.Enqueue(model.FileEvent{
		Kind:    model.EventRenamed,
		OldPath: filepath.Join(spec.WatchRoot, "x.txt"),
		Path:    filepath.Join(spec.WatchRoot, "y.txt"),
	})
	w.drain()

	if got := readFile(t, filepath.Join(spec.DestRoot, "y.txt")); got != "" {
		t.Errorf("dst y.txt = %q, want the empty source content", got)
	}
	if exists(filepath.Join(spec.DestRoot, "x.txt")) {
		t.Error("dst x.txt should be gone")
	}
}

func TestWorkerRenameKeepsMatchingTarget(t *testing.T) {
	spec := testSpec(t)
	src := filepath.Join(spec.WatchRoot, "moved.txt")
	writeFile(t, src, "same")
	if err := (Ops{}).CopyRecursiveOverwrite(src, filepath.Join(spec.DestRoot, "orig.txt")); err != nil {
		t.Fatal(err)
	}

	mirror := &countingOps{}
	w, queue, _ := newTestWorkerWith(t, spec, mirror)

	queue.Enqueue(model.FileEvent{
		Kind:    model.EventRenamed,
		OldPath: filepath.Join(spec.WatchRoot, "orig.txt"),
		Path:    src,
	})
	w.drain()

	if mirror.copies != 0 {
		t.Errorf("copies = %d, want 0 when the renamed mirror matches", mirror.copies)
	}
	if got := readFile(t, filepath.Join(spec.DestRoot, "moved.txt")); got != "same" {
		t.Errorf("dst content = %q, want same", got)
	}
}

// countingOps applies real mutations and counts copies.
type countingOps struct {
	Ops
	copies int
}

func (c *countingOps) CopyRecursiveOverwrite(src, dst string) error {
	c.copies++
	return c.Ops.CopyRecursiveOverwrite(src, dst)
}

func newTestWorkerWith(t *testing.T, spec model.WatchSpec, mirror syncer.Mirror) (*Worker, *pipeline.Queue, *resultLog) {
	t.Helper()

	queue := pipeline.NewQueue()
	results := &resultLog{}
	w, err := NewWorker(spec, queue, mirror, WorkerOptions{OnResult: results.add})
	if err != nil {
		t.Fatalf("NewWorker() failed: %v", err)
	}

	return w, queue, results
}
