package pipeline

import (
	"sync"
	"time"
)

type seenWrite struct {
	modTime time.Time
	at      time.Time
}

// WriteDebouncer suppresses the duplicate "changed" notification that a single
// save often produces. A path is suppressed only while it is inside the window
// and its modification time is unchanged, so a real second write still passes.
// Losing entries only costs a redundant copy.
type WriteDebouncer struct {
	mu        sync.Mutex
	window    time.Duration
	seen      map[string]seenWrite
	lastSweep time.Time
	now       func() time.Time
}

func NewWriteDebouncer(window time.Duration) *WriteDebouncer {
	return &WriteDebouncer{
		window: window,
		seen:   make(map[string]seenWrite),
		now:    time.Now,
	}
}

// Seen records the write and reports whether it duplicates one recorded
// within the window.
func (d *WriteDebouncer) Seen(path string, modTime time.Time) bool {
	if d == nil || d.window <= 0 {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.sweep(now)

	prev, ok := d.seen[path]
	if ok && now.Sub(prev.at) < d.window && prev.modTime.Equal(modTime) {
		return true
	}

	d.seen[path] = seenWrite{modTime: modTime, at: now}
	return false
}

func (d *WriteDebouncer) Forget(path string) {
	if d == nil {
		return
	}

	d.mu.Lock()
	delete(d.seen, path)
	d.mu.Unlock()
}

func (d *WriteDebouncer) Len() int {
	if d == nil {
		return 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.seen)
}

func (d *WriteDebouncer) sweep(now time.Time) {
	if now.Sub(d.lastSweep) < d.window {
		return
	}

	for path, s := range d.seen {
		if now.Sub(s.at) >= d.window {
			delete(d.seen, path)
		}
	}

	d.lastSweep = now
}
