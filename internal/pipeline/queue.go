package pipeline

import (
	"sync"

	"mimic/internal/model"
)

// Queue is an unbounded FIFO of file events. Any number of goroutines may
// enqueue; a single consumer dequeues. Enqueue never blocks.
type Queue struct {
	mu     sync.Mutex
	items  []model.FileEvent
	head   int
	readyC chan struct{}
}

func NewQueue() *Queue {
	return &Queue{
		readyC: make(chan struct{}, 1),
	}
}

func (q *Queue) Enqueue(event model.FileEvent) {
	q.mu.Lock()
	q.items = append(q.items, event)
	q.mu.Unlock()

	select {
	case q.readyC <- struct{}{}:
	default:
	}
}

func (q *Queue) TryDequeue() (model.FileEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == len(q.items) {
		return model.FileEvent{}, false
	}

	event := q.items[q.head]
	q.items[q.head] = model.FileEvent{}
	q.head++

	// compact once the consumed prefix dominates the backing array
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 1024 && q.head*2 > len(q.items) {
		q.items = append(q.items[:0:0], q.items[q.head:]...)
		q.head = 0
	}

	return event, true
}

func (q *Queue) Peek() (model.FileEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == len(q.items) {
		return model.FileEvent{}, false
	}

	return q.items[q.head], true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items) - q.head
}

// Ready is signalled after an enqueue. It is a wake-up hint only; the consumer
// must still poll with TryDequeue.
func (q *Queue) Ready() <-chan struct{} {
	return q.readyC
}
