package entity

import (
	"sync"
)

const defaultQueueSize = 256

// QueuedObserver delivers state changes to a slower observer on its own
// goroutine, preserving order.
//
// Entities call their Notifier while holding a lock, and paho invokes
// feedback handlers on its delivery goroutine; anything that does I/O
// (SQLite, Redis, publishing back to the broker) goes behind a queue so
// neither is held up. When the queue is full the change is dropped and
// logged.
type QueuedObserver struct {
	name   string
	next   Observer
	logger Logger

	queue chan StateChange
	done  chan struct{}

	mu       sync.RWMutex
	stopped  bool
	stopOnce sync.Once
}

// NewQueuedObserver starts a worker feeding next. size <= 0 selects a default.
func NewQueuedObserver(name string, next Observer, size int, logger Logger) *QueuedObserver {
	if size <= 0 {
		size = defaultQueueSize
	}
	if logger == nil {
		logger = noopLogger{}
	}

	q := &QueuedObserver{
		name:   name,
		next:   next,
		logger: logger,
		queue:  make(chan StateChange, size),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// OnStateChange enqueues the change without blocking.
func (q *QueuedObserver) OnStateChange(change StateChange) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.stopped {
		return
	}

	select {
	case q.queue <- change:
	default:
		q.logger.Warn("state observer queue full, dropping change",
			"observer", q.name,
			"entity_id", change.EntityID,
		)
	}
}

// Stop drains what is already queued and waits for the worker to exit.
func (q *QueuedObserver) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		close(q.queue)
		q.mu.Unlock()
	})
	<-q.done
}

func (q *QueuedObserver) run() {
	defer close(q.done)
	for change := range q.queue {
		q.deliver(change)
	}
}

func (q *QueuedObserver) deliver(change StateChange) {
	defer func() {
		if p := recover(); p != nil {
			q.logger.Error("queued observer panic recovered",
				"observer", q.name,
				"entity_id", change.EntityID,
				"panic", p,
			)
		}
	}()
	q.next.OnStateChange(change)
}
