package apirunner

import (
	"sync"

	"git.home.luguber.info/inful/sitegraph/internal/store"
)

// actionQueue is an unbounded FIFO of lifecycle actions. Hooks dispatch
// further actions while the worker is busy, so enqueueing must never block.
//
// idle is non-nil while work is pending or in progress and is closed once the
// worker finds the queue empty, which is what Wait selects on.
type actionQueue struct {
	mu      sync.Mutex
	actions []store.NodeLifecycleAction
	closed  bool
	idle    chan struct{}
	signal  chan struct{} // buffered, size 1
}

func newActionQueue() *actionQueue {
	return &actionQueue{
		actions: make([]store.NodeLifecycleAction, 0, 64),
		signal:  make(chan struct{}, 1),
	}
}

// enqueue returns false once the queue is closed.
func (q *actionQueue) enqueue(a store.NodeLifecycleAction) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.actions = append(q.actions, a)
	if q.idle == nil {
		q.idle = make(chan struct{})
	}

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// next pops the front action. When the queue is empty it marks the worker
// idle and returns false.
func (q *actionQueue) next() (store.NodeLifecycleAction, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.actions) == 0 {
		q.markIdle()
		return nil, false
	}
	a := q.actions[0]
	q.actions[0] = nil
	q.actions = q.actions[1:]
	return a, true
}

// idleChan returns nil when nothing is pending.
func (q *actionQueue) idleChan() chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.idle
}

// close drops pending actions and releases waiters.
func (q *actionQueue) close() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := len(q.actions)
	q.closed = true
	q.actions = nil
	q.markIdle()
	return dropped
}

func (q *actionQueue) markIdle() {
	if q.idle != nil {
		close(q.idle)
		q.idle = nil
	}
}

func (q *actionQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}
