package memengine

import (
	"context"
	"sync"
	"time"
)

// task is one pending cluster-state update.
type task struct {
	desc  string
	delay time.Duration
	run   func()
	done  chan struct{}
}

// taskQueue serializes cluster-state updates through a single worker
// goroutine, so state mutations are applied asynchronously and in order,
// the way a real engine's master applies them. The pending queue is what
// the harness's convergence gate drains.
type taskQueue struct {
	mu      sync.Mutex
	queue   []*task
	running *task
	stopped bool

	// notify wakes the worker when work arrives; buffered so submitters
	// never block on it.
	notify chan struct{}
	quit   chan struct{}
	wg     sync.WaitGroup
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{
		notify: make(chan struct{}, 1),
		quit:   make(chan struct{}),
	}
	q.wg.Add(1)
	go q.worker()
	return q
}

// submit enqueues a cluster-state update and returns immediately.
func (q *taskQueue) submit(desc string, delay time.Duration, run func()) *task {
	t := &task{
		desc:  desc,
		delay: delay,
		run:   run,
		done:  make(chan struct{}),
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		close(t.done)
		return t
	}
	q.queue = append(q.queue, t)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return t
}

// submitWait enqueues a cluster-state update and blocks until the worker
// has applied it or the context is canceled.
func (q *taskQueue) submitWait(ctx context.Context, desc string, run func()) error {
	t := q.submit(desc, 0, run)
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pending returns the descriptions of updates not yet applied, in order.
// A task counts as pending until its effects are fully visible.
func (q *taskQueue) pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	descs := make([]string, len(q.queue))
	for i, t := range q.queue {
		descs[i] = t.desc
	}
	return descs
}

func (q *taskQueue) pendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// stop shuts the worker down. Tasks not yet applied are abandoned with
// their done channels closed so no submitter hangs.
func (q *taskQueue) stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.mu.Unlock()

	close(q.quit)
	q.wg.Wait()

	q.mu.Lock()
	abandoned := q.queue
	running := q.running
	q.queue = nil
	q.mu.Unlock()

	for _, t := range abandoned {
		// The in-flight task's done channel is closed by the worker.
		if t != running {
			close(t.done)
		}
	}
}

// worker applies queued tasks one at a time. A task stays in the pending
// list until it has fully run, so observers counting pending tasks see it
// until its effects are visible.
func (q *taskQueue) worker() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		var t *task
		if len(q.queue) > 0 {
			t = q.queue[0]
		}
		q.running = t
		q.mu.Unlock()

		if t == nil {
			select {
			case <-q.quit:
				return
			case <-q.notify:
				continue
			}
		}

		if t.delay > 0 {
			select {
			case <-q.quit:
				close(t.done)
				return
			case <-time.After(t.delay):
			}
		}
		t.run()

		q.mu.Lock()
		if len(q.queue) > 0 && q.queue[0] == t {
			q.queue = q.queue[1:]
		}
		q.running = nil
		stopped := q.stopped
		q.mu.Unlock()

		close(t.done)
		if stopped {
			return
		}
	}
}
