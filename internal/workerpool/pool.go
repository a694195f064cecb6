// Package workerpool provides a fixed-size pool of goroutines draining a
// shared, unbounded FIFO queue.
//
// The pool runs exactly one kind of task: every queued value of type T is
// handed to the single run function given to New. Submit never blocks, so
// a burst of work accumulates in the queue instead of pushing back on the
// producer.
//
// Usage:
//
//	pool := workerpool.New(4, func(c net.Conn) { handle(c) })
//	_ = pool.Submit(conn)
//	...
//	pool.Close()
//	_ = pool.Wait(ctx)
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/marmos91/staticd/internal/logger"
)

// ErrPoolClosed is returned by Submit after Close has been called.
var ErrPoolClosed = errors.New("worker pool closed")

// Stats is a point-in-time snapshot of pool activity.
type Stats struct {
	Workers   int
	Queued    int
	Busy      int
	Submitted uint64
	Completed uint64
	Panics    uint64
}

// Pool is a fixed set of workers consuming tasks of type T.
//
// Thread safety:
// Submit, Close, Wait and Stats are safe for concurrent use.
type Pool[T any] struct {
	run func(T)

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []T
	closed bool

	workers []*worker[T]
	wg      sync.WaitGroup

	busy      atomic.Int32
	submitted atomic.Uint64
	completed atomic.Uint64
	panics    atomic.Uint64
}

type worker[T any] struct {
	id   int
	pool *Pool[T]
}

// New starts size workers that pass each dequeued task to run.
//
// Parameters:
//   - size: Number of workers. Must be positive.
//   - run: Function every worker calls once per task.
//
// Panics if size is not positive or run is nil; both are programming errors.
func New[T any](size int, run func(T)) *Pool[T] {
	if size <= 0 {
		panic(fmt.Sprintf("workerpool: invalid size %d", size))
	}
	if run == nil {
		panic("workerpool: nil run function")
	}

	p := &Pool[T]{
		run:     run,
		workers: make([]*worker[T], size),
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		w := &worker[T]{id: i, pool: p}
		p.workers[i] = w
		go w.loop()
	}

	return p
}

// Submit appends task to the queue and wakes one idle worker.
//
// Submit never blocks on worker availability. It returns ErrPoolClosed if
// the pool no longer accepts work, in which case the caller still owns task.
func (p *Pool[T]) Submit(task T) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.queue = append(p.queue, task)
	p.mu.Unlock()

	p.submitted.Add(1)
	p.cond.Signal()
	return nil
}

// Close stops the pool from accepting new tasks. Tasks already queued are
// still run; workers exit once the queue is empty. Close is idempotent.
func (p *Pool[T]) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.cond.Broadcast()
}

// Wait blocks until every worker has exited or ctx is done.
//
// Wait only returns nil after Close; without it the workers run forever.
func (p *Pool[T]) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Size returns the fixed number of workers.
func (p *Pool[T]) Size() int {
	return len(p.workers)
}

// Stats returns a snapshot of queue depth and worker activity.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	queued := len(p.queue)
	p.mu.Unlock()

	return Stats{
		Workers:   len(p.workers),
		Queued:    queued,
		Busy:      int(p.busy.Load()),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Panics:    p.panics.Load(),
	}
}

// next blocks until a task is available. ok is false once the pool is
// closed and drained.
func (p *Pool[T]) next() (task T, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.queue) == 0 {
		if p.closed {
			return task, false
		}
		p.cond.Wait()
	}

	task = p.queue[0]

	// Zero the slot so the backing array does not pin the task.
	var zero T
	p.queue[0] = zero
	p.queue = p.queue[1:]
	if len(p.queue) == 0 {
		p.queue = nil
	}

	return task, true
}

func (w *worker[T]) loop() {
	defer w.pool.wg.Done()

	for {
		task, ok := w.pool.next()
		if !ok {
			logger.Debug("Worker %d exiting", w.id)
			return
		}

		// The queue lock is released here: other workers keep dequeuing
		// while this task runs.
		w.execute(task)
	}
}

func (w *worker[T]) execute(task T) {
	w.pool.busy.Add(1)
	defer func() {
		w.pool.busy.Add(-1)
		w.pool.completed.Add(1)
		if r := recover(); r != nil {
			w.pool.panics.Add(1)
			logger.Error("Worker %d: task panicked: %v", w.id, r)
		}
	}()

	w.pool.run(task)
}
