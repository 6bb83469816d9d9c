// Package workerpool runs short dispatch tasks on a fixed set of workers
// draining one shared FIFO queue. Sessions park their blocking reads on
// their own goroutines and push only the dispatch/notify/write step here, so
// a small pool bounds concurrent application work without letting an idle
// connection occupy a worker.
//
// A pool with zero workers is in manual pump mode: nothing drains the queue
// until the embedding application calls RunOne repeatedly.
package workerpool

import (
	"errors"
	"sync"

	"github.com/eapache/queue"
	"golang.org/x/sync/errgroup"
)

// ErrStopped is returned by Submit and Do after Stop has been called.
var ErrStopped = errors.New("workerpool: pool stopped")

// Task is one unit of work. Tasks must not call Do on their own pool.
type Task func()

// Pool is a fixed-size worker pool over a FIFO task queue. Create it with
// New, call Start once, Submit or Do from any goroutine, and Stop when done.
// After Stop, queued tasks are still drained before the workers exit.
type Pool struct {
	workers int

	mu      sync.Mutex
	cond    *sync.Cond
	tasks   *queue.Queue
	stopped bool
	started bool

	group errgroup.Group
}

// New creates a pool with the given number of workers.
//
// Parameters:
//   - workers: Worker count; 0 selects manual pump mode
//
// Returns:
//   - A new Pool, not yet started
func New(workers int) *Pool {
	p := &Pool{
		workers: workers,
		tasks:   queue.New(),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the workers. It is a no-op for a pool with zero workers
// and for a pool that is already started.
func (p *Pool) Start() {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	for i := 0; i < p.workers; i++ {
		p.group.Go(func() error {
			p.work()
			return nil
		})
	}
}

// Stop marks the pool stopped and waits for the workers to drain the queue
// and exit. Tasks submitted after Stop are rejected. Safe to call more than
// once.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		p.group.Wait()
		return
	}
	p.stopped = true
	p.cond.Broadcast()
	p.mu.Unlock()

	// Drain what is left on this goroutine as well; with zero workers
	// nothing else would, and Do callers must not be left waiting.
	for p.RunOne() {
	}

	p.group.Wait()
}

// Submit enqueues a task for asynchronous execution.
//
// Parameters:
//   - t: The task to run; nil tasks are ignored
//
// Returns:
//   - ErrStopped if the pool has been stopped
func (p *Pool) Submit(t Task) error {
	if t == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrStopped
	}

	p.tasks.Add(t)
	p.cond.Signal()
	return nil
}

// Do enqueues a task and blocks until it has run. This is how a session
// serializes its own dispatch step through the shared pool: the calling
// goroutine waits, so one session never has two steps in flight.
//
// Parameters:
//   - t: The task to run
//
// Returns:
//   - ErrStopped if the pool rejected the task
func (p *Pool) Do(t Task) error {
	if t == nil {
		return nil
	}

	done := make(chan struct{})
	err := p.Submit(func() {
		defer close(done)
		t()
	})
	if err != nil {
		return err
	}

	<-done
	return nil
}

// RunOne pops and runs a single queued task on the calling goroutine. This
// is the manual pump for pools with zero workers.
//
// Returns:
//   - true if a task was run, false if the queue was empty
func (p *Pool) RunOne() bool {
	p.mu.Lock()
	if p.tasks.Length() == 0 {
		p.mu.Unlock()
		return false
	}
	t := p.tasks.Remove().(Task)
	p.mu.Unlock()

	t()
	return true
}

// Pending returns the number of queued tasks not yet started.
//
// Returns:
//   - The current queue length
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tasks.Length()
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int {
	return p.workers
}

// work is one worker's loop: pop, run, repeat; exit once the pool is
// stopped and the queue is empty.
func (p *Pool) work() {
	for {
		p.mu.Lock()
		for p.tasks.Length() == 0 && !p.stopped {
			p.cond.Wait()
		}

		if p.tasks.Length() == 0 && p.stopped {
			p.mu.Unlock()
			return
		}

		t := p.tasks.Remove().(Task)
		p.mu.Unlock()

		t()
	}
}
