package session

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattsession/internal/groutine"
)

// executor runs closures one at a time, in submission order, on a single
// named goroutine. It is the session's only execution context: every field
// annotated "executor-only" is read and written exclusively from closures it runs.
//
// The queue is unbounded so that posting never blocks, neither from adapter
// goroutines nor from closures already running on the executor.
type executor struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   <-chan struct{}
	logger *logrus.Logger
}

func newExecutor(name string, logger *logrus.Logger) *executor {
	e := &executor{
		wake:   make(chan struct{}, 1),
		logger: logger,
	}
	e.done = groutine.Go(nil, name, func(context.Context) { e.run() })
	return e
}

// post queues fn. Returns false if the executor no longer accepts work.
func (e *executor) post(fn func()) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.queue = append(e.queue, fn)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return true
}

// call runs fn on the executor and waits for it to return.
// Must not be called from the executor itself.
func (e *executor) call(fn func()) bool {
	finished := make(chan struct{})
	if !e.post(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	// closed executors still run their backlog, so finished always closes
	<-finished
	return true
}

// close stops accepting work; already queued closures still run.
func (e *executor) close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *executor) run() {
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.mu.Unlock()
			<-e.wake
			e.mu.Lock()
		}
		batch := e.queue
		e.queue = nil
		closed := e.closed
		e.mu.Unlock()

		for _, fn := range batch {
			fn()
		}

		if closed {
			e.mu.Lock()
			remaining := len(e.queue)
			e.mu.Unlock()
			if remaining == 0 {
				e.logger.Debug("Session executor stopped")
				return
			}
		}
	}
}
