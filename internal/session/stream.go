package session

import (
	"sync"
	"sync/atomic"
)

// Stream is a bounded, overwrite-oldest feed of values produced by the session
// (connection events, characteristic updates, RSSI samples).
//
// The producer never blocks: if the consumer falls behind, the oldest buffered
// value is discarded and counted in StreamMetrics.Overwritten. The channel
// returned by C is closed when the feed ends, so consumers can simply range
// over it:
//
//	for ev := range s.Events().C() {
//	    fmt.Println(ev)
//	}
type Stream[T any] struct {
	ch        chan T
	finished  bool // executor-only
	metrics   StreamMetrics
	closeOnce sync.Once
	onClose   func()
}

// StreamMetrics counts stream traffic. All fields are updated atomically.
type StreamMetrics struct {
	Processed   int64
	Written     int64
	Overwritten int64
}

func newStream[T any](capacity int) *Stream[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Stream[T]{ch: make(chan T, capacity)}
}

// C returns the receive side. Reads through C are not counted as Processed.
func (s *Stream[T]) C() <-chan T {
	return s.ch
}

// Receive blocks until a value is available or the stream ends.
func (s *Stream[T]) Receive() (v T, ok bool) {
	v, ok = <-s.ch
	if ok {
		atomic.AddInt64(&s.metrics.Processed, 1)
	}
	return
}

// TryReceive returns (zero, false) if no value is ready.
func (s *Stream[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-s.ch:
		if ok {
			atomic.AddInt64(&s.metrics.Processed, 1)
		}
		return
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of buffered values.
func (s *Stream[T]) Len() int {
	return len(s.ch)
}

// Cap returns the buffer capacity.
func (s *Stream[T]) Cap() int {
	return cap(s.ch)
}

// Close unsubscribes. The channel is closed asynchronously, after which
// ranging over C terminates.
func (s *Stream[T]) Close() {
	s.closeOnce.Do(func() {
		if s.onClose != nil {
			s.onClose()
		}
	})
}

// Metrics returns a snapshot of the counters.
func (s *Stream[T]) Metrics() StreamMetrics {
	return StreamMetrics{
		Processed:   atomic.LoadInt64(&s.metrics.Processed),
		Written:     atomic.LoadInt64(&s.metrics.Written),
		Overwritten: atomic.LoadInt64(&s.metrics.Overwritten),
	}
}

// send delivers v, discarding the oldest value if the buffer is full.
// Executor-only; the executor is the single producer.
func (s *Stream[T]) send(v T) (dropped bool) {
	if s.finished {
		return false
	}
	select {
	case s.ch <- v:
	default:
		select {
		case <-s.ch:
			atomic.AddInt64(&s.metrics.Overwritten, 1)
			dropped = true
		default:
		}
		s.ch <- v
	}
	atomic.AddInt64(&s.metrics.Written, 1)
	return dropped
}

// finish ends the stream. Executor-only.
func (s *Stream[T]) finish() {
	if s.finished {
		return
	}
	s.finished = true
	close(s.ch)
}

// hub fans values out to every open subscriber stream. Executor-only.
type hub[T any] struct {
	exec     *executor
	capacity int
	subs     []*Stream[T]
	retired  bool
}

func newHub[T any](exec *executor, capacity int) *hub[T] {
	return &hub[T]{exec: exec, capacity: capacity}
}

// subscribe may be called from any goroutine. Registration is queued on the
// executor, so values broadcast by closures posted later are observed.
func (h *hub[T]) subscribe() *Stream[T] {
	s := newStream[T](h.capacity)
	s.onClose = func() {
		h.exec.post(func() { h.remove(s) })
	}
	if !h.exec.post(func() { h.add(s) }) {
		s.finished = true
		close(s.ch)
	}
	return s
}

// subscribeLocal registers a stream from the executor itself.
func (h *hub[T]) subscribeLocal() *Stream[T] {
	s := newStream[T](h.capacity)
	s.onClose = func() {
		h.exec.post(func() { h.remove(s) })
	}
	h.add(s)
	return s
}

func (h *hub[T]) add(s *Stream[T]) {
	if h.retired {
		s.finish()
		return
	}
	h.subs = append(h.subs, s)
}

func (h *hub[T]) remove(s *Stream[T]) {
	for i, sub := range h.subs {
		if sub == s {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			break
		}
	}
	s.finish()
}

// broadcast returns the number of values discarded due to slow consumers.
func (h *hub[T]) broadcast(v T) (dropped int) {
	for _, s := range h.subs {
		if s.send(v) {
			dropped++
		}
	}
	return dropped
}

// closeAll ends every subscriber stream.
func (h *hub[T]) closeAll() {
	for _, s := range h.subs {
		s.finish()
	}
	h.subs = nil
}

// retire ends every subscriber stream and every stream subscribed later.
func (h *hub[T]) retire() {
	h.retired = true
	h.closeAll()
}
