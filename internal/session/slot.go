package session

import (
	"sort"
	"time"

	"github.com/srg/gattsession/internal/device"
)

// OperationKind identifies the operation slot of a characteristic.
type OperationKind int

const (
	OpRead OperationKind = iota
	OpWrite
	OpNotify
	OpRSSI
)

func (k OperationKind) String() string {
	switch k {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpNotify:
		return "notify"
	case OpRSSI:
		return "rssi"
	default:
		return "unknown"
	}
}

type pendingOp[T any] struct {
	seq      uint64
	issuedAt time.Time
	timer    Timer
	complete func(T, error)
}

// OperationSlot tracks the requests of one operation kind. Every request gets
// its own sequence number; the slot keeps the set of sequences that are issued
// but not yet resolved (the live window). A completion is honored only if its
// sequence is still live, so each request resolves exactly once: by the adapter,
// by its timer, or by a forced disconnect, whichever comes first.
//
// Requests may be pipelined; the slot never serializes them. All methods are
// executor-only.
type OperationSlot[T any] struct {
	kind     OperationKind
	sequence uint64
	pending  map[uint64]*pendingOp[T]
}

func newOperationSlot[T any](kind OperationKind) *OperationSlot[T] {
	return &OperationSlot[T]{
		kind:    kind,
		pending: make(map[uint64]*pendingOp[T]),
	}
}

// Kind returns the operation kind served by the slot.
func (s *OperationSlot[T]) Kind() OperationKind { return s.kind }

// Sequence returns the most recently issued sequence number.
func (s *OperationSlot[T]) Sequence() uint64 { return s.sequence }

// Pending returns the number of live requests.
func (s *OperationSlot[T]) Pending() int { return len(s.pending) }

// begin issues a new sequence. If timeout is positive, expire(seq) is handed to
// onTimeout once it elapses; onTimeout must post back to the executor.
func (s *OperationSlot[T]) begin(clock Clock, timeout time.Duration, complete func(T, error), onTimeout func(seq uint64)) uint64 {
	s.sequence++
	seq := s.sequence

	op := &pendingOp[T]{seq: seq, issuedAt: clock.Now(), complete: complete}
	if timeout > 0 {
		op.timer = clock.AfterFunc(timeout, func() { onTimeout(seq) })
	}
	s.pending[seq] = op
	return seq
}

// Elapsed returns how long the live request seq has been outstanding at now,
// or false if seq is not live.
func (s *OperationSlot[T]) Elapsed(seq uint64, now time.Time) (time.Duration, bool) {
	op, ok := s.pending[seq]
	if !ok {
		return 0, false
	}
	return now.Sub(op.issuedAt), true
}

// resolve completes a live request. Returns false for stale sequences.
func (s *OperationSlot[T]) resolve(seq uint64, v T, err error) bool {
	op, ok := s.pending[seq]
	if !ok {
		return false
	}
	delete(s.pending, seq)
	stopTimer(&op.timer)
	op.complete(v, err)
	return true
}

// expire fails a live request with ErrTimeout.
func (s *OperationSlot[T]) expire(seq uint64) bool {
	var zero T
	return s.resolve(seq, zero, device.ErrTimeout)
}

// cancelAll fails every live request with err, oldest first.
func (s *OperationSlot[T]) cancelAll(err error) int {
	if len(s.pending) == 0 {
		return 0
	}
	seqs := make([]uint64, 0, len(s.pending))
	for seq := range s.pending {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	var zero T
	for _, seq := range seqs {
		s.resolve(seq, zero, err)
	}
	return len(seqs)
}
