package session

import (
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/srg/gattsession/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock fires timers synchronously from advance.
type stepClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*stepTimer
}

type stepTimer struct {
	c        *stepClock
	deadline time.Time
	fn       func()
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Unix(0, 0)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &stepTimer{c: c, deadline: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (c *stepClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	sort.SliceStable(c.timers, func(i, j int) bool { return c.timers[i].deadline.Before(c.timers[j].deadline) })
	var due []*stepTimer
	for len(c.timers) > 0 && !c.timers[0].deadline.After(c.now) {
		due = append(due, c.timers[0])
		c.timers = c.timers[1:]
	}
	c.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

func (c *stepClock) armed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (t *stepTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	for i, other := range t.c.timers {
		if other == t {
			t.c.timers = append(t.c.timers[:i], t.c.timers[i+1:]...)
			return true
		}
	}
	return false
}

type outcome struct {
	value int
	err   error
	calls int
}

func (o *outcome) complete(v int, err error) {
	o.value, o.err = v, err
	o.calls++
}

func TestOperationSlotResolve(t *testing.T) {
	clock := newStepClock()
	slot := newOperationSlot[int](OpRead)
	var expired []uint64
	onTimeout := func(seq uint64) { expired = append(expired, seq) }

	var o outcome
	seq := slot.begin(clock, time.Second, o.complete, onTimeout)
	require.Equal(t, uint64(1), seq)
	require.Equal(t, 1, slot.Pending())
	require.Equal(t, 1, clock.armed())

	assert.True(t, slot.resolve(seq, 7, nil))
	assert.Equal(t, outcome{value: 7, calls: 1}, o)
	assert.Equal(t, 0, slot.Pending())
	assert.Equal(t, 0, clock.armed(), "resolve MUST stop the timer")

	assert.False(t, slot.resolve(seq, 8, nil), "second completion MUST be rejected")
	assert.False(t, slot.expire(seq))
	assert.Equal(t, 1, o.calls)

	clock.advance(time.Hour)
	assert.Empty(t, expired)
}

func TestOperationSlotExpiry(t *testing.T) {
	clock := newStepClock()
	slot := newOperationSlot[int](OpWrite)

	var o outcome
	seq := slot.begin(clock, time.Second, o.complete, func(s uint64) { slot.expire(s) })

	clock.advance(999 * time.Millisecond)
	assert.Equal(t, 0, o.calls)

	clock.advance(time.Millisecond)
	assert.Equal(t, 1, o.calls)
	assert.ErrorIs(t, o.err, device.ErrTimeout)

	assert.False(t, slot.resolve(seq, 1, nil), "late completion MUST be stale")
	assert.Equal(t, 1, o.calls)
}

func TestOperationSlotElapsed(t *testing.T) {
	clock := newStepClock()
	slot := newOperationSlot[int](OpRead)

	var o outcome
	first := slot.begin(clock, -1, o.complete, nil)
	clock.advance(300 * time.Millisecond)
	second := slot.begin(clock, -1, o.complete, nil)
	clock.advance(200 * time.Millisecond)

	d, ok := slot.Elapsed(first, clock.Now())
	require.True(t, ok)
	assert.Equal(t, 500*time.Millisecond, d, "latency MUST be measured from issue time")

	d, ok = slot.Elapsed(second, clock.Now())
	require.True(t, ok)
	assert.Equal(t, 200*time.Millisecond, d)

	require.True(t, slot.resolve(first, 1, nil))
	_, ok = slot.Elapsed(first, clock.Now())
	assert.False(t, ok, "resolved requests MUST NOT report latency")
}

func TestOperationSlotPipelining(t *testing.T) {
	clock := newStepClock()
	slot := newOperationSlot[int](OpRead)
	noop := func(uint64) {}

	outcomes := make([]outcome, 3)
	seqs := make([]uint64, 3)
	for i := range outcomes {
		seqs[i] = slot.begin(clock, 0, outcomes[i].complete, noop)
	}
	assert.Equal(t, []uint64{1, 2, 3}, seqs)
	assert.Equal(t, uint64(3), slot.Sequence())
	assert.Equal(t, 0, clock.armed(), "zero timeout MUST NOT arm a timer")

	assert.True(t, slot.resolve(seqs[1], 20, nil))
	assert.Equal(t, 20, outcomes[1].value)
	assert.Equal(t, 0, outcomes[0].calls, "other requests MUST stay pending")

	cause := errors.New("link gone")
	assert.Equal(t, 2, slot.cancelAll(cause))
	assert.ErrorIs(t, outcomes[0].err, cause)
	assert.ErrorIs(t, outcomes[2].err, cause)
	assert.Equal(t, 0, slot.cancelAll(cause))

	for i := range outcomes {
		assert.Equal(t, 1, outcomes[i].calls, "request %d MUST resolve exactly once", i)
	}
}

func TestOperationSlotCancelOrder(t *testing.T) {
	clock := newStepClock()
	slot := newOperationSlot[int](OpNotify)

	var order []uint64
	for i := 0; i < 5; i++ {
		var seq uint64
		seq = slot.begin(clock, time.Second, func(int, error) { order = append(order, seq) }, func(uint64) {})
	}
	slot.cancelAll(device.ErrDisconnected)

	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, order, "cancelAll MUST fail requests oldest first")
	assert.Equal(t, 0, clock.armed())
}

func TestLimit(t *testing.T) {
	assert.True(t, Unlimited().allows(1_000_000))
	assert.False(t, MaxRetries(0).allows(0))
	assert.True(t, MaxRetries(2).allows(1))
	assert.False(t, MaxRetries(2).allows(2))
	assert.Equal(t, "unlimited", Unlimited().String())
	assert.Equal(t, "3", MaxRetries(3).String())
}
