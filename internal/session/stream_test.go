package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFutureResolvesOnce(t *testing.T) {
	f := newFuture[int]()
	_, _, ok := f.Result()
	require.False(t, ok)

	var wg sync.WaitGroup
	wins := make(chan int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			if f.complete(v, nil) {
				wins <- v
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	require.Len(t, wins, 1, "exactly one completion MUST win")
	winner := <-wins
	v, err, ok := f.Result()
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, winner, v)
}

func TestFutureAwait(t *testing.T) {
	f := newFuture[string]()
	go func() {
		time.Sleep(10 * time.Millisecond)
		f.complete("done", nil)
	}()

	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", v)

	cause := errors.New("boom")
	failed := failedFuture[string](cause)
	_, err = failed.Await(context.Background())
	assert.ErrorIs(t, err, cause)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newFuture[string]().Await(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamOverwritesOldest(t *testing.T) {
	s := newStream[int](3)
	for i := 1; i <= 5; i++ {
		s.send(i)
	}

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 3, s.Cap())
	m := s.Metrics()
	assert.Equal(t, int64(5), m.Written)
	assert.Equal(t, int64(2), m.Overwritten)

	var got []int
	for {
		v, ok := s.TryReceive()
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []int{3, 4, 5}, got, "MUST keep the newest values in order")
	assert.Equal(t, int64(3), s.Metrics().Processed)
}

func TestStreamFinish(t *testing.T) {
	s := newStream[int](2)
	s.send(1)
	s.finish()
	s.finish()
	assert.False(t, s.send(2), "send after finish MUST be ignored")

	v, ok := s.Receive()
	assert.True(t, ok, "buffered values MUST survive finish")
	assert.Equal(t, 1, v)
	_, ok = s.Receive()
	assert.False(t, ok)
}

func TestHub(t *testing.T) {
	e := newTestExecutor(t)
	h := newHub[int](e, 4)

	a := h.subscribe()
	b := h.subscribe()
	e.call(func() { h.broadcast(1) })

	va, _ := a.TryReceive()
	vb, _ := b.TryReceive()
	assert.Equal(t, 1, va)
	assert.Equal(t, 1, vb)

	a.Close()
	e.call(func() { h.broadcast(2) })
	_, open := <-a.C()
	assert.False(t, open, "closed subscriber MUST be removed")
	vb, _ = b.TryReceive()
	assert.Equal(t, 2, vb)

	e.call(h.retire)
	_, open = <-b.C()
	assert.False(t, open)

	late := h.subscribe()
	e.call(func() {})
	_, open = <-late.C()
	assert.False(t, open, "subscriptions to a retired hub MUST end immediately")
}
