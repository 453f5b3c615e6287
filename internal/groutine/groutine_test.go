package groutine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoNamesGoroutineAndSignalsDone(t *testing.T) {
	names := make(chan string, 1)
	done := Go(nil, "worker-42", func(ctx context.Context) {
		names <- GetName(ctx)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		require.FailNow(t, "done channel MUST close after fn returns")
	}
	assert.Equal(t, "worker-42", <-names, "context MUST carry the goroutine name")
}

func TestGoPropagatesParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	done := Go(parent, "waiter", func(ctx context.Context) {
		<-ctx.Done()
	})

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		require.FailNow(t, "goroutine MUST observe parent cancellation")
	}
}

func TestGetNameWithoutName(t *testing.T) {
	assert.Empty(t, GetName(context.Background()))
	//nolint:staticcheck // nil context is handled explicitly
	assert.Empty(t, GetName(nil))
}
