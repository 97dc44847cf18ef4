package loop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/inputpipe/internal/input/clock"
)

// startLoop runs a loop; the returned stop must run before goleak checks.
func startLoop(t *testing.T) (*Loop, func()) {
	t.Helper()
	l := New(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()
	return l, func() {
		cancel()
		require.NoError(t, <-errCh)
	}
}

func TestLoopRunsTasksInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)
	l, stop := startLoop(t)
	defer stop()

	var got []int
	for i := 0; i < 100; i++ {
		require.True(t, l.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, l.Do(context.Background(), func() {}))

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoopPostFromTask(t *testing.T) {
	defer goleak.VerifyNone(t)
	l, stop := startLoop(t)
	defer stop()

	var order []string
	done := make(chan struct{})
	l.Post(func() {
		order = append(order, "outer")
		l.Post(func() {
			order = append(order, "inner")
			close(done)
		})
	})
	<-done
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestLoopTimersFireOnLoop(t *testing.T) {
	defer goleak.VerifyNone(t)
	l, stop := startLoop(t)
	defer stop()

	// state is only touched on the loop; the race detector flags any timer
	// callback that runs elsewhere.
	state := 0
	fired := make(chan struct{})
	require.NoError(t, l.Do(context.Background(), func() {
		state = 1
		clock.NewOneShot(l, 5*time.Millisecond, func() {
			state++
			close(fired)
		}).Start()
	}))

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
	var got int
	require.NoError(t, l.Do(context.Background(), func() { got = state }))
	assert.Equal(t, 2, got)
}

func TestLoopStoppedTimerDoesNotFire(t *testing.T) {
	defer goleak.VerifyNone(t)
	l, stop := startLoop(t)
	defer stop()

	var fired atomic.Bool
	var timer *clock.OneShot
	require.NoError(t, l.Do(context.Background(), func() {
		timer = clock.NewOneShot(l, 20*time.Millisecond, func() { fired.Store(true) })
		timer.Start()
		timer.Stop()
	}))
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, l.Do(context.Background(), func() {}))
	assert.False(t, fired.Load())
}

func TestLoopRecoversFromPanics(t *testing.T) {
	defer goleak.VerifyNone(t)
	l, stop := startLoop(t)
	defer stop()

	l.Post(func() { panic("boom") })
	ran := false
	require.NoError(t, l.Do(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestLoopAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t)
	l := New(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	cancel()
	require.NoError(t, <-errCh)
	<-l.Done()

	assert.False(t, l.Post(func() {}))
	assert.ErrorIs(t, l.Do(context.Background(), func() {}), ErrClosed)
}

func TestLoopDoHonoursContext(t *testing.T) {
	defer goleak.VerifyNone(t)
	l := New(zaptest.NewLogger(t))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	// Not running, so the task never completes.
	assert.ErrorIs(t, l.Do(ctx, func() {}), context.DeadlineExceeded)
}
