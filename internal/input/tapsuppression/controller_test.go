package tapsuppression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/inputpipe/api/schemas"
	"github.com/xkilldash9x/inputpipe/internal/input/clock"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newTouchscreenForTest(t *testing.T) (*Touchscreen, *recordingForwarder, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(epoch)
	fwd := &recordingForwarder{}
	return NewTouchscreen(DefaultConfig(), fwd, clk, zaptest.NewLogger(t)), fwd, clk
}

func gesture(typ schemas.EventType) schemas.GestureEvent {
	return schemas.GestureEvent{Type: typ, SourceDevice: schemas.SourceTouchscreen}
}

func TestTouchscreenSuppression(t *testing.T) {
	t.Run("tap after a fling-stopping cancel is suppressed", func(t *testing.T) {
		ts, fwd, _ := newTouchscreenForTest(t)
		ts.GestureFlingCancel()
		ts.GestureFlingCancelAck(true)
		require.Equal(t, StateLastCancelStoppedFling, ts.State())

		assert.True(t, ts.ShouldDeferGestureTapDown(gesture(schemas.GestureTapDown)))
		assert.True(t, ts.ShouldDeferGestureShowPress(gesture(schemas.GestureShowPress)))
		assert.True(t, ts.ShouldSuppressGestureTapEnd())
		assert.Equal(t, StateNothing, ts.State())
		assert.Empty(t, fwd.gestures, "the stashed tap down is dropped")
	})

	t.Run("tap down arriving while the cancel is in flight waits for the ack", func(t *testing.T) {
		ts, fwd, _ := newTouchscreenForTest(t)
		ts.GestureFlingCancel()
		require.True(t, ts.ShouldDeferGestureTapDown(gesture(schemas.GestureTapDown)))
		require.Equal(t, StateTapDownStashed, ts.State())

		// The cancel did not stop anything, so the tap is genuine.
		ts.GestureFlingCancelAck(false)
		assert.Equal(t, []schemas.EventType{schemas.GestureTapDown}, fwd.gestureTypes())
		assert.Equal(t, StateNothing, ts.State())
		assert.False(t, ts.ShouldSuppressGestureTapEnd())
	})

	t.Run("a long press releases the stash when the gap expires", func(t *testing.T) {
		ts, fwd, clk := newTouchscreenForTest(t)
		ts.GestureFlingCancel()
		ts.GestureFlingCancelAck(true)
		require.True(t, ts.ShouldDeferGestureTapDown(gesture(schemas.GestureTapDown)))
		require.True(t, ts.ShouldDeferGestureShowPress(gesture(schemas.GestureShowPress)))

		clk.Advance(199 * time.Millisecond)
		assert.Empty(t, fwd.gestures)
		clk.Advance(time.Millisecond)
		assert.Equal(t, []schemas.EventType{schemas.GestureTapDown, schemas.GestureShowPress}, fwd.gestureTypes())
		assert.Equal(t, StateNothing, ts.State())
	})

	t.Run("tap down outside the window is forwarded", func(t *testing.T) {
		ts, _, clk := newTouchscreenForTest(t)
		ts.GestureFlingCancel()
		ts.GestureFlingCancelAck(true)
		clk.Advance(400 * time.Millisecond)
		assert.False(t, ts.ShouldDeferGestureTapDown(gesture(schemas.GestureTapDown)))
		assert.Equal(t, StateNothing, ts.State())
	})

	t.Run("an unprocessed cancel closes the window", func(t *testing.T) {
		ts, _, _ := newTouchscreenForTest(t)
		ts.GestureFlingCancel()
		ts.GestureFlingCancelAck(false)
		assert.Equal(t, StateNothing, ts.State())
		assert.False(t, ts.ShouldDeferGestureTapDown(gesture(schemas.GestureTapDown)))
	})

	t.Run("impossible sequences are no-ops", func(t *testing.T) {
		ts, fwd, clk := newTouchscreenForTest(t)
		assert.NotPanics(t, func() {
			ts.GestureFlingCancelAck(true)
			ts.GestureFlingCancelAck(false)
			assert.False(t, ts.ShouldSuppressGestureTapEnd())
			assert.False(t, ts.ShouldDeferGestureShowPress(gesture(schemas.GestureShowPress)))
			clk.Advance(time.Second)
		})
		assert.Equal(t, StateNothing, ts.State())
		assert.Empty(t, fwd.gestures)
	})

	t.Run("disabled controller never defers", func(t *testing.T) {
		fwd := &recordingForwarder{}
		ts := NewTouchscreen(Config{}, fwd, clock.NewManual(epoch), zaptest.NewLogger(t))
		ts.GestureFlingCancel()
		ts.GestureFlingCancelAck(true)
		assert.False(t, ts.ShouldDeferGestureTapDown(gesture(schemas.GestureTapDown)))
		assert.False(t, ts.ShouldSuppressGestureTapEnd())
	})
}

func TestTouchpadSuppression(t *testing.T) {
	clk := clock.NewManual(epoch)
	fwd := &recordingForwarder{}
	tp := NewTouchpad(DefaultConfig(), fwd, clk, zaptest.NewLogger(t))

	down := schemas.MouseEvent{Type: schemas.MousePress, Button: schemas.ButtonLeft, X: 4, Y: 2}

	t.Run("click that stops a fling is swallowed", func(t *testing.T) {
		tp.GestureFlingCancel()
		tp.GestureFlingCancelAck(true)
		assert.True(t, tp.ShouldDeferMouseDown(down))
		assert.True(t, tp.ShouldSuppressMouseUp())
		assert.Empty(t, fwd.mice)
	})

	t.Run("held button is released after the gap", func(t *testing.T) {
		tp.GestureFlingCancel()
		tp.GestureFlingCancelAck(true)
		require.True(t, tp.ShouldDeferMouseDown(down))
		clk.Advance(200 * time.Millisecond)
		require.Len(t, fwd.mice, 1)
		assert.Equal(t, down, fwd.mice[0])
		assert.False(t, tp.ShouldSuppressMouseUp())
	})
}
