// internal/input/tapsuppression/variants.go
package tapsuppression

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/inputpipe/api/schemas"
	"github.com/xkilldash9x/inputpipe/internal/input/clock"
)

// GestureForwarder re-injects a released gesture into the gesture filter's
// coalescing pass.
type GestureForwarder interface {
	ForwardGestureEvent(ev schemas.GestureEvent)
}

// MouseForwarder sends a released mouse event to the renderer.
type MouseForwarder interface {
	SendMouseEventImmediately(ev schemas.MouseEvent)
}

// Touchscreen suppresses the tap that a finger produces when it lands to stop
// a fling. It holds back TapDown and ShowPress and drops the tap end.
type Touchscreen struct {
	*Controller
	forwarder        GestureForwarder
	stashedTapDown   *schemas.GestureEvent
	stashedShowPress *schemas.GestureEvent
}

// NewTouchscreen creates the touchscreen variant.
func NewTouchscreen(cfg Config, forwarder GestureForwarder, clk clock.Clock, logger *zap.Logger) *Touchscreen {
	ts := &Touchscreen{forwarder: forwarder}
	ts.Controller = newController(cfg, ts, clk, logger.Named("touchscreen_tap_suppression"))
	return ts
}

// ShouldDeferGestureTapDown stashes ev and returns true when it must wait.
func (t *Touchscreen) ShouldDeferGestureTapDown(ev schemas.GestureEvent) bool {
	if !t.shouldDeferTapDown() {
		return false
	}
	t.stashedTapDown = &ev
	t.stashedShowPress = nil
	return true
}

// ShouldDeferGestureShowPress holds a show press back while its tap down is stashed.
func (t *Touchscreen) ShouldDeferGestureShowPress(ev schemas.GestureEvent) bool {
	if t.stashedTapDown == nil {
		return false
	}
	t.stashedShowPress = &ev
	return true
}

// ShouldSuppressGestureTapEnd reports whether a Tap, TapUnconfirmed,
// TapCancel or DoubleTap must be dropped.
func (t *Touchscreen) ShouldSuppressGestureTapEnd() bool {
	return t.shouldSuppressTapEnd()
}

func (t *Touchscreen) dropStashedTapDown() {
	t.stashedTapDown = nil
	t.stashedShowPress = nil
}

func (t *Touchscreen) forwardStashedTapDown() {
	tapDown, showPress := t.stashedTapDown, t.stashedShowPress
	t.stashedTapDown, t.stashedShowPress = nil, nil
	if tapDown != nil {
		t.forwarder.ForwardGestureEvent(*tapDown)
	}
	if showPress != nil {
		t.forwarder.ForwardGestureEvent(*showPress)
	}
}

// Touchpad suppresses the click a touchpad tap produces when it stops a
// fling. Gesture events are never touched; only the coincident mouse
// down/up pair is.
type Touchpad struct {
	*Controller
	forwarder        MouseForwarder
	stashedMouseDown *schemas.MouseEvent
}

// NewTouchpad creates the touchpad variant.
func NewTouchpad(cfg Config, forwarder MouseForwarder, clk clock.Clock, logger *zap.Logger) *Touchpad {
	tp := &Touchpad{forwarder: forwarder}
	tp.Controller = newController(cfg, tp, clk, logger.Named("touchpad_tap_suppression"))
	return tp
}

// ShouldDeferMouseDown stashes ev and returns true when it must wait.
func (t *Touchpad) ShouldDeferMouseDown(ev schemas.MouseEvent) bool {
	if !t.shouldDeferTapDown() {
		return false
	}
	t.stashedMouseDown = &ev
	return true
}

// ShouldSuppressMouseUp reports whether a mouse up must be dropped.
func (t *Touchpad) ShouldSuppressMouseUp() bool {
	return t.shouldSuppressTapEnd()
}

func (t *Touchpad) dropStashedTapDown() {
	t.stashedMouseDown = nil
}

func (t *Touchpad) forwardStashedTapDown() {
	if t.stashedMouseDown == nil {
		return
	}
	ev := *t.stashedMouseDown
	t.stashedMouseDown = nil
	t.forwarder.SendMouseEventImmediately(ev)
}
