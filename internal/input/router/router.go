// internal/input/router/router.go
package router

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/inputpipe/api/schemas"
	"github.com/xkilldash9x/inputpipe/internal/input/clock"
	"github.com/xkilldash9x/inputpipe/internal/input/gesture"
	"github.com/xkilldash9x/inputpipe/internal/input/touch"
)

var (
	// ErrUnexpectedAck is returned for an ack with nothing of its kind in flight.
	ErrUnexpectedAck = errors.New("unexpected input ack")
	// ErrAckMismatch is returned for an ack whose type differs from the event it would resolve.
	ErrAckMismatch = errors.New("input ack does not match the event in flight")
	// ErrUnknownEventType is returned for an ack carrying a type the router does not route.
	ErrUnknownEventType = errors.New("unknown input event type")
)

// Renderer is the downstream consumer. Every call is fire and forget; acks
// come back through Router.OnInputEventAck and friends.
type Renderer interface {
	SendGestureEvent(ev schemas.GestureEvent)
	SendTouchEvent(ev schemas.TouchEvent)
	SendMouseEvent(ev schemas.MouseEvent)
	SendWheelEvent(ev schemas.WheelEvent)
	SendKeyboardEvent(ev schemas.KeyboardEvent)
	// SendEditCommands binds commands to the keyboard event sent next.
	SendEditCommands(commands []schemas.EditCommand)
	SendMoveCaret(p schemas.Point)
	SendSelectRange(r schemas.SelectRange)
}

// AckObserver is told how every event was resolved.
type AckObserver interface {
	OnGestureEventAck(ev schemas.GestureEvent, state schemas.AckState)
	OnTouchEventAck(ev schemas.TouchEvent, state schemas.AckState)
	OnMouseEventAck(ev schemas.MouseEvent, state schemas.AckState)
	OnWheelEventAck(ev schemas.WheelEvent, state schemas.AckState)
	OnKeyboardEventAck(ev schemas.KeyboardEvent, state schemas.AckState)
}

// Router sends input to the renderer category by category, keeping each
// category in FIFO order relative to its acks. It must only be used from the
// goroutine that owns the pipeline.
type Router struct {
	cfg      Config
	renderer Renderer
	observer AckObserver
	logger   *zap.Logger
	warn     rate.Sometimes

	gestures *gesture.Filter
	touches  *touch.Queue

	hasTouchHandlers bool

	// Index 0 of each slice is in flight when the slice is not empty.
	mouseMoves []schemas.MouseEvent
	wheels     []schemas.WheelEvent
	// mouseButtons and keys are all in flight; acks match them positionally.
	mouseButtons []schemas.MouseEvent
	keys         []schemas.KeyboardEvent

	caretInFlight  bool
	nextCaret      *schemas.Point
	selectInFlight bool
	nextSelect     *schemas.SelectRange
}

// New wires a router and its queues. clk drives the debounce, tap suppression
// and ack timeout timers.
func New(cfg Config, renderer Renderer, observer AckObserver, clk clock.Clock, logger *zap.Logger) *Router {
	r := &Router{
		cfg:              cfg,
		renderer:         renderer,
		observer:         observer,
		logger:           logger.Named("input_router"),
		warn:             rate.Sometimes{First: 5, Interval: 10 * time.Second},
		hasTouchHandlers: cfg.HasTouchHandlers,
	}
	r.gestures = gesture.New(cfg.Gesture, gestureClient{r}, mouseForwarder{r}, clk, logger)
	r.touches = touch.New(cfg.Touch, touchClient{r}, clk, logger)
	return r
}

// SendGestureEvent filters ev and sends it when nothing is ahead of it.
func (r *Router) SendGestureEvent(ev schemas.GestureEvent) {
	if r.cfg.TouchCancelOnScroll && ev.SourceDevice == schemas.SourceTouchscreen {
		r.touches.OnGestureScrollEvent(ev)
	}
	if r.gestures.ShouldForward(ev) {
		r.sendGestureImmediately(ev)
	}
}

// SendTouchEvent queues ev, or resolves it at once when the page has no
// touch handlers.
func (r *Router) SendTouchEvent(ev schemas.TouchEvent) {
	if !r.hasTouchHandlers {
		r.observer.OnTouchEventAck(ev, schemas.AckNoConsumerExists)
		return
	}
	r.touches.QueueEvent(ev)
}

// SendMouseEvent sends a move, press or release. Moves coalesce while one is
// in flight; presses and releases pass touchpad tap suppression first.
func (r *Router) SendMouseEvent(ev schemas.MouseEvent) {
	switch ev.Type {
	case schemas.MouseMove:
		if n := len(r.mouseMoves); n > 1 && r.mouseMoves[n-1].CanCoalesceWith(ev) {
			r.mouseMoves[n-1].CoalesceWith(ev)
			return
		}
		r.mouseMoves = append(r.mouseMoves, ev)
		if len(r.mouseMoves) == 1 {
			r.renderer.SendMouseEvent(ev)
		}
	case schemas.MousePress:
		if r.gestures.TouchpadTapSuppression().ShouldDeferMouseDown(ev) {
			return
		}
		r.sendMouseButtonImmediately(ev)
	case schemas.MouseRelease:
		if r.gestures.TouchpadTapSuppression().ShouldSuppressMouseUp() {
			return
		}
		r.sendMouseButtonImmediately(ev)
	default:
		r.logger.Warn("Dropping mouse event of unknown type.", zap.String("type", string(ev.Type)))
	}
}

// SendWheelEvent sends ev, or coalesces it with the pending wheel events
// while one is in flight.
func (r *Router) SendWheelEvent(ev schemas.WheelEvent) {
	if n := len(r.wheels); n > 1 && r.wheels[n-1].CanCoalesceWith(ev) {
		r.wheels[n-1].CoalesceWith(ev)
		return
	}
	r.wheels = append(r.wheels, ev)
	if len(r.wheels) == 1 {
		r.renderer.SendWheelEvent(ev)
	}
}

// SendKeyboardEvent sends ev right away, preceded by its edit commands.
func (r *Router) SendKeyboardEvent(ev schemas.KeyboardEvent, commands []schemas.EditCommand) {
	r.keys = append(r.keys, ev)
	if len(commands) > 0 {
		r.renderer.SendEditCommands(commands)
	}
	r.renderer.SendKeyboardEvent(ev)
}

// SendMoveCaret sends p, or replaces the pending caret move while one is in flight.
func (r *Router) SendMoveCaret(p schemas.Point) {
	if r.caretInFlight {
		r.nextCaret = &p
		return
	}
	r.caretInFlight = true
	r.renderer.SendMoveCaret(p)
}

// SendSelectRange sends sel, or replaces the pending selection while one is in flight.
func (r *Router) SendSelectRange(sel schemas.SelectRange) {
	if r.selectInFlight {
		r.nextSelect = &sel
		return
	}
	r.selectInFlight = true
	r.renderer.SendSelectRange(sel)
}

// OnInputEventAck routes a renderer ack to the tracker for its category. A
// protocol violation is logged, returned and otherwise ignored.
func (r *Router) OnInputEventAck(ack schemas.InputEventAck) error {
	var err error
	switch ack.Type.Category() {
	case schemas.CategoryGesture:
		err = r.processGestureAck(ack)
	case schemas.CategoryTouch:
		err = r.processTouchAck(ack)
	case schemas.CategoryMouse:
		err = r.processMouseAck(ack)
	case schemas.CategoryWheel:
		err = r.processWheelAck(ack)
	case schemas.CategoryKeyboard:
		err = r.processKeyboardAck(ack)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownEventType, ack.Type)
	}
	if err != nil {
		r.warn.Do(func() {
			r.logger.Warn("Dropping input ack.",
				zap.String("type", string(ack.Type)),
				zap.String("state", string(ack.State)),
				zap.Error(err))
		})
	}
	return err
}

// OnMoveCaretAck releases the caret slot and sends the pending move, if any.
func (r *Router) OnMoveCaretAck() error {
	if !r.caretInFlight {
		return fmt.Errorf("%w: move caret", ErrUnexpectedAck)
	}
	r.caretInFlight = false
	if next := r.nextCaret; next != nil {
		r.nextCaret = nil
		r.SendMoveCaret(*next)
	}
	return nil
}

// OnSelectRangeAck releases the selection slot and sends the pending request, if any.
func (r *Router) OnSelectRangeAck() error {
	if !r.selectInFlight {
		return fmt.Errorf("%w: select range", ErrUnexpectedAck)
	}
	r.selectInFlight = false
	if next := r.nextSelect; next != nil {
		r.nextSelect = nil
		r.SendSelectRange(*next)
	}
	return nil
}

// FlingHasBeenHalted tells the gesture filter the renderer stopped a fling on its own.
func (r *Router) FlingHasBeenHalted() { r.gestures.FlingHasBeenHalted() }

// OnHasTouchEventHandlers records whether the page listens for touches.
// Losing the last handler flushes the touch queue.
func (r *Router) OnHasTouchEventHandlers(has bool) {
	if r.hasTouchHandlers == has {
		return
	}
	r.hasTouchHandlers = has
	if !has {
		r.touches.FlushQueue()
	}
}

// SetTouchAckTimeoutEnabled toggles the touch ack timeout at runtime.
func (r *Router) SetTouchAckTimeoutEnabled(enabled bool) { r.touches.SetAckTimeoutEnabled(enabled) }

// Idle reports whether no event of any category is queued or awaiting an ack.
func (r *Router) Idle() bool {
	return r.gestures.Len() == 0 && len(r.gestures.DeferredEvents()) == 0 &&
		r.touches.Empty() &&
		len(r.mouseMoves) == 0 && len(r.mouseButtons) == 0 &&
		len(r.wheels) == 0 && len(r.keys) == 0 &&
		!r.caretInFlight && !r.selectInFlight
}

// Gestures exposes the gesture filter for inspection.
func (r *Router) Gestures() *gesture.Filter { return r.gestures }

// Touches exposes the touch queue for inspection.
func (r *Router) Touches() *touch.Queue { return r.touches }

func (r *Router) sendGestureImmediately(ev schemas.GestureEvent) {
	r.renderer.SendGestureEvent(ev)
	if !schemas.IgnoresAckDisposition(ev.Type) {
		return
	}
	// The renderer never acks these; resolve the slot so the queue moves on.
	if err := r.gestures.ProcessGestureAck(schemas.AckNotConsumed, ev.Type, schemas.LatencyInfo{}); err != nil {
		r.logger.Error("Synthetic gesture ack rejected.", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}

func (r *Router) sendMouseButtonImmediately(ev schemas.MouseEvent) {
	r.mouseButtons = append(r.mouseButtons, ev)
	r.renderer.SendMouseEvent(ev)
}

func (r *Router) processGestureAck(ack schemas.InputEventAck) error {
	if schemas.IgnoresAckDisposition(ack.Type) {
		r.logger.Debug("Ignoring renderer ack for a kind resolved on send.", zap.String("type", string(ack.Type)))
		return nil
	}
	err := r.gestures.ProcessGestureAck(ack.State, ack.Type, ack.Latency)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gesture.ErrUnexpectedAck):
		return fmt.Errorf("%w: %w", ErrUnexpectedAck, err)
	case errors.Is(err, gesture.ErrAckMismatch):
		return fmt.Errorf("%w: %w", ErrAckMismatch, err)
	default:
		return err
	}
}

func (r *Router) processTouchAck(ack schemas.InputEventAck) error {
	expected, ok := r.touches.ExpectedAckType()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnexpectedAck, ack.Type)
	}
	if expected != ack.Type {
		return fmt.Errorf("%w: got %s, expected %s", ErrAckMismatch, ack.Type, expected)
	}
	return r.touches.ProcessTouchAck(ack.State, ack.Latency)
}

func (r *Router) processMouseAck(ack schemas.InputEventAck) error {
	if ack.Type == schemas.MouseMove {
		if len(r.mouseMoves) == 0 {
			return fmt.Errorf("%w: %s", ErrUnexpectedAck, ack.Type)
		}
		ev := r.mouseMoves[0]
		r.mouseMoves = r.mouseMoves[1:]
		ev.Latency.AddNewLatencyFrom(ack.Latency)
		r.observer.OnMouseEventAck(ev, ack.State)
		if len(r.mouseMoves) > 0 {
			r.renderer.SendMouseEvent(r.mouseMoves[0])
		}
		return nil
	}

	if len(r.mouseButtons) == 0 {
		return fmt.Errorf("%w: %s", ErrUnexpectedAck, ack.Type)
	}
	if r.mouseButtons[0].Type != ack.Type {
		return fmt.Errorf("%w: got %s, expected %s", ErrAckMismatch, ack.Type, r.mouseButtons[0].Type)
	}
	ev := r.mouseButtons[0]
	r.mouseButtons = r.mouseButtons[1:]
	ev.Latency.AddNewLatencyFrom(ack.Latency)
	r.observer.OnMouseEventAck(ev, ack.State)
	return nil
}

func (r *Router) processWheelAck(ack schemas.InputEventAck) error {
	if len(r.wheels) == 0 {
		return fmt.Errorf("%w: %s", ErrUnexpectedAck, ack.Type)
	}
	ev := r.wheels[0]
	r.wheels = r.wheels[1:]
	ev.Latency.AddNewLatencyFrom(ack.Latency)
	r.observer.OnWheelEventAck(ev, ack.State)
	if len(r.wheels) > 0 {
		r.renderer.SendWheelEvent(r.wheels[0])
	}
	return nil
}

func (r *Router) processKeyboardAck(ack schemas.InputEventAck) error {
	if len(r.keys) == 0 {
		return fmt.Errorf("%w: %s", ErrUnexpectedAck, ack.Type)
	}
	if r.keys[0].Type != ack.Type {
		return fmt.Errorf("%w: got %s, expected %s", ErrAckMismatch, ack.Type, r.keys[0].Type)
	}
	ev := r.keys[0]
	r.keys = r.keys[1:]
	ev.Latency.AddNewLatencyFrom(ack.Latency)
	r.observer.OnKeyboardEventAck(ev, ack.State)
	return nil
}

// gestureClient adapts the router to gesture.Client.
type gestureClient struct{ r *Router }

func (c gestureClient) SendGestureEventImmediately(ev schemas.GestureEvent) {
	c.r.sendGestureImmediately(ev)
}

func (c gestureClient) OnGestureEventAck(ev schemas.GestureEvent, state schemas.AckState) {
	c.r.observer.OnGestureEventAck(ev, state)
}

// touchClient adapts the router to touch.Client.
type touchClient struct{ r *Router }

func (c touchClient) SendTouchEventImmediately(ev schemas.TouchEvent) {
	c.r.renderer.SendTouchEvent(ev)
}

func (c touchClient) OnTouchEventAck(ev schemas.TouchEvent, state schemas.AckState) {
	c.r.observer.OnTouchEventAck(ev, state)
}

// mouseForwarder receives mouse downs released by touchpad tap suppression.
type mouseForwarder struct{ r *Router }

func (m mouseForwarder) SendMouseEventImmediately(ev schemas.MouseEvent) {
	m.r.sendMouseButtonImmediately(ev)
}
