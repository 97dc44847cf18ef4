// internal/input/gesture/filter.go
package gesture

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/inputpipe/api/schemas"
	"github.com/xkilldash9x/inputpipe/internal/input/clock"
	"github.com/xkilldash9x/inputpipe/internal/input/tapsuppression"
)

var (
	// ErrUnexpectedAck is returned for an ack that arrives while nothing is in flight.
	ErrUnexpectedAck = errors.New("gesture ack with no event in flight")
	// ErrAckMismatch is returned for an ack whose type differs from the event in flight.
	ErrAckMismatch = errors.New("gesture ack does not match the event in flight")
)

// Client receives the filter's output. Both calls happen on the pipeline
// goroutine and must not block.
type Client interface {
	SendGestureEventImmediately(ev schemas.GestureEvent)
	OnGestureEventAck(ev schemas.GestureEvent, state schemas.AckState)
}

// Config tunes the filter.
type Config struct {
	DebounceEnabled  bool
	DebounceInterval time.Duration
	Touchscreen      tapsuppression.Config
	Touchpad         tapsuppression.Config
}

// DefaultConfig returns the stock settings: a 30ms debounce window and tap
// suppression enabled for both device classes.
func DefaultConfig() Config {
	return Config{
		DebounceEnabled:  true,
		DebounceInterval: 30 * time.Millisecond,
		Touchscreen:      tapsuppression.DefaultConfig(),
		Touchpad:         tapsuppression.DefaultConfig(),
	}
}

// Mode is the filter's scroll mode. Fling state is tracked separately so a
// scroll that starts during a fling does not hide it from cancellation.
type Mode int

const (
	// ModeIdle means no scroll is active.
	ModeIdle Mode = iota
	// ModeScrolling means a scroll is active and nothing is being deferred.
	ModeScrolling
	// ModeScrollDebouncing means a scroll update arrived recently; other
	// kinds are deferred until the debounce window closes.
	ModeScrollDebouncing
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeScrolling:
		return "scrolling"
	case ModeScrollDebouncing:
		return "scroll_debouncing"
	default:
		return "invalid"
	}
}

// Filter admits gesture events to a queue, keeps one event (or one
// scroll/pinch pair) in flight and coalesces scroll and pinch updates that
// are waiting behind it. It is not safe for concurrent use.
type Filter struct {
	cfg    Config
	client Client
	logger *zap.Logger

	// queue[0] is in flight; queue[1] is in flight too while pairedAcks > 0.
	queue      []schemas.GestureEvent
	deferred   []schemas.GestureEvent
	mode       Mode
	pairedAcks int
	// flingActive is set by an admitted fling start and cleared only by a
	// fling cancel or a halted fling.
	flingActive bool

	// acc is the net transform of the trailing scroll/pinch pair. It is only
	// meaningful while accValid is set.
	acc      Transform
	accValid bool

	debounceTimer *clock.OneShot
	touchscreen   *tapsuppression.Touchscreen
	touchpad      *tapsuppression.Touchpad
}

// New creates a filter. mouse receives mouse downs released by touchpad tap
// suppression.
func New(cfg Config, client Client, mouse tapsuppression.MouseForwarder, clk clock.Clock, logger *zap.Logger) *Filter {
	log := logger.Named("gesture_filter")
	f := &Filter{
		cfg:    cfg,
		client: client,
		logger: log,
		acc:    Identity(),
	}
	f.debounceTimer = clock.NewOneShot(clk, cfg.DebounceInterval, f.sendScrollEndingEventsNow)
	f.touchscreen = tapsuppression.NewTouchscreen(cfg.Touchscreen, f, clk, log)
	f.touchpad = tapsuppression.NewTouchpad(cfg.Touchpad, mouse, clk, log)
	return f
}

// ShouldForward runs ev through the filter chain and reports whether the
// caller must send it to the renderer right away.
func (f *Filter) ShouldForward(ev schemas.GestureEvent) bool {
	if isZeroVelocityTouchpadFling(ev) {
		f.logger.Debug("Dropping zero-velocity touchpad fling.")
		return false
	}
	return f.shouldForwardForBounceReduction(ev) &&
		f.shouldForwardForGFCFiltering(ev) &&
		f.shouldForwardForTapSuppression(ev) &&
		f.shouldForwardForCoalescing(ev)
}

// ForwardGestureEvent admits an event that already passed the earlier
// filters, such as a tap down released by tap suppression.
func (f *Filter) ForwardGestureEvent(ev schemas.GestureEvent) {
	if f.shouldForwardForCoalescing(ev) {
		f.client.SendGestureEventImmediately(ev)
	}
}

// ProcessGestureAck resolves the event in flight and dispatches whatever is
// next. A protocol violation is returned as an error and leaves the queue
// untouched.
func (f *Filter) ProcessGestureAck(state schemas.AckState, typ schemas.EventType, latency schemas.LatencyInfo) error {
	if len(f.queue) == 0 {
		return fmt.Errorf("%w: %s", ErrUnexpectedAck, typ)
	}
	front := f.queue[0]
	if front.Type != typ && f.pairedAcks > 0 && len(f.queue) > 1 && f.queue[1].Type == typ {
		// The second half of a dispatched pair was acked first.
		second := f.queue[1]
		second.Latency.AddNewLatencyFrom(latency)
		f.client.OnGestureEventAck(second, state)
		f.queue = slices.Delete(f.queue, 1, 2)
		f.acc, f.accValid = Identity(), false
		f.pairedAcks--
		return nil
	}
	if front.Type != typ {
		return fmt.Errorf("%w: got %s, in flight %s", ErrAckMismatch, typ, front.Type)
	}

	// The front stays queued while the client and the suppression controllers
	// react, so anything they enqueue lines up behind it instead of being sent.
	front.Latency.AddNewLatencyFrom(latency)
	f.client.OnGestureEventAck(front, state)
	if typ == schemas.GestureFlingCancel {
		processed := state == schemas.AckConsumed
		if front.SourceDevice == schemas.SourceTouchpad {
			f.touchpad.GestureFlingCancelAck(processed)
		} else {
			f.touchscreen.GestureFlingCancelAck(processed)
		}
	}
	f.popFront()

	if f.pairedAcks > 0 {
		f.pairedAcks--
		return nil
	}
	if len(f.queue) == 0 {
		return nil
	}

	first := f.queue[0]
	if first.Type == schemas.GestureScrollUpdate && len(f.queue) > 1 && f.queue[1].Type == schemas.GesturePinchUpdate {
		second := f.queue[1]
		f.pairedAcks++
		f.client.SendGestureEventImmediately(first)
		f.client.SendGestureEventImmediately(second)
		return nil
	}
	f.client.SendGestureEventImmediately(first)
	return nil
}

// FlingHasBeenHalted tells the filter the renderer stopped a fling on its own.
func (f *Filter) FlingHasBeenHalted() {
	f.flingActive = false
}

// TouchpadTapSuppression exposes the touchpad controller so mouse events can
// be screened against it.
func (f *Filter) TouchpadTapSuppression() *tapsuppression.Touchpad { return f.touchpad }

// Mode returns the current scroll mode.
func (f *Filter) Mode() Mode { return f.mode }

// FlingActive reports whether an admitted fling has not yet been cancelled
// or halted.
func (f *Filter) FlingActive() bool { return f.flingActive }

// Len returns the number of queued events, including those in flight.
func (f *Filter) Len() int { return len(f.queue) }

// InFlight returns the number of queued events already sent to the renderer.
func (f *Filter) InFlight() int {
	if len(f.queue) == 0 {
		return 0
	}
	return 1 + f.pairedAcks
}

// QueuedEvents returns a copy of the queue, front first.
func (f *Filter) QueuedEvents() []schemas.GestureEvent { return slices.Clone(f.queue) }

// DeferredEvents returns a copy of the events held back by debouncing.
func (f *Filter) DeferredEvents() []schemas.GestureEvent { return slices.Clone(f.deferred) }

func isZeroVelocityTouchpadFling(ev schemas.GestureEvent) bool {
	return ev.Type == schemas.GestureFlingStart &&
		ev.SourceDevice == schemas.SourceTouchpad &&
		ev.FlingStart.VelocityX == 0 && ev.FlingStart.VelocityY == 0
}

func (f *Filter) debounceActive() bool {
	return f.cfg.DebounceEnabled && f.cfg.DebounceInterval > 0
}

// shouldForwardForBounceReduction defers everything but scroll and pinch
// updates while a scroll is debouncing.
func (f *Filter) shouldForwardForBounceReduction(ev schemas.GestureEvent) bool {
	if !f.debounceActive() {
		return true
	}
	switch ev.Type {
	case schemas.GestureScrollUpdate:
		f.debounceTimer.Start()
		f.mode = ModeScrollDebouncing
		// A fresh update means the scroll did not really end.
		f.deferred = nil
		return true
	case schemas.GesturePinchBegin, schemas.GesturePinchUpdate, schemas.GesturePinchEnd:
		return true
	default:
		if f.mode == ModeScrollDebouncing {
			f.deferred = append(f.deferred, ev)
			return false
		}
		return true
	}
}

// sendScrollEndingEventsNow closes the debounce window and replays the
// deferred events through the remaining filters in arrival order.
func (f *Filter) sendScrollEndingEventsNow() {
	if f.mode == ModeScrollDebouncing {
		f.mode = ModeScrolling
	}
	deferred := f.deferred
	f.deferred = nil
	for _, ev := range deferred {
		if f.shouldForwardForGFCFiltering(ev) &&
			f.shouldForwardForTapSuppression(ev) &&
			f.shouldForwardForCoalescing(ev) {
			f.client.SendGestureEventImmediately(ev)
		}
	}
}

// shouldForwardForGFCFiltering drops a fling cancel that has no fling to cancel.
func (f *Filter) shouldForwardForGFCFiltering(ev schemas.GestureEvent) bool {
	if ev.Type != schemas.GestureFlingCancel {
		return true
	}
	for i := len(f.queue) - 1; i >= 0; i-- {
		switch f.queue[i].Type {
		case schemas.GestureFlingStart:
			return true
		case schemas.GestureFlingCancel:
			f.logger.Debug("Dropping fling cancel; the queued fling is already cancelled.")
			return false
		}
	}
	if !f.flingActive {
		f.logger.Debug("Dropping fling cancel with no fling in progress.")
		return false
	}
	return true
}

func (f *Filter) shouldForwardForTapSuppression(ev schemas.GestureEvent) bool {
	switch ev.Type {
	case schemas.GestureFlingCancel:
		if ev.SourceDevice == schemas.SourceTouchpad {
			f.touchpad.GestureFlingCancel()
		} else {
			f.touchscreen.GestureFlingCancel()
		}
		return true
	case schemas.GestureTapDown:
		return !f.touchscreen.ShouldDeferGestureTapDown(ev)
	case schemas.GestureShowPress:
		return !f.touchscreen.ShouldDeferGestureShowPress(ev)
	case schemas.GestureTap, schemas.GestureTapUnconfirmed, schemas.GestureTapCancel, schemas.GestureDoubleTap:
		return !f.touchscreen.ShouldSuppressGestureTapEnd()
	default:
		return true
	}
}

// shouldForwardForCoalescing updates the mode, queues ev and reports whether
// it is the only queued event.
func (f *Filter) shouldForwardForCoalescing(ev schemas.GestureEvent) bool {
	switch ev.Type {
	case schemas.GestureFlingCancel:
		f.flingActive = false
	case schemas.GestureFlingStart:
		f.flingActive = true
	case schemas.GestureScrollBegin, schemas.GestureScrollUpdate:
		if f.mode != ModeScrollDebouncing {
			f.mode = ModeScrolling
		}
	case schemas.GestureScrollEnd:
		if f.mode == ModeScrolling {
			f.mode = ModeIdle
		}
	}

	if ev.IsScrollOrPinchUpdate() {
		f.mergeOrInsertScrollAndPinchEvent(ev)
	} else {
		f.enqueue(ev)
	}
	return len(f.queue) == 1
}

func (f *Filter) enqueue(ev schemas.GestureEvent) {
	f.queue = append(f.queue, ev)
	f.acc, f.accValid = Identity(), false
}

func (f *Filter) popFront() {
	f.queue[0] = schemas.GestureEvent{}
	f.queue = f.queue[1:]
}

// shouldTryMerging reports whether ev may be fused with a queued event.
func shouldTryMerging(ev, queued schemas.GestureEvent) bool {
	return queued.IsScrollOrPinchUpdate() &&
		queued.Modifiers == ev.Modifiers &&
		queued.SourceDevice == ev.SourceDevice
}

// mergeOrInsertScrollAndPinchEvent never touches an event in flight. It folds
// ev into a matching pending event, fuses it with a pending scroll/pinch pair,
// or appends it.
func (f *Filter) mergeOrInsertScrollAndPinchEvent(ev schemas.GestureEvent) {
	inFlight := 1 + f.pairedAcks
	if len(f.queue) <= inFlight {
		f.enqueue(ev)
		return
	}

	last := &f.queue[len(f.queue)-1]
	if last.CanCoalesceWith(ev) {
		last.CoalesceWith(ev)
		if f.accValid {
			f.acc = f.acc.Then(TransformForEvent(ev))
		}
		return
	}

	if len(f.queue)-inFlight < 2 || !shouldTryMerging(ev, *last) {
		f.enqueue(ev)
		return
	}
	f.fuseScrollAndPinch(ev)
}

// fuseScrollAndPinch replaces the trailing pending scroll/pinch events with a
// single ScrollUpdate/PinchUpdate pair carrying their combined effect plus ev.
func (f *Filter) fuseScrollAndPinch(ev schemas.GestureEvent) {
	n := len(f.queue)
	last, secondLast := f.queue[n-1], f.queue[n-2]

	var acc Transform
	var contributors []schemas.GestureEvent
	popCount := 1
	if shouldTryMerging(ev, secondLast) {
		if f.accValid {
			acc = f.acc
		} else {
			acc = TransformForEvent(secondLast).Then(TransformForEvent(last))
		}
		contributors = []schemas.GestureEvent{secondLast, last, ev}
		popCount = 2
	} else {
		acc = TransformForEvent(last)
		contributors = []schemas.GestureEvent{last, ev}
	}
	acc = acc.Then(TransformForEvent(ev))

	// last and ev are of different kinds, so exactly one of them is the pinch.
	anchor := Vector2D{X: last.X, Y: last.Y}
	if ev.Type == schemas.GesturePinchUpdate {
		anchor = Vector2D{X: ev.X, Y: ev.Y}
	}
	delta, scale := acc.Decompose(anchor)
	latency := f.oldestLatency(contributors)

	scroll := schemas.GestureEvent{
		Type:         schemas.GestureScrollUpdate,
		SourceDevice: ev.SourceDevice,
		Timestamp:    ev.Timestamp,
		Modifiers:    ev.Modifiers,
		X:            anchor.X,
		Y:            anchor.Y,
		ScrollUpdate: schemas.ScrollUpdateData{DeltaX: delta.X, DeltaY: delta.Y},
		Latency:      latency,
	}
	pinch := scroll
	pinch.Type = schemas.GesturePinchUpdate
	pinch.ScrollUpdate = schemas.ScrollUpdateData{}
	pinch.PinchUpdate = schemas.PinchUpdateData{Scale: scale}
	pinch.Latency.Components = slices.Clone(latency.Components)

	f.queue = append(f.queue[:n-popCount], scroll, pinch)
	f.acc, f.accValid = acc, true
}

// oldestLatency merges the traces of a fused group. Queue order must follow
// trace order; a violation is logged and the oldest trace still wins.
func (f *Filter) oldestLatency(group []schemas.GestureEvent) schemas.LatencyInfo {
	infos := make([]schemas.LatencyInfo, len(group))
	var prev int64
	for i, ev := range group {
		infos[i] = ev.Latency
		if !ev.Latency.Valid() {
			continue
		}
		if ev.Latency.TraceID < prev {
			f.logger.Warn("Fused gesture events are out of trace order.",
				zap.Int64("previous_trace_id", prev),
				zap.Int64("trace_id", ev.Latency.TraceID))
		}
		prev = ev.Latency.TraceID
	}
	return schemas.MergeLatency(infos...)
}
