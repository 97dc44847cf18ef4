// File: api/schemas/input.go
package schemas

import "time"

// EventType identifies a single input event kind. The string values for the
// mouse, touch and key kinds line up with the DevTools protocol so they can be
// handed straight to cdproto builders.
type EventType string

const (
	// Gesture kinds.
	GestureScrollBegin    EventType = "gestureScrollBegin"
	GestureScrollUpdate   EventType = "gestureScrollUpdate"
	GestureScrollEnd      EventType = "gestureScrollEnd"
	GesturePinchBegin     EventType = "gesturePinchBegin"
	GesturePinchUpdate    EventType = "gesturePinchUpdate"
	GesturePinchEnd       EventType = "gesturePinchEnd"
	GestureFlingStart     EventType = "gestureFlingStart"
	GestureFlingCancel    EventType = "gestureFlingCancel"
	GestureTapDown        EventType = "gestureTapDown"
	GestureShowPress      EventType = "gestureShowPress"
	GestureTap            EventType = "gestureTap"
	GestureTapUnconfirmed EventType = "gestureTapUnconfirmed"
	GestureTapCancel      EventType = "gestureTapCancel"
	GestureDoubleTap      EventType = "gestureDoubleTap"

	// Touch kinds.
	TouchStart  EventType = "touchStart"
	TouchMove   EventType = "touchMove"
	TouchEnd    EventType = "touchEnd"
	TouchCancel EventType = "touchCancel"

	// Mouse kinds.
	MouseMove    EventType = "mouseMoved"
	MousePress   EventType = "mousePressed"
	MouseRelease EventType = "mouseReleased"
	MouseWheel   EventType = "mouseWheel"

	// Keyboard kinds.
	KeyDown    EventType = "keyDown"
	KeyRawDown EventType = "rawKeyDown"
	KeyUp      EventType = "keyUp"
	KeyChar    EventType = "char"
)

// Category groups event kinds that share an acknowledgment channel.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryGesture
	CategoryTouch
	CategoryMouse
	CategoryWheel
	CategoryKeyboard
)

func (c Category) String() string {
	switch c {
	case CategoryGesture:
		return "gesture"
	case CategoryTouch:
		return "touch"
	case CategoryMouse:
		return "mouse"
	case CategoryWheel:
		return "wheel"
	case CategoryKeyboard:
		return "keyboard"
	default:
		return "unknown"
	}
}

// Category reports which acknowledgment channel an event kind belongs to.
func (t EventType) Category() Category {
	switch t {
	case GestureScrollBegin, GestureScrollUpdate, GestureScrollEnd,
		GesturePinchBegin, GesturePinchUpdate, GesturePinchEnd,
		GestureFlingStart, GestureFlingCancel,
		GestureTapDown, GestureShowPress, GestureTap, GestureTapUnconfirmed,
		GestureTapCancel, GestureDoubleTap:
		return CategoryGesture
	case TouchStart, TouchMove, TouchEnd, TouchCancel:
		return CategoryTouch
	case MouseMove, MousePress, MouseRelease:
		return CategoryMouse
	case MouseWheel:
		return CategoryWheel
	case KeyDown, KeyRawDown, KeyUp, KeyChar:
		return CategoryKeyboard
	default:
		return CategoryUnknown
	}
}

// IgnoresAckDisposition reports whether the renderer's verdict for this kind is
// irrelevant. Such events still occupy their slot in the queue.
func IgnoresAckDisposition(t EventType) bool {
	switch t {
	case GestureShowPress, GestureTapCancel:
		return true
	default:
		return false
	}
}

// KeyModifier represents keyboard modifiers (Ctrl, Alt, Shift, Meta).
// These values correspond directly to the CDP modifiers bitfield.
type KeyModifier int

const (
	ModNone  KeyModifier = 0
	ModAlt   KeyModifier = 1
	ModCtrl  KeyModifier = 2
	ModMeta  KeyModifier = 4
	ModShift KeyModifier = 8
)

// AckState is the renderer's disposition for an acknowledged event.
type AckState string

const (
	AckConsumed         AckState = "consumed"
	AckNotConsumed      AckState = "not_consumed"
	AckNoConsumerExists AckState = "no_consumer_exists"
	AckUnknown          AckState = "unknown"
)

// Valid reports whether s is one of the known dispositions.
func (s AckState) Valid() bool {
	switch s {
	case AckConsumed, AckNotConsumed, AckNoConsumerExists, AckUnknown:
		return true
	}
	return false
}

// SourceDevice is the hardware class a gesture was recognised from.
type SourceDevice string

const (
	SourceTouchscreen SourceDevice = "touchscreen"
	SourceTouchpad    SourceDevice = "touchpad"
)

// Point is a position in viewport coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// InputEventAck is a renderer's response to one dispatched event.
type InputEventAck struct {
	Type    EventType   `json:"type"`
	State   AckState    `json:"state"`
	Latency LatencyInfo `json:"latency"`
}

// MouseButton mirrors the CDP button names.
type MouseButton string

const (
	ButtonNone   MouseButton = "none"
	ButtonLeft   MouseButton = "left"
	ButtonMiddle MouseButton = "middle"
	ButtonRight  MouseButton = "right"
)

// MouseEvent is a pointer event from a mouse or a touchpad emulating one.
type MouseEvent struct {
	Type       EventType   `json:"type"`
	X          float64     `json:"x"`
	Y          float64     `json:"y"`
	MovementX  float64     `json:"movement_x"`
	MovementY  float64     `json:"movement_y"`
	Button     MouseButton `json:"button"`
	Buttons    int64       `json:"buttons"`
	ClickCount int         `json:"click_count"`
	Modifiers  KeyModifier `json:"modifiers"`
	Timestamp  time.Time   `json:"timestamp"`
	Latency    LatencyInfo `json:"latency"`
}

// CanCoalesceWith reports whether a pending move can absorb newer.
func (e MouseEvent) CanCoalesceWith(newer MouseEvent) bool {
	return e.Type == MouseMove && newer.Type == MouseMove &&
		e.Modifiers == newer.Modifiers && e.Buttons == newer.Buttons
}

// CoalesceWith folds a newer move into e. Movement accumulates, the position
// is taken from the newer event.
func (e *MouseEvent) CoalesceWith(newer MouseEvent) {
	e.MovementX += newer.MovementX
	e.MovementY += newer.MovementY
	e.X, e.Y = newer.X, newer.Y
	e.Timestamp = newer.Timestamp
	e.Latency.CoalesceWith(newer.Latency)
}

// WheelEvent is a mouse wheel or touchpad two-finger scroll.
type WheelEvent struct {
	X         float64     `json:"x"`
	Y         float64     `json:"y"`
	DeltaX    float64     `json:"delta_x"`
	DeltaY    float64     `json:"delta_y"`
	Precise   bool        `json:"precise"`
	Modifiers KeyModifier `json:"modifiers"`
	Timestamp time.Time   `json:"timestamp"`
	Latency   LatencyInfo `json:"latency"`
}

// CanCoalesceWith reports whether newer may be summed into e.
func (e WheelEvent) CanCoalesceWith(newer WheelEvent) bool {
	return e.Modifiers == newer.Modifiers && e.Precise == newer.Precise
}

// CoalesceWith adds the newer deltas into e.
func (e *WheelEvent) CoalesceWith(newer WheelEvent) {
	e.DeltaX += newer.DeltaX
	e.DeltaY += newer.DeltaY
	e.X, e.Y = newer.X, newer.Y
	e.Timestamp = newer.Timestamp
	e.Latency.CoalesceWith(newer.Latency)
}

// KeyboardEvent is a raw key event.
type KeyboardEvent struct {
	Type      EventType   `json:"type"`
	Key       string      `json:"key"`
	Code      string      `json:"code"`
	Text      string      `json:"text,omitempty"`
	Modifiers KeyModifier `json:"modifiers"`
	Timestamp time.Time   `json:"timestamp"`
	Latency   LatencyInfo `json:"latency"`
}

// EditCommand is an editing instruction bound to the key event that follows it.
type EditCommand struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

// SelectRange is a selection request expressed as two viewport points.
type SelectRange struct {
	Start Point `json:"start"`
	End   Point `json:"end"`
}
