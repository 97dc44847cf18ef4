// File: api/schemas/gesture.go
package schemas

import "time"

// ScrollUpdateData is the payload of a GestureScrollUpdate.
type ScrollUpdateData struct {
	DeltaX float64 `json:"delta_x"`
	DeltaY float64 `json:"delta_y"`
}

// PinchUpdateData is the payload of a GesturePinchUpdate. The anchor is the
// event position.
type PinchUpdateData struct {
	Scale float64 `json:"scale"`
}

// FlingStartData is the payload of a GestureFlingStart.
type FlingStartData struct {
	VelocityX float64 `json:"velocity_x"`
	VelocityY float64 `json:"velocity_y"`
}

// GestureEvent is an already recognised gesture. Only the payload matching
// Type carries meaning.
type GestureEvent struct {
	Type         EventType        `json:"type"`
	SourceDevice SourceDevice     `json:"source_device"`
	Timestamp    time.Time        `json:"timestamp"`
	Modifiers    KeyModifier      `json:"modifiers"`
	X            float64          `json:"x"`
	Y            float64          `json:"y"`
	ScrollUpdate ScrollUpdateData `json:"scroll_update"`
	PinchUpdate  PinchUpdateData  `json:"pinch_update"`
	FlingStart   FlingStartData   `json:"fling_start"`
	Latency      LatencyInfo      `json:"latency"`
}

// IsScrollOrPinchUpdate reports whether the event takes part in scroll/pinch
// merging.
func (e GestureEvent) IsScrollOrPinchUpdate() bool {
	return e.Type == GestureScrollUpdate || e.Type == GesturePinchUpdate
}

// CanCoalesceWith reports whether newer can be folded directly into e.
func (e GestureEvent) CanCoalesceWith(newer GestureEvent) bool {
	return e.Type == newer.Type &&
		e.IsScrollOrPinchUpdate() &&
		e.Modifiers == newer.Modifiers &&
		e.SourceDevice == newer.SourceDevice
}

// CoalesceWith folds newer into e: scroll deltas add, pinch scales multiply.
// The caller checks CanCoalesceWith first.
func (e *GestureEvent) CoalesceWith(newer GestureEvent) {
	switch e.Type {
	case GestureScrollUpdate:
		e.ScrollUpdate.DeltaX += newer.ScrollUpdate.DeltaX
		e.ScrollUpdate.DeltaY += newer.ScrollUpdate.DeltaY
	case GesturePinchUpdate:
		e.PinchUpdate.Scale *= newer.PinchUpdate.Scale
	}
	e.Timestamp = newer.Timestamp
	e.Latency.CoalesceWith(newer.Latency)
}
