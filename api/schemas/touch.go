// File: api/schemas/touch.go
package schemas

import (
	"slices"
	"time"
)

// TouchPointState is the phase of a single touch point within a frame.
type TouchPointState string

const (
	TouchPointPressed    TouchPointState = "pressed"
	TouchPointMoved      TouchPointState = "moved"
	TouchPointStationary TouchPointState = "stationary"
	TouchPointReleased   TouchPointState = "released"
	TouchPointCancelled  TouchPointState = "cancelled"
)

// TouchPoint is one finger in a touch frame.
type TouchPoint struct {
	ID    int64           `json:"id"`
	X     float64         `json:"x"`
	Y     float64         `json:"y"`
	State TouchPointState `json:"state"`
}

// TouchEvent is a frame of touch points.
type TouchEvent struct {
	Type      EventType    `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	Modifiers KeyModifier  `json:"modifiers"`
	Points    []TouchPoint `json:"points"`
	Latency   LatencyInfo  `json:"latency"`
}

// DeriveTouchType returns the frame type implied by its points: Start if any
// point was pressed, End if any was released, Cancel if any was cancelled and
// Move otherwise.
func DeriveTouchType(points []TouchPoint) EventType {
	has := func(s TouchPointState) bool {
		return slices.ContainsFunc(points, func(p TouchPoint) bool { return p.State == s })
	}
	switch {
	case has(TouchPointPressed):
		return TouchStart
	case has(TouchPointReleased):
		return TouchEnd
	case has(TouchPointCancelled):
		return TouchCancel
	default:
		return TouchMove
	}
}

// NewTouchEvent builds a frame with its type derived from the points and a
// fresh latency trace.
func NewTouchEvent(points []TouchPoint, modifiers KeyModifier, ts time.Time) TouchEvent {
	return TouchEvent{
		Type:      DeriveTouchType(points),
		Timestamp: ts,
		Modifiers: modifiers,
		Points:    slices.Clone(points),
		Latency:   NewLatencyInfo(),
	}
}

// Clone returns a deep copy of the frame.
func (e TouchEvent) Clone() TouchEvent {
	e.Points = slices.Clone(e.Points)
	e.Latency.Components = slices.Clone(e.Latency.Components)
	return e
}

// Point returns the point with the given id.
func (e TouchEvent) Point(id int64) (TouchPoint, bool) {
	i := slices.IndexFunc(e.Points, func(p TouchPoint) bool { return p.ID == id })
	if i < 0 {
		return TouchPoint{}, false
	}
	return e.Points[i], true
}

// CanCoalesceWith reports whether newer is a continuation move of the same
// set of fingers.
func (e TouchEvent) CanCoalesceWith(newer TouchEvent) bool {
	if e.Type != TouchMove || newer.Type != TouchMove {
		return false
	}
	if e.Modifiers != newer.Modifiers || len(e.Points) != len(newer.Points) {
		return false
	}
	for _, p := range newer.Points {
		if _, ok := e.Point(p.ID); !ok {
			return false
		}
	}
	return true
}

// CoalesceWith folds a newer move into e. Positions come from newer; a point
// already marked moved stays moved even if newer reports it stationary.
func (e *TouchEvent) CoalesceWith(newer TouchEvent) {
	points := make([]TouchPoint, len(e.Points))
	for i, old := range e.Points {
		p, _ := newer.Point(old.ID)
		if old.State == TouchPointMoved && p.State == TouchPointStationary {
			p.State = TouchPointMoved
		}
		points[i] = p
	}
	e.Points = points
	e.Timestamp = newer.Timestamp
	e.Latency.CoalesceWith(newer.Latency)
}
