package tapsuppression

import (
	"github.com/xkilldash9x/inputpipe/api/schemas"
)

// recordingForwarder captures everything released by a suppression variant.
type recordingForwarder struct {
	gestures []schemas.GestureEvent
	mice     []schemas.MouseEvent
}

func (r *recordingForwarder) ForwardGestureEvent(ev schemas.GestureEvent) {
	r.gestures = append(r.gestures, ev)
}

func (r *recordingForwarder) SendMouseEventImmediately(ev schemas.MouseEvent) {
	r.mice = append(r.mice, ev)
}

func (r *recordingForwarder) gestureTypes() []schemas.EventType {
	out := make([]schemas.EventType, len(r.gestures))
	for i, g := range r.gestures {
		out[i] = g.Type
	}
	return out
}
