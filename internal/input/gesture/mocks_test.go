package gesture

import (
	"github.com/xkilldash9x/inputpipe/api/schemas"
)

type ackRecord struct {
	Event schemas.GestureEvent
	State schemas.AckState
}

// recordingClient captures the filter's output.
type recordingClient struct {
	sent  []schemas.GestureEvent
	acked []ackRecord
	// onAck runs inside OnGestureEventAck, letting tests enqueue re-entrantly.
	onAck func(ev schemas.GestureEvent)
}

func (c *recordingClient) SendGestureEventImmediately(ev schemas.GestureEvent) {
	c.sent = append(c.sent, ev)
}

func (c *recordingClient) OnGestureEventAck(ev schemas.GestureEvent, state schemas.AckState) {
	c.acked = append(c.acked, ackRecord{Event: ev, State: state})
	if c.onAck != nil {
		c.onAck(ev)
	}
}

func (c *recordingClient) sentTypes() []schemas.EventType {
	out := make([]schemas.EventType, len(c.sent))
	for i, ev := range c.sent {
		out[i] = ev.Type
	}
	return out
}

// recordingMouse captures mouse downs released by touchpad tap suppression.
type recordingMouse struct {
	sent []schemas.MouseEvent
}

func (m *recordingMouse) SendMouseEventImmediately(ev schemas.MouseEvent) {
	m.sent = append(m.sent, ev)
}
