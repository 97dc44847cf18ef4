package touch

import (
	"github.com/xkilldash9x/inputpipe/api/schemas"
)

type ackRecord struct {
	Event schemas.TouchEvent
	State schemas.AckState
}

// recordingClient captures what the queue sends and acks.
type recordingClient struct {
	sent  []schemas.TouchEvent
	acked []ackRecord
	// onAck runs inside OnTouchEventAck.
	onAck func(ev schemas.TouchEvent, state schemas.AckState)
}

func (c *recordingClient) SendTouchEventImmediately(ev schemas.TouchEvent) {
	c.sent = append(c.sent, ev)
}

func (c *recordingClient) OnTouchEventAck(ev schemas.TouchEvent, state schemas.AckState) {
	c.acked = append(c.acked, ackRecord{Event: ev, State: state})
	if c.onAck != nil {
		c.onAck(ev, state)
	}
}

func (c *recordingClient) sentTypes() []schemas.EventType {
	out := make([]schemas.EventType, len(c.sent))
	for i, ev := range c.sent {
		out[i] = ev.Type
	}
	return out
}

func (c *recordingClient) ackedStates() []schemas.AckState {
	out := make([]schemas.AckState, len(c.acked))
	for i, a := range c.acked {
		out[i] = a.State
	}
	return out
}
