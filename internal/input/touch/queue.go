// internal/input/touch/queue.go
package touch

import (
	"errors"
	"maps"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/inputpipe/api/schemas"
	"github.com/xkilldash9x/inputpipe/internal/input/clock"
)

// ErrUnexpectedAck is returned for an ack that arrives while no touch event is in flight.
var ErrUnexpectedAck = errors.New("touch ack with no event in flight")

// Client receives the queue's output. Calls happen on the pipeline goroutine
// and must not block.
type Client interface {
	SendTouchEventImmediately(ev schemas.TouchEvent)
	OnTouchEventAck(ev schemas.TouchEvent, state schemas.AckState)
}

// Config tunes the queue.
type Config struct {
	AckTimeoutEnabled bool
	AckTimeoutDelay   time.Duration
}

// DefaultConfig returns the stock settings: no ack timeout, 200ms delay once enabled.
func DefaultConfig() Config {
	return Config{AckTimeoutDelay: 200 * time.Millisecond}
}

type entry struct {
	// coalesced is what the renderer sees.
	coalesced schemas.TouchEvent
	// originals each get their own ack callback.
	originals []schemas.TouchEvent
	sent      bool
	// synthetic entries are cancels generated by the queue. Their ack is
	// absorbed and never reported to the client.
	synthetic bool
}

// Queue orders touch events so the renderer sees one at a time, coalesces
// pending moves and resolves events the renderer does not need to see.
// It is not safe for concurrent use.
type Queue struct {
	cfg    Config
	client Client
	logger *zap.Logger

	queue []*entry

	// pointAcks holds the renderer's disposition for each pressed point.
	pointAcks map[int64]schemas.AckState
	// active holds the points the renderer believes are down.
	active map[int64]schemas.TouchPoint

	// noTouchToRenderer is set while a gesture scroll owns the touch sequence.
	noTouchToRenderer bool
	// absorb lists, oldest first, the acks still owed by the renderer for
	// events that already left the queue.
	absorb []schemas.EventType
	// timeoutBlocked holds forwarding back until absorb drains after a timeout.
	timeoutBlocked bool
	// dispatchingAck is set while client ack callbacks run.
	dispatchingAck bool

	timeoutTimer *clock.OneShot
}

// New creates an empty queue.
func New(cfg Config, client Client, clk clock.Clock, logger *zap.Logger) *Queue {
	q := &Queue{
		cfg:       cfg,
		client:    client,
		logger:    logger.Named("touch_queue"),
		pointAcks: make(map[int64]schemas.AckState),
		active:    make(map[int64]schemas.TouchPoint),
	}
	q.timeoutTimer = clock.NewOneShot(clk, cfg.AckTimeoutDelay, q.onAckTimeout)
	return q
}

// QueueEvent appends ev, coalescing it into a pending move when possible, and
// dispatches it right away if nothing is ahead of it.
func (q *Queue) QueueEvent(ev schemas.TouchEvent) {
	if n := len(q.queue); n > 0 {
		back := q.queue[n-1]
		if !back.sent && !back.synthetic && back.coalesced.CanCoalesceWith(ev) {
			back.coalesced.CoalesceWith(ev)
			back.originals = append(back.originals, ev)
			return
		}
	}
	q.queue = append(q.queue, &entry{coalesced: ev.Clone(), originals: []schemas.TouchEvent{ev}})
	if len(q.queue) == 1 && !q.dispatchingAck {
		q.tryForwardNext()
	}
}

// ProcessTouchAck resolves the oldest touch event the renderer still owes an
// ack for and dispatches what comes next.
func (q *Queue) ProcessTouchAck(state schemas.AckState, latency schemas.LatencyInfo) error {
	if len(q.absorb) > 0 {
		typ := q.absorb[0]
		q.absorb = q.absorb[1:]
		q.logger.Debug("Absorbed touch ack for an event no longer queued.",
			zap.String("type", string(typ)), zap.String("state", string(state)))
		if len(q.absorb) == 0 && q.timeoutBlocked {
			q.timeoutBlocked = false
			q.logger.Info("Touch forwarding resumed after ack timeout.")
			q.tryForwardNext()
		}
		return nil
	}
	if len(q.queue) == 0 || !q.queue[0].sent {
		return ErrUnexpectedAck
	}

	q.timeoutTimer.Stop()
	if q.queue[0].synthetic {
		q.popFront()
	} else {
		q.ackFront(state, latency)
	}
	q.tryForwardNext()
	return nil
}

// FlushQueue resolves every queued event as NO_CONSUMER_EXISTS without
// sending anything. An ack still owed for an event in flight is absorbed
// when it arrives.
func (q *Queue) FlushQueue() {
	q.timeoutTimer.Stop()
	for len(q.queue) > 0 {
		front := q.queue[0]
		if front.sent {
			q.absorb = append(q.absorb, front.coalesced.Type)
		}
		if front.synthetic {
			q.popFront()
			continue
		}
		q.ackFront(schemas.AckNoConsumerExists, schemas.LatencyInfo{})
	}
}

// OnGestureScrollEvent lets a gesture scroll take over the touch sequence.
// ScrollBegin cancels the points the renderer holds and stops forwarding;
// ScrollEnd and FlingStart resume it.
func (q *Queue) OnGestureScrollEvent(ev schemas.GestureEvent) {
	switch ev.Type {
	case schemas.GestureScrollBegin:
		if q.noTouchToRenderer {
			return
		}
		q.noTouchToRenderer = true
		cancel, ok := q.cancelActivePoints(ev.Timestamp)
		if !ok {
			return
		}
		at := 0
		if len(q.queue) > 0 && q.queue[0].sent {
			at = 1
		}
		q.queue = slices.Insert(q.queue, at, &entry{coalesced: cancel, synthetic: true})
		if at == 0 && !q.dispatchingAck {
			q.tryForwardNext()
		}
	case schemas.GestureScrollEnd, schemas.GestureFlingStart:
		q.noTouchToRenderer = false
		if !q.dispatchingAck {
			q.tryForwardNext()
		}
	}
}

// SetAckTimeoutEnabled toggles the ack timeout at runtime.
func (q *Queue) SetAckTimeoutEnabled(enabled bool) {
	q.cfg.AckTimeoutEnabled = enabled
	if !enabled {
		q.timeoutTimer.Stop()
	}
}

// ExpectedAckType returns the type of the event whose ack is due next.
func (q *Queue) ExpectedAckType() (schemas.EventType, bool) {
	if len(q.absorb) > 0 {
		return q.absorb[0], true
	}
	if len(q.queue) > 0 && q.queue[0].sent {
		return q.queue[0].coalesced.Type, true
	}
	return "", false
}

// Len returns the number of queued entries, including the one in flight.
func (q *Queue) Len() int { return len(q.queue) }

// Empty reports whether nothing is queued and no ack is owed.
func (q *Queue) Empty() bool { return len(q.queue) == 0 && len(q.absorb) == 0 }

// ForwardingSuspended reports whether touches are currently kept from the renderer.
func (q *Queue) ForwardingSuspended() bool { return q.noTouchToRenderer || q.timeoutBlocked }

// TimeoutPending reports whether the ack timeout is armed.
func (q *Queue) TimeoutPending() bool { return q.timeoutTimer.IsRunning() }

// QueuedEvents returns copies of the coalesced entries, front first.
func (q *Queue) QueuedEvents() []schemas.TouchEvent {
	out := make([]schemas.TouchEvent, len(q.queue))
	for i, e := range q.queue {
		out[i] = e.coalesced.Clone()
	}
	return out
}

// tryForwardNext sends the front entry or resolves entries the renderer does
// not need until one is sent or the queue empties.
func (q *Queue) tryForwardNext() {
	for len(q.queue) > 0 {
		front := q.queue[0]
		if front.sent {
			return
		}
		if front.synthetic {
			q.send(front)
			return
		}
		if q.timeoutBlocked {
			// A new press waits for the renderer to catch up; the rest of
			// the cancelled sequence is resolved locally.
			if front.coalesced.Type == schemas.TouchStart {
				return
			}
			q.ackFront(schemas.AckNoConsumerExists, schemas.LatencyInfo{})
			continue
		}
		if q.shouldForwardToRenderer(front.coalesced) {
			q.send(front)
			return
		}
		q.ackFront(schemas.AckNoConsumerExists, schemas.LatencyInfo{})
	}
}

func (q *Queue) shouldForwardToRenderer(ev schemas.TouchEvent) bool {
	if q.noTouchToRenderer {
		return false
	}
	if ev.Type == schemas.TouchStart {
		return true
	}
	for _, p := range ev.Points {
		if p.State == schemas.TouchPointStationary {
			continue
		}
		state, known := q.pointAcks[p.ID]
		if !known || state != schemas.AckNoConsumerExists {
			return true
		}
	}
	return false
}

func (q *Queue) send(e *entry) {
	e.sent = true
	for _, p := range e.coalesced.Points {
		switch p.State {
		case schemas.TouchPointReleased, schemas.TouchPointCancelled:
			delete(q.active, p.ID)
		default:
			q.active[p.ID] = p
		}
	}
	if !e.synthetic && q.cfg.AckTimeoutEnabled &&
		(e.coalesced.Type == schemas.TouchStart || e.coalesced.Type == schemas.TouchMove) {
		q.timeoutTimer.Start()
	}
	q.client.SendTouchEventImmediately(e.coalesced.Clone())
}

// ackFront pops the front entry and reports state for every event folded into it.
func (q *Queue) ackFront(state schemas.AckState, latency schemas.LatencyInfo) {
	front := q.queue[0]
	q.popFront()
	q.updatePointAcks(front.coalesced, state)

	q.dispatchingAck = true
	defer func() { q.dispatchingAck = false }()
	for _, ev := range front.originals {
		ev.Latency.AddNewLatencyFrom(latency)
		q.client.OnTouchEventAck(ev, state)
	}
}

func (q *Queue) updatePointAcks(ev schemas.TouchEvent, state schemas.AckState) {
	switch ev.Type {
	case schemas.TouchStart:
		for _, p := range ev.Points {
			if p.State == schemas.TouchPointPressed {
				q.pointAcks[p.ID] = state
			}
		}
	case schemas.TouchEnd, schemas.TouchCancel:
		for _, p := range ev.Points {
			if p.State == schemas.TouchPointReleased || p.State == schemas.TouchPointCancelled {
				delete(q.pointAcks, p.ID)
				delete(q.active, p.ID)
			}
		}
	}
}

func (q *Queue) popFront() {
	q.queue[0] = nil
	q.queue = q.queue[1:]
}

// cancelActivePoints builds a TouchCancel for every point the renderer holds.
// The points are forgotten and the rest of their sequence is resolved locally.
func (q *Queue) cancelActivePoints(ts time.Time) (schemas.TouchEvent, bool) {
	if len(q.active) == 0 {
		return schemas.TouchEvent{}, false
	}
	ids := slices.Sorted(maps.Keys(q.active))
	points := make([]schemas.TouchPoint, 0, len(ids))
	for _, id := range ids {
		p := q.active[id]
		p.State = schemas.TouchPointCancelled
		points = append(points, p)
		q.pointAcks[id] = schemas.AckNoConsumerExists
	}
	clear(q.active)
	return schemas.TouchEvent{
		Type:      schemas.TouchCancel,
		Timestamp: ts,
		Points:    points,
		Latency:   schemas.NewLatencyInfo(),
	}, true
}

// onAckTimeout gives up on the event in flight: the client sees NOT_CONSUMED,
// the renderer gets a cancel and forwarding waits for both owed acks.
func (q *Queue) onAckTimeout() {
	if len(q.queue) == 0 || !q.queue[0].sent || q.queue[0].synthetic {
		return
	}
	front := q.queue[0]
	q.logger.Warn("Touch ack timed out; cancelling the touch sequence.",
		zap.String("type", string(front.coalesced.Type)),
		zap.Int64("trace_id", front.coalesced.Latency.TraceID),
		zap.Duration("delay", q.timeoutTimer.Delay()))

	q.absorb = append(q.absorb, front.coalesced.Type)
	q.timeoutBlocked = true
	q.ackFront(schemas.AckNotConsumed, schemas.LatencyInfo{})

	if cancel, ok := q.cancelActivePoints(front.coalesced.Timestamp); ok {
		q.absorb = append(q.absorb, schemas.TouchCancel)
		q.client.SendTouchEventImmediately(cancel)
	}
	q.tryForwardNext()
}
