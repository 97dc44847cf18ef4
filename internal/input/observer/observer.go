// internal/input/observer/observer.go
package observer

import (
	"maps"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/inputpipe/api/schemas"
	"github.com/xkilldash9x/inputpipe/internal/input/clock"
	"github.com/xkilldash9x/inputpipe/internal/input/router"
)

// Record is the flattened outcome of one acked event.
type Record struct {
	Category   schemas.Category
	Type       schemas.EventType
	State      schemas.AckState
	TraceID    int64
	Components []schemas.LatencyComponent
	// EventTime is the timestamp the event carried; AckedAt is when the
	// pipeline resolved it.
	EventTime time.Time
	AckedAt   time.Time
}

// Latency is the time between the event and its resolution.
func (r Record) Latency() time.Duration { return r.AckedAt.Sub(r.EventTime) }

// Sink consumes records. Implementations must not block the pipeline.
type Sink interface {
	Record(rec Record)
}

// Recorder turns acks into Records for a Sink.
type Recorder struct {
	sink  Sink
	clock clock.Clock
}

var _ router.AckObserver = (*Recorder)(nil)

// NewRecorder stamps records with clk and hands them to sink.
func NewRecorder(sink Sink, clk clock.Clock) *Recorder {
	return &Recorder{sink: sink, clock: clk}
}

func (r *Recorder) emit(typ schemas.EventType, state schemas.AckState, ts time.Time, latency schemas.LatencyInfo) {
	r.sink.Record(Record{
		Category:   typ.Category(),
		Type:       typ,
		State:      state,
		TraceID:    latency.TraceID,
		Components: latency.Components,
		EventTime:  ts,
		AckedAt:    r.clock.Now(),
	})
}

func (r *Recorder) OnGestureEventAck(ev schemas.GestureEvent, state schemas.AckState) {
	r.emit(ev.Type, state, ev.Timestamp, ev.Latency)
}

func (r *Recorder) OnTouchEventAck(ev schemas.TouchEvent, state schemas.AckState) {
	r.emit(ev.Type, state, ev.Timestamp, ev.Latency)
}

func (r *Recorder) OnMouseEventAck(ev schemas.MouseEvent, state schemas.AckState) {
	r.emit(ev.Type, state, ev.Timestamp, ev.Latency)
}

func (r *Recorder) OnWheelEventAck(ev schemas.WheelEvent, state schemas.AckState) {
	r.emit(schemas.MouseWheel, state, ev.Timestamp, ev.Latency)
}

func (r *Recorder) OnKeyboardEventAck(ev schemas.KeyboardEvent, state schemas.AckState) {
	r.emit(ev.Type, state, ev.Timestamp, ev.Latency)
}

// Logging writes each record at debug level.
type Logging struct {
	logger *zap.Logger
}

var _ Sink = (*Logging)(nil)

// NewLogging creates a logging sink.
func NewLogging(logger *zap.Logger) *Logging {
	return &Logging{logger: logger.Named("acks")}
}

func (l *Logging) Record(rec Record) {
	if ce := l.logger.Check(zap.DebugLevel, "Input event acked."); ce != nil {
		ce.Write(
			zap.Stringer("category", rec.Category),
			zap.String("type", string(rec.Type)),
			zap.String("state", string(rec.State)),
			zap.Int64("trace_id", rec.TraceID),
			zap.Int("components", len(rec.Components)),
			zap.Duration("latency", rec.Latency()),
		)
	}
}

// Stats counts acks by type and state. It is safe for concurrent use.
type Stats struct {
	mu     sync.Mutex
	counts map[schemas.EventType]map[schemas.AckState]int
	total  int
}

var _ Sink = (*Stats)(nil)

// NewStats returns empty counters.
func NewStats() *Stats {
	return &Stats{counts: make(map[schemas.EventType]map[schemas.AckState]int)}
}

func (s *Stats) Record(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byState, ok := s.counts[rec.Type]
	if !ok {
		byState = make(map[schemas.AckState]int)
		s.counts[rec.Type] = byState
	}
	byState[rec.State]++
	s.total++
}

// Total returns the number of records seen.
func (s *Stats) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Count returns how many events of typ were resolved with state.
func (s *Stats) Count(typ schemas.EventType, state schemas.AckState) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[typ][state]
}

// Snapshot returns a copy of the counters.
func (s *Stats) Snapshot() map[schemas.EventType]map[schemas.AckState]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[schemas.EventType]map[schemas.AckState]int, len(s.counts))
	for typ, byState := range s.counts {
		out[typ] = maps.Clone(byState)
	}
	return out
}

// Sinks forwards every record to each sink in order.
type Sinks []Sink

func (s Sinks) Record(rec Record) {
	for _, sink := range s {
		sink.Record(rec)
	}
}
