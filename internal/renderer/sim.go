// internal/renderer/sim.go
package renderer

import (
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/inputpipe/api/schemas"
	"github.com/xkilldash9x/inputpipe/internal/config"
	"github.com/xkilldash9x/inputpipe/internal/input/clock"
)

// SimLatencyComponent is the latency component the simulated renderer stamps
// on every ack.
const SimLatencyComponent = "sim_renderer_ack"

// SimConfig tunes the simulated renderer.
type SimConfig struct {
	AckDelay time.Duration
	// Dispositions overrides the ack state per category; the default is
	// AckConsumed.
	Dispositions  map[schemas.Category]schemas.AckState
	HangTouchAcks bool
}

// NewSimConfig converts the application's renderer section.
func NewSimConfig(c config.SimRendererConfig) (SimConfig, error) {
	dispositions, err := ParseDispositions(c.Dispositions)
	if err != nil {
		return SimConfig{}, err
	}
	return SimConfig{AckDelay: c.AckDelay, Dispositions: dispositions, HangTouchAcks: c.HangTouchAcks}, nil
}

type pendingAck struct {
	due     time.Time
	label   string
	deliver func(AckSink) error
}

// Sim is an in-process renderer that acks everything after a fixed delay, in
// the order it was sent. It lives on the pipeline goroutine.
type Sim struct {
	cfg    SimConfig
	clock  clock.Clock
	logger *zap.Logger
	sink   AckSink

	pending []pendingAck
	timer   clock.Timer
	sent    int
}

var _ Bindable = (*Sim)(nil)

// NewSim creates a simulated renderer. Bind must be called before input flows.
func NewSim(cfg SimConfig, clk clock.Clock, logger *zap.Logger) *Sim {
	return &Sim{cfg: cfg, clock: clk, logger: logger.Named("sim_renderer")}
}

// Bind sets the destination of acks.
func (s *Sim) Bind(sink AckSink) { s.sink = sink }

// Sent returns how many events and requests were sent to the renderer.
func (s *Sim) Sent() int { return s.sent }

// Pending returns how many acks are scheduled.
func (s *Sim) Pending() int { return len(s.pending) }

func (s *Sim) SendGestureEvent(ev schemas.GestureEvent) {
	s.sent++
	if schemas.IgnoresAckDisposition(ev.Type) {
		return
	}
	s.scheduleAck(ev.Type)
}

func (s *Sim) SendTouchEvent(ev schemas.TouchEvent) {
	s.sent++
	if s.cfg.HangTouchAcks {
		s.logger.Debug("Withholding touch ack.", zap.String("type", string(ev.Type)))
		return
	}
	s.scheduleAck(ev.Type)
}

func (s *Sim) SendMouseEvent(ev schemas.MouseEvent) {
	s.sent++
	s.scheduleAck(ev.Type)
}

func (s *Sim) SendWheelEvent(schemas.WheelEvent) {
	s.sent++
	s.scheduleAck(schemas.MouseWheel)
}

func (s *Sim) SendKeyboardEvent(ev schemas.KeyboardEvent) {
	s.sent++
	s.scheduleAck(ev.Type)
}

func (s *Sim) SendEditCommands(commands []schemas.EditCommand) {
	s.logger.Debug("Edit commands received.", zap.Int("count", len(commands)))
}

func (s *Sim) SendMoveCaret(schemas.Point) {
	s.sent++
	s.schedule("moveCaret", func(sink AckSink) error { return sink.OnMoveCaretAck() })
}

func (s *Sim) SendSelectRange(schemas.SelectRange) {
	s.sent++
	s.schedule("selectRange", func(sink AckSink) error { return sink.OnSelectRangeAck() })
}

func (s *Sim) disposition(typ schemas.EventType) schemas.AckState {
	if state, ok := s.cfg.Dispositions[typ.Category()]; ok {
		return state
	}
	return schemas.AckConsumed
}

func (s *Sim) scheduleAck(typ schemas.EventType) {
	state := s.disposition(typ)
	s.schedule(string(typ), func(sink AckSink) error {
		latency := schemas.LatencyInfo{}
		latency.AddComponent(SimLatencyComponent, s.clock.Now())
		return sink.OnInputEventAck(schemas.InputEventAck{Type: typ, State: state, Latency: latency})
	})
}

// schedule queues an ack. A single timer serves the queue so acks are
// delivered in send order whatever the clock's timer ordering.
func (s *Sim) schedule(label string, deliver func(AckSink) error) {
	s.pending = append(s.pending, pendingAck{due: s.clock.Now().Add(s.cfg.AckDelay), label: label, deliver: deliver})
	if s.timer == nil {
		s.timer = s.clock.AfterFunc(s.cfg.AckDelay, s.deliverDue)
	}
}

func (s *Sim) deliverDue() {
	s.timer = nil
	now := s.clock.Now()
	for len(s.pending) > 0 && !s.pending[0].due.After(now) {
		p := s.pending[0]
		s.pending = s.pending[1:]
		if s.sink == nil {
			s.logger.Warn("Dropping ack; renderer is not bound.", zap.String("type", p.label))
			continue
		}
		if err := p.deliver(s.sink); err != nil {
			s.logger.Debug("Ack rejected by the router.", zap.String("type", p.label), zap.Error(err))
		}
	}
	// A delivery may have sent more input and armed the timer for its own ack.
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if len(s.pending) > 0 {
		s.timer = s.clock.AfterFunc(s.pending[0].due.Sub(now), s.deliverDue)
	}
}

// Stop cancels every scheduled ack.
func (s *Sim) Stop() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
}
