package renderer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/inputpipe/api/schemas"
	"github.com/xkilldash9x/inputpipe/internal/config"
	"github.com/xkilldash9x/inputpipe/internal/input/clock"
	"github.com/xkilldash9x/inputpipe/internal/input/observer"
	"github.com/xkilldash9x/inputpipe/internal/input/router"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

const ackDelay = 8 * time.Millisecond

func newSim(t *testing.T, cfg SimConfig) (*Sim, *recordingSink, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(epoch)
	sink := &recordingSink{}
	sim := NewSim(cfg, clk, zaptest.NewLogger(t))
	sim.Bind(sink)
	return sim, sink, clk
}

func TestSimAcksInSendOrderAfterDelay(t *testing.T) {
	sim, sink, clk := newSim(t, SimConfig{AckDelay: ackDelay})

	sim.SendTouchEvent(schemas.TouchEvent{Type: schemas.TouchStart})
	sim.SendMouseEvent(schemas.MouseEvent{Type: schemas.MousePress})
	clk.Advance(2 * time.Millisecond)
	sim.SendWheelEvent(schemas.WheelEvent{})
	sim.SendKeyboardEvent(schemas.KeyboardEvent{Type: schemas.KeyRawDown})
	sim.SendGestureEvent(schemas.GestureEvent{Type: schemas.GestureShowPress})
	sim.SendGestureEvent(schemas.GestureEvent{Type: schemas.GestureTap})
	sim.SendEditCommands([]schemas.EditCommand{{Name: "undo"}})

	clk.Advance(5 * time.Millisecond)
	assert.Empty(t, sink.acks, "nothing is due yet")

	clk.Advance(time.Millisecond)
	assert.Equal(t, []schemas.EventType{schemas.TouchStart, schemas.MousePress}, sink.types())

	clk.Advance(2 * time.Millisecond)
	assert.Equal(t, []schemas.EventType{
		schemas.TouchStart, schemas.MousePress,
		schemas.MouseWheel, schemas.KeyRawDown, schemas.GestureTap,
	}, sink.types(), "show press is never acked")

	for _, ack := range sink.acks {
		assert.Equal(t, schemas.AckConsumed, ack.State)
		assert.True(t, ack.Latency.HasComponent(SimLatencyComponent))
	}
	assert.Equal(t, 6, sim.Sent())
	assert.Zero(t, sim.Pending())
}

func TestSimDispositions(t *testing.T) {
	sim, sink, clk := newSim(t, SimConfig{
		AckDelay:     ackDelay,
		Dispositions: map[schemas.Category]schemas.AckState{schemas.CategoryTouch: schemas.AckNoConsumerExists},
	})
	sim.SendTouchEvent(schemas.TouchEvent{Type: schemas.TouchMove})
	sim.SendMouseEvent(schemas.MouseEvent{Type: schemas.MouseMove})
	clk.Advance(ackDelay)

	require.Len(t, sink.acks, 2)
	assert.Equal(t, schemas.AckNoConsumerExists, sink.acks[0].State)
	assert.Equal(t, schemas.AckConsumed, sink.acks[1].State)
}

func TestSimHangsTouchAcks(t *testing.T) {
	sim, sink, clk := newSim(t, SimConfig{AckDelay: ackDelay, HangTouchAcks: true})
	sim.SendTouchEvent(schemas.TouchEvent{Type: schemas.TouchStart})
	sim.SendMouseEvent(schemas.MouseEvent{Type: schemas.MouseMove})
	clk.Advance(time.Second)
	assert.Equal(t, []schemas.EventType{schemas.MouseMove}, sink.types())
}

func TestSimCaretAndSelection(t *testing.T) {
	sim, sink, clk := newSim(t, SimConfig{AckDelay: ackDelay})
	sim.SendMoveCaret(schemas.Point{X: 1})
	sim.SendSelectRange(schemas.SelectRange{})
	clk.Advance(ackDelay)
	assert.Equal(t, 1, sink.carets)
	assert.Equal(t, 1, sink.selects)
}

func TestSimStop(t *testing.T) {
	sim, sink, clk := newSim(t, SimConfig{AckDelay: ackDelay})
	sim.SendMouseEvent(schemas.MouseEvent{Type: schemas.MouseMove})
	sim.Stop()
	clk.Advance(time.Second)
	assert.Empty(t, sink.acks)
	assert.Zero(t, clk.Pending())
}

// The simulated renderer drives a real router until every queue drains.
func TestSimDrivesRouter(t *testing.T) {
	clk := clock.NewManual(epoch)
	logger := zaptest.NewLogger(t)
	sim := NewSim(SimConfig{AckDelay: ackDelay}, clk, logger)
	stats := observer.NewStats()
	r := router.New(router.DefaultConfig(), sim, observer.NewRecorder(stats, clk), clk, logger)
	sim.Bind(r)

	for i := 0; i < 5; i++ {
		r.SendMouseEvent(schemas.MouseEvent{Type: schemas.MouseMove, X: float64(i), MovementX: 1})
	}
	r.SendTouchEvent(schemas.NewTouchEvent([]schemas.TouchPoint{{ID: 1, State: schemas.TouchPointPressed}}, schemas.ModNone, epoch))
	r.SendTouchEvent(schemas.NewTouchEvent([]schemas.TouchPoint{{ID: 1, State: schemas.TouchPointMoved}}, schemas.ModNone, epoch))
	r.SendTouchEvent(schemas.NewTouchEvent([]schemas.TouchPoint{{ID: 1, State: schemas.TouchPointReleased}}, schemas.ModNone, epoch))
	r.SendGestureEvent(schemas.GestureEvent{Type: schemas.GestureTapDown, SourceDevice: schemas.SourceTouchscreen})
	r.SendGestureEvent(schemas.GestureEvent{Type: schemas.GestureShowPress, SourceDevice: schemas.SourceTouchscreen})
	r.SendGestureEvent(schemas.GestureEvent{Type: schemas.GestureTap, SourceDevice: schemas.SourceTouchscreen})

	for i := 0; i < 10 && !r.Idle(); i++ {
		clk.Advance(ackDelay)
	}
	require.True(t, r.Idle())
	assert.Equal(t, 2, stats.Count(schemas.MouseMove, schemas.AckConsumed), "queued moves coalesce into one")
	assert.Equal(t, 1, stats.Count(schemas.TouchEnd, schemas.AckConsumed))
	assert.Equal(t, 1, stats.Count(schemas.GestureShowPress, schemas.AckNotConsumed))
	assert.Equal(t, 1, stats.Count(schemas.GestureTap, schemas.AckConsumed))
}

func TestNewSimConfig(t *testing.T) {
	cfg, err := NewSimConfig(config.SimRendererConfig{
		AckDelay:     ackDelay,
		Dispositions: map[string]string{"Touch": "no_consumer_exists", "gesture": "NOT_CONSUMED"},
	})
	require.NoError(t, err)
	assert.Equal(t, schemas.AckNoConsumerExists, cfg.Dispositions[schemas.CategoryTouch])
	assert.Equal(t, schemas.AckNotConsumed, cfg.Dispositions[schemas.CategoryGesture])

	_, err = NewSimConfig(config.SimRendererConfig{Dispositions: map[string]string{"pen": "consumed"}})
	assert.ErrorContains(t, err, "unknown event category")
	_, err = NewSimConfig(config.SimRendererConfig{Dispositions: map[string]string{"touch": "maybe"}})
	assert.ErrorContains(t, err, "invalid ack state")
}
