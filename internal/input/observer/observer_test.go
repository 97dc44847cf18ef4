package observer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	zapobserver "go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/inputpipe/api/schemas"
	"github.com/xkilldash9x/inputpipe/internal/input/clock"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type sliceSink struct{ recs []Record }

func (s *sliceSink) Record(rec Record) { s.recs = append(s.recs, rec) }

func TestRecorderFlattensEveryCategory(t *testing.T) {
	clk := clock.NewManual(epoch)
	sink := &sliceSink{}
	rec := NewRecorder(sink, clk)

	latency := schemas.NewLatencyInfo()
	latency.AddComponent("renderer", epoch)
	clk.Advance(12 * time.Millisecond)

	rec.OnGestureEventAck(schemas.GestureEvent{Type: schemas.GestureTap, Timestamp: epoch, Latency: latency}, schemas.AckConsumed)
	rec.OnTouchEventAck(schemas.TouchEvent{Type: schemas.TouchMove, Timestamp: epoch}, schemas.AckNoConsumerExists)
	rec.OnMouseEventAck(schemas.MouseEvent{Type: schemas.MousePress, Timestamp: epoch}, schemas.AckNotConsumed)
	rec.OnWheelEventAck(schemas.WheelEvent{Timestamp: epoch}, schemas.AckConsumed)
	rec.OnKeyboardEventAck(schemas.KeyboardEvent{Type: schemas.KeyChar, Timestamp: epoch}, schemas.AckUnknown)

	require.Len(t, sink.recs, 5)
	first := sink.recs[0]
	assert.Equal(t, schemas.CategoryGesture, first.Category)
	assert.Equal(t, latency.TraceID, first.TraceID)
	assert.Len(t, first.Components, 1)
	assert.Equal(t, 12*time.Millisecond, first.Latency())

	var cats []schemas.Category
	for _, r := range sink.recs {
		cats = append(cats, r.Category)
	}
	assert.Equal(t, []schemas.Category{
		schemas.CategoryGesture, schemas.CategoryTouch, schemas.CategoryMouse,
		schemas.CategoryWheel, schemas.CategoryKeyboard,
	}, cats)
	assert.Equal(t, schemas.MouseWheel, sink.recs[3].Type)
}

func TestLoggingSink(t *testing.T) {
	core, logs := zapobserver.New(zapcore.DebugLevel)
	l := NewLogging(zap.New(core))
	l.Record(Record{Category: schemas.CategoryTouch, Type: schemas.TouchEnd, State: schemas.AckConsumed, TraceID: 7})

	entries := logs.FilterMessage("Input event acked.").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "touch", fields["category"])
	assert.Equal(t, int64(7), fields["trace_id"])
	assert.Equal(t, "acks", entries[0].LoggerName)
}

func TestStats(t *testing.T) {
	s := NewStats()
	Sinks{s}.Record(Record{Type: schemas.TouchMove, State: schemas.AckNoConsumerExists})
	s.Record(Record{Type: schemas.TouchMove, State: schemas.AckNoConsumerExists})
	s.Record(Record{Type: schemas.TouchMove, State: schemas.AckConsumed})

	assert.Equal(t, 3, s.Total())
	assert.Equal(t, 2, s.Count(schemas.TouchMove, schemas.AckNoConsumerExists))
	assert.Zero(t, s.Count(schemas.GestureTap, schemas.AckConsumed))

	snap := s.Snapshot()
	snap[schemas.TouchMove][schemas.AckConsumed] = 99
	assert.Equal(t, 1, s.Count(schemas.TouchMove, schemas.AckConsumed), "snapshots are copies")
}
