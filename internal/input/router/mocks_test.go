package router

import (
	"github.com/xkilldash9x/inputpipe/api/schemas"
)

// recordingRenderer captures everything the router sends, in order.
type recordingRenderer struct {
	log      []string
	gestures []schemas.GestureEvent
	touches  []schemas.TouchEvent
	mice     []schemas.MouseEvent
	wheels   []schemas.WheelEvent
	keys     []schemas.KeyboardEvent
	commands [][]schemas.EditCommand
	carets   []schemas.Point
	selects  []schemas.SelectRange
}

func (r *recordingRenderer) SendGestureEvent(ev schemas.GestureEvent) {
	r.log = append(r.log, string(ev.Type))
	r.gestures = append(r.gestures, ev)
}

func (r *recordingRenderer) SendTouchEvent(ev schemas.TouchEvent) {
	r.log = append(r.log, string(ev.Type))
	r.touches = append(r.touches, ev)
}

func (r *recordingRenderer) SendMouseEvent(ev schemas.MouseEvent) {
	r.log = append(r.log, string(ev.Type))
	r.mice = append(r.mice, ev)
}

func (r *recordingRenderer) SendWheelEvent(ev schemas.WheelEvent) {
	r.log = append(r.log, string(schemas.MouseWheel))
	r.wheels = append(r.wheels, ev)
}

func (r *recordingRenderer) SendKeyboardEvent(ev schemas.KeyboardEvent) {
	r.log = append(r.log, string(ev.Type))
	r.keys = append(r.keys, ev)
}

func (r *recordingRenderer) SendEditCommands(commands []schemas.EditCommand) {
	r.log = append(r.log, "editCommands")
	r.commands = append(r.commands, commands)
}

func (r *recordingRenderer) SendMoveCaret(p schemas.Point) {
	r.log = append(r.log, "moveCaret")
	r.carets = append(r.carets, p)
}

func (r *recordingRenderer) SendSelectRange(sel schemas.SelectRange) {
	r.log = append(r.log, "selectRange")
	r.selects = append(r.selects, sel)
}

type observedAck struct {
	Type  schemas.EventType
	State schemas.AckState
}

// recordingObserver captures every resolved event, in order.
type recordingObserver struct {
	acks    []observedAck
	touches []schemas.TouchEvent
	mice    []schemas.MouseEvent
	wheels  []schemas.WheelEvent
}

func (o *recordingObserver) OnGestureEventAck(ev schemas.GestureEvent, state schemas.AckState) {
	o.acks = append(o.acks, observedAck{ev.Type, state})
}

func (o *recordingObserver) OnTouchEventAck(ev schemas.TouchEvent, state schemas.AckState) {
	o.acks = append(o.acks, observedAck{ev.Type, state})
	o.touches = append(o.touches, ev)
}

func (o *recordingObserver) OnMouseEventAck(ev schemas.MouseEvent, state schemas.AckState) {
	o.acks = append(o.acks, observedAck{ev.Type, state})
	o.mice = append(o.mice, ev)
}

func (o *recordingObserver) OnWheelEventAck(ev schemas.WheelEvent, state schemas.AckState) {
	o.acks = append(o.acks, observedAck{schemas.MouseWheel, state})
	o.wheels = append(o.wheels, ev)
}

func (o *recordingObserver) OnKeyboardEventAck(ev schemas.KeyboardEvent, state schemas.AckState) {
	o.acks = append(o.acks, observedAck{ev.Type, state})
}
