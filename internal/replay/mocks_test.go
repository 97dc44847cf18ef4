package replay

import (
	"context"
	"sync"

	"github.com/xkilldash9x/inputpipe/api/schemas"
)

// recordingTarget logs the calls a record makes.
type recordingTarget struct {
	mu    sync.Mutex
	calls []string
	last  any
}

func (r *recordingTarget) add(call string, v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	r.last = v
}

func (r *recordingTarget) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recordingTarget) SendGestureEvent(ev schemas.GestureEvent) { r.add("gesture", ev) }
func (r *recordingTarget) SendTouchEvent(ev schemas.TouchEvent)     { r.add("touch", ev) }
func (r *recordingTarget) SendMouseEvent(ev schemas.MouseEvent)     { r.add("mouse", ev) }
func (r *recordingTarget) SendWheelEvent(ev schemas.WheelEvent)     { r.add("wheel", ev) }
func (r *recordingTarget) SendKeyboardEvent(ev schemas.KeyboardEvent, commands []schemas.EditCommand) {
	r.add("keyboard", commands)
}
func (r *recordingTarget) SendMoveCaret(p schemas.Point)         { r.add("caret", p) }
func (r *recordingTarget) SendSelectRange(s schemas.SelectRange) { r.add("select", s) }
func (r *recordingTarget) OnHasTouchEventHandlers(has bool)      { r.add("handlers", has) }
func (r *recordingTarget) FlingHasBeenHalted()                   { r.add("halted", nil) }

// inlinePoster runs closures on the posting goroutine.
type inlinePoster struct {
	closed bool
}

func (p *inlinePoster) Post(fn func()) bool {
	if p.closed {
		return false
	}
	fn()
	return true
}

// fakeLoop runs Do closures inline.
type fakeLoop struct {
	err error
}

func (l *fakeLoop) Do(ctx context.Context, fn func()) error {
	if l.err != nil {
		return l.err
	}
	fn()
	return nil
}

type countdownIdler struct{ left int }

func (c *countdownIdler) Idle() bool {
	if c.left == 0 {
		return true
	}
	c.left--
	return false
}
