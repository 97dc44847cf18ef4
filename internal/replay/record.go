// internal/replay/record.go
package replay

import (
	"errors"
	"fmt"
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/inputpipe/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrMalformedRecord is returned for a trace line that cannot be replayed.
var ErrMalformedRecord = errors.New("malformed trace record")

// Kind names what a record asks the pipeline to do.
type Kind string

const (
	KindGesture       Kind = "gesture"
	KindTouch         Kind = "touch"
	KindMouse         Kind = "mouse"
	KindWheel         Kind = "wheel"
	KindKeyboard      Kind = "keyboard"
	KindMoveCaret     Kind = "move_caret"
	KindSelectRange   Kind = "select_range"
	KindTouchHandlers Kind = "touch_handlers"
	KindFlingHalted   Kind = "fling_halted"
)

// Record is one line of a JSON-lines input trace. Only the payload matching
// Kind is read.
type Record struct {
	Kind Kind `json:"kind"`
	// OffsetMs is the time since the start of the trace; paced replays
	// wait for it.
	OffsetMs int64 `json:"offset_ms,omitempty"`

	Gesture          *schemas.GestureEvent  `json:"gesture,omitempty"`
	Touch            *schemas.TouchEvent    `json:"touch,omitempty"`
	Mouse            *schemas.MouseEvent    `json:"mouse,omitempty"`
	Wheel            *schemas.WheelEvent    `json:"wheel,omitempty"`
	Keyboard         *schemas.KeyboardEvent `json:"keyboard,omitempty"`
	Commands         []schemas.EditCommand  `json:"commands,omitempty"`
	Caret            *schemas.Point         `json:"caret,omitempty"`
	Selection        *schemas.SelectRange   `json:"selection,omitempty"`
	HasTouchHandlers *bool                  `json:"has_touch_handlers,omitempty"`
}

// Offset returns OffsetMs as a duration.
func (r Record) Offset() time.Duration { return time.Duration(r.OffsetMs) * time.Millisecond }

// Target is the part of the router a record can drive.
type Target interface {
	SendGestureEvent(ev schemas.GestureEvent)
	SendTouchEvent(ev schemas.TouchEvent)
	SendMouseEvent(ev schemas.MouseEvent)
	SendWheelEvent(ev schemas.WheelEvent)
	SendKeyboardEvent(ev schemas.KeyboardEvent, commands []schemas.EditCommand)
	SendMoveCaret(p schemas.Point)
	SendSelectRange(r schemas.SelectRange)
	OnHasTouchEventHandlers(has bool)
	FlingHasBeenHalted()
}

// Apply hands the record to t. The record must have been validated.
func (r Record) Apply(t Target) {
	switch r.Kind {
	case KindGesture:
		t.SendGestureEvent(*r.Gesture)
	case KindTouch:
		t.SendTouchEvent(*r.Touch)
	case KindMouse:
		t.SendMouseEvent(*r.Mouse)
	case KindWheel:
		t.SendWheelEvent(*r.Wheel)
	case KindKeyboard:
		t.SendKeyboardEvent(*r.Keyboard, r.Commands)
	case KindMoveCaret:
		t.SendMoveCaret(*r.Caret)
	case KindSelectRange:
		t.SendSelectRange(*r.Selection)
	case KindTouchHandlers:
		t.OnHasTouchEventHandlers(*r.HasTouchHandlers)
	case KindFlingHalted:
		t.FlingHasBeenHalted()
	}
}

// Decode parses and validates one trace line. Events without a trace get a
// fresh one, so trace ids follow trace order.
func Decode(line []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(line, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	if err := rec.normalize(); err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	return rec, nil
}

// Encode writes rec as a single line.
func Encode(w io.Writer, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", rec.Kind, err)
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

func (r *Record) normalize() error {
	if r.OffsetMs < 0 {
		return fmt.Errorf("negative offset %d", r.OffsetMs)
	}
	switch r.Kind {
	case KindGesture:
		if r.Gesture == nil {
			return missing(r.Kind)
		}
		if r.Gesture.Type.Category() != schemas.CategoryGesture {
			return wrongType(r.Kind, r.Gesture.Type)
		}
		if r.Gesture.SourceDevice == "" {
			r.Gesture.SourceDevice = schemas.SourceTouchscreen
		}
		stamp(&r.Gesture.Latency)
	case KindTouch:
		if r.Touch == nil || len(r.Touch.Points) == 0 {
			return missing(r.Kind)
		}
		if r.Touch.Type == "" {
			r.Touch.Type = schemas.DeriveTouchType(r.Touch.Points)
		}
		if r.Touch.Type.Category() != schemas.CategoryTouch {
			return wrongType(r.Kind, r.Touch.Type)
		}
		stamp(&r.Touch.Latency)
	case KindMouse:
		if r.Mouse == nil {
			return missing(r.Kind)
		}
		if r.Mouse.Type.Category() != schemas.CategoryMouse {
			return wrongType(r.Kind, r.Mouse.Type)
		}
		stamp(&r.Mouse.Latency)
	case KindWheel:
		if r.Wheel == nil {
			return missing(r.Kind)
		}
		stamp(&r.Wheel.Latency)
	case KindKeyboard:
		if r.Keyboard == nil {
			return missing(r.Kind)
		}
		if r.Keyboard.Type.Category() != schemas.CategoryKeyboard {
			return wrongType(r.Kind, r.Keyboard.Type)
		}
		stamp(&r.Keyboard.Latency)
	case KindMoveCaret:
		if r.Caret == nil {
			return missing(r.Kind)
		}
	case KindSelectRange:
		if r.Selection == nil {
			return missing(r.Kind)
		}
	case KindTouchHandlers:
		if r.HasTouchHandlers == nil {
			return missing(r.Kind)
		}
	case KindFlingHalted:
	default:
		return fmt.Errorf("unknown kind %q", r.Kind)
	}
	return nil
}

func stamp(l *schemas.LatencyInfo) {
	if !l.Valid() {
		*l = schemas.NewLatencyInfo()
	}
}

func missing(k Kind) error { return fmt.Errorf("%s record without a payload", k) }

func wrongType(k Kind, t schemas.EventType) error {
	return fmt.Errorf("%s record with event type %q", k, t)
}
