// internal/renderer/renderer.go
package renderer

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/inputpipe/api/schemas"
	"github.com/xkilldash9x/inputpipe/internal/input/router"
)

// AckSink receives the renderer's acks. The router implements it; every call
// must be made on the pipeline goroutine.
type AckSink interface {
	OnInputEventAck(ack schemas.InputEventAck) error
	OnMoveCaretAck() error
	OnSelectRangeAck() error
}

// Poster runs a closure on the pipeline goroutine. The event loop implements it.
type Poster interface {
	Post(fn func()) bool
}

// Bindable is a renderer that learns its AckSink after construction, since
// the router and the renderer reference each other.
type Bindable interface {
	router.Renderer
	Bind(sink AckSink)
}

var _ AckSink = (*router.Router)(nil)

// ParseDispositions maps category names to ack states.
func ParseDispositions(in map[string]string) (map[schemas.Category]schemas.AckState, error) {
	out := make(map[schemas.Category]schemas.AckState, len(in))
	for name, state := range in {
		cat, ok := categoryByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown event category %q", name)
		}
		s := schemas.AckState(strings.ToLower(state))
		if !s.Valid() {
			return nil, fmt.Errorf("invalid ack state %q for category %q", state, name)
		}
		out[cat] = s
	}
	return out, nil
}

func categoryByName(name string) (schemas.Category, bool) {
	for _, c := range []schemas.Category{
		schemas.CategoryGesture, schemas.CategoryTouch, schemas.CategoryMouse,
		schemas.CategoryWheel, schemas.CategoryKeyboard,
	} {
		if strings.EqualFold(c.String(), name) {
			return c, true
		}
	}
	return schemas.CategoryUnknown, false
}
