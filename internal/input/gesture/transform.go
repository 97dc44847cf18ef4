// internal/input/gesture/transform.go
package gesture

import (
	"github.com/xkilldash9x/inputpipe/api/schemas"
)

// Transform is the net effect of a run of scroll and pinch updates on the
// viewport's scroll offset, as the affine map p -> Scale*p + Translation.
// A scroll by d translates the offset by d; a pinch by s around anchor a
// scales the offset by s and shifts it by (s-1)*a so the anchor stays put.
//
// The zero value is not the identity; use Identity.
type Transform struct {
	Translation Vector2D
	Scale       float64
}

// Identity is the transform that leaves every offset unchanged.
func Identity() Transform {
	return Transform{Scale: 1}
}

// ScrollTransform is the effect of scrolling by delta.
func ScrollTransform(delta Vector2D) Transform {
	return Transform{Translation: delta, Scale: 1}
}

// PinchTransform is the effect of zooming by scale around anchor.
func PinchTransform(scale float64, anchor Vector2D) Transform {
	return Transform{Translation: anchor.Mul(scale - 1), Scale: scale}
}

// TransformForEvent returns the transform of a ScrollUpdate or PinchUpdate.
// Other kinds have no effect.
func TransformForEvent(ev schemas.GestureEvent) Transform {
	switch ev.Type {
	case schemas.GestureScrollUpdate:
		return ScrollTransform(Vector2D{X: ev.ScrollUpdate.DeltaX, Y: ev.ScrollUpdate.DeltaY})
	case schemas.GesturePinchUpdate:
		return PinchTransform(ev.PinchUpdate.Scale, Vector2D{X: ev.X, Y: ev.Y})
	default:
		return Identity()
	}
}

// Then returns the transform that applies t first and next afterwards.
func (t Transform) Then(next Transform) Transform {
	return Transform{
		Translation: t.Translation.Mul(next.Scale).Add(next.Translation),
		Scale:       t.Scale * next.Scale,
	}
}

// Apply maps p through the transform.
func (t Transform) Apply(p Vector2D) Vector2D {
	return p.Mul(t.Scale).Add(t.Translation)
}

// IsIdentity reports whether t is exactly the identity.
func (t Transform) IsIdentity() bool {
	return t.Scale == 1 && t.Translation.IsZero()
}

// Decompose splits t into a scroll followed by a pinch around anchor, the
// order in which the renderer applies a ScrollUpdate/PinchUpdate pair.
// Composing ScrollTransform(delta) with PinchTransform(scale, anchor) yields t.
func (t Transform) Decompose(anchor Vector2D) (delta Vector2D, scale float64) {
	scale = t.Scale
	if scale == 0 {
		return Vector2D{}, 0
	}
	delta = t.Translation.Add(anchor).Div(scale).Sub(anchor)
	return delta, scale
}
