package replay

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/inputpipe/api/schemas"
)

func TestDecode(t *testing.T) {
	t.Run("touch type is derived from its points", func(t *testing.T) {
		rec, err := Decode([]byte(`{"kind":"touch","offset_ms":16,"touch":{"points":[{"id":1,"x":5,"y":6,"state":"pressed"}]}}`))
		require.NoError(t, err)
		assert.Equal(t, schemas.TouchStart, rec.Touch.Type)
		assert.True(t, rec.Touch.Latency.Valid())
		assert.Equal(t, int64(16), rec.Offset().Milliseconds())
	})

	t.Run("gesture defaults to the touchscreen", func(t *testing.T) {
		rec, err := Decode([]byte(`{"kind":"gesture","gesture":{"type":"gestureScrollUpdate","scroll_update":{"delta_y":-12.5}}}`))
		require.NoError(t, err)
		assert.Equal(t, schemas.SourceTouchscreen, rec.Gesture.SourceDevice)
		assert.Equal(t, -12.5, rec.Gesture.ScrollUpdate.DeltaY)
	})

	t.Run("trace ids follow decode order", func(t *testing.T) {
		a, err := Decode([]byte(`{"kind":"mouse","mouse":{"type":"mouseMoved","x":1}}`))
		require.NoError(t, err)
		b, err := Decode([]byte(`{"kind":"wheel","wheel":{"delta_y":3}}`))
		require.NoError(t, err)
		assert.Less(t, a.Mouse.Latency.TraceID, b.Wheel.Latency.TraceID)
	})

	t.Run("recorded traces are kept", func(t *testing.T) {
		rec, err := Decode([]byte(`{"kind":"keyboard","keyboard":{"type":"keyUp","key":"a","latency":{"trace_id":42}},"commands":[{"name":"undo"}]}`))
		require.NoError(t, err)
		assert.Equal(t, int64(42), rec.Keyboard.Latency.TraceID)
		assert.Equal(t, []schemas.EditCommand{{Name: "undo"}}, rec.Commands)
	})

	errCases := map[string]string{
		"not json":          `{"kind":`,
		"unknown kind":      `{"kind":"pen"}`,
		"missing payload":   `{"kind":"mouse"}`,
		"no touch points":   `{"kind":"touch","touch":{"points":[]}}`,
		"wrong gesture":     `{"kind":"gesture","gesture":{"type":"touchStart"}}`,
		"wrong mouse":       `{"kind":"mouse","mouse":{"type":"keyDown"}}`,
		"wrong keyboard":    `{"kind":"keyboard","keyboard":{"type":"mouseMoved"}}`,
		"negative offset":   `{"kind":"fling_halted","offset_ms":-1}`,
		"handlers no value": `{"kind":"touch_handlers"}`,
	}
	for name, line := range errCases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(line))
			assert.ErrorIs(t, err, ErrMalformedRecord)
		})
	}
}

func TestEncodeWritesOneLine(t *testing.T) {
	has := false
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Record{Kind: KindTouchHandlers, OffsetMs: 5, HasTouchHandlers: &has}))
	require.NoError(t, Encode(&buf, Record{Kind: KindMoveCaret, Caret: &schemas.Point{X: 3, Y: 4}}))

	lines := bytes.Split(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), []byte{'\n'})
	require.Len(t, lines, 2)
	rec, err := Decode(lines[0])
	require.NoError(t, err)
	require.NotNil(t, rec.HasTouchHandlers)
	assert.False(t, *rec.HasTouchHandlers)
	assert.NotContains(t, string(lines[1]), "gesture", "empty payloads are omitted")
}

func TestApply(t *testing.T) {
	lines := []string{
		`{"kind":"gesture","gesture":{"type":"gestureTap"}}`,
		`{"kind":"touch","touch":{"points":[{"id":1,"state":"moved"}]}}`,
		`{"kind":"mouse","mouse":{"type":"mousePressed"}}`,
		`{"kind":"wheel","wheel":{}}`,
		`{"kind":"keyboard","keyboard":{"type":"char","text":"x"},"commands":[{"name":"insertText","value":"x"}]}`,
		`{"kind":"move_caret","caret":{"x":1,"y":2}}`,
		`{"kind":"select_range","selection":{"start":{"x":0,"y":0},"end":{"x":5,"y":0}}}`,
		`{"kind":"touch_handlers","has_touch_handlers":true}`,
		`{"kind":"fling_halted"}`,
	}
	target := &recordingTarget{}
	for _, line := range lines {
		rec, err := Decode([]byte(line))
		require.NoError(t, err, line)
		rec.Apply(target)
	}
	assert.Equal(t, []string{
		"gesture", "touch", "mouse", "wheel", "keyboard", "caret", "select", "handlers", "halted",
	}, target.snapshot())
}
