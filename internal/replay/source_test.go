package replay

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const sampleTrace = `# tap on a button
{"kind":"gesture","offset_ms":0,"gesture":{"type":"gestureTapDown"}}

{"kind":"gesture","offset_ms":90,"gesture":{"type":"gestureTap"}}
{"kind":"mouse","mouse":{"type":"keyDown"}}
{"kind":"fling_halted","offset_ms":120}`

func writeTrace(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func collect(t *testing.T, out <-chan Record, n int) []Record {
	t.Helper()
	var recs []Record
	for len(recs) < n {
		select {
		case rec := <-out:
			recs = append(recs, rec)
		case <-time.After(5 * time.Second):
			t.Fatalf("got %d of %d records", len(recs), n)
		}
	}
	return recs
}

func TestFileSourceReadsWholeTrace(t *testing.T) {
	src := NewFileSource(writeTrace(t, sampleTrace), false, zaptest.NewLogger(t))
	out := make(chan Record, 16)
	require.NoError(t, src.Stream(context.Background(), out))
	close(out)

	var kinds []Kind
	for rec := range out {
		kinds = append(kinds, rec.Kind)
	}
	assert.Equal(t, []Kind{KindGesture, KindGesture, KindFlingHalted}, kinds, "the final line needs no newline")
	assert.Equal(t, 1, src.Skipped())
}

func TestFileSourceMissingFile(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "absent.jsonl"), false, zaptest.NewLogger(t))
	err := src.Stream(context.Background(), make(chan Record, 1))
	assert.ErrorContains(t, err, "failed to open trace")
}

func TestFileSourceFollowsAppends(t *testing.T) {
	path := writeTrace(t, `{"kind":"fling_halted"}`+"\n")
	src := NewFileSource(path, true, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Record, 4)
	errCh := make(chan error, 1)
	go func() { errCh <- src.Stream(ctx, out) }()

	collect(t, out, 1)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString(`{"kind":"wheel","wheel":{"delta_y":1}}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	recs := collect(t, out, 1)
	assert.Equal(t, KindWheel, recs[0].Kind)

	cancel()
	require.NoError(t, <-errCh)
}
