// internal/replay/source.go
package replay

import (
	"context"
	"fmt"
	"strings"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"
)

// Source produces trace records. Stream blocks until the source is exhausted
// or ctx is done and never closes out.
type Source interface {
	Stream(ctx context.Context, out chan<- Record) error
}

// FileSource reads a JSON-lines trace file, optionally following it as it grows.
type FileSource struct {
	path    string
	follow  bool
	logger  *zap.Logger
	skipped int
}

// NewFileSource creates a source for path.
func NewFileSource(path string, follow bool, logger *zap.Logger) *FileSource {
	return &FileSource{path: path, follow: follow, logger: logger.Named("trace_file")}
}

// Skipped returns how many malformed lines were dropped.
func (s *FileSource) Skipped() int { return s.skipped }

// Stream emits every valid line. Blank lines and lines starting with '#' are
// ignored; malformed lines are logged and skipped.
func (s *FileSource) Stream(ctx context.Context, out chan<- Record) error {
	t, err := tail.TailFile(s.path, tail.Config{
		Follow:    s.follow,
		ReOpen:    s.follow,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to open trace %s: %w", s.path, err)
	}
	defer func() {
		_ = t.Stop()
		t.Cleanup()
	}()
	s.logger.Info("Reading trace.", zap.String("path", s.path), zap.Bool("follow", s.follow))

	lineNo := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				s.logger.Info("Trace exhausted.", zap.Int("lines", lineNo), zap.Int("skipped", s.skipped))
				return nil
			}
			lineNo++
			if line.Err != nil {
				s.logger.Warn("Error reading trace.", zap.Error(line.Err))
				continue
			}
			text := strings.TrimSpace(line.Text)
			if text == "" || strings.HasPrefix(text, "#") {
				continue
			}
			rec, err := Decode([]byte(text))
			if err != nil {
				s.skipped++
				s.logger.Warn("Skipping trace line.", zap.Int("line", lineNo), zap.Error(err))
				continue
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
