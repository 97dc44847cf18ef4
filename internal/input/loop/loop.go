// internal/input/loop/loop.go
package loop

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/inputpipe/internal/input/clock"
)

// ErrClosed is returned by Do once the loop has stopped.
var ErrClosed = errors.New("event loop is closed")

// Loop runs closures one at a time on a single goroutine. All input pipeline
// state is owned by that goroutine, so the pipeline itself takes no locks.
type Loop struct {
	logger *zap.Logger

	mu      sync.Mutex
	tasks   []func()
	closed  bool
	wake    chan struct{}
	stopped chan struct{}
}

// New creates a loop. Call Run to start processing.
func New(logger *zap.Logger) *Loop {
	return &Loop{
		logger:  logger.Named("event_loop"),
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
}

// Post schedules fn. It never blocks and is safe from any goroutine,
// including the loop itself. It reports false if the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-l.stopped:
		// The task may have run just before the loop stopped.
		select {
		case <-done:
			return nil
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes posted closures until ctx is cancelled. Closures still queued
// at that point are dropped.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Debug("Event loop started.")
	defer func() {
		l.mu.Lock()
		l.closed = true
		dropped := len(l.tasks)
		l.tasks = nil
		l.mu.Unlock()
		close(l.stopped)
		l.logger.Debug("Event loop stopped.", zap.Int("dropped_tasks", dropped))
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.wake:
		}

		for {
			if ctx.Err() != nil {
				return nil
			}
			fn, ok := l.next()
			if !ok {
				break
			}
			l.runTask(fn)
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.stopped }

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.tasks) == 0 {
		return nil, false
	}
	fn := l.tasks[0]
	l.tasks[0] = nil
	l.tasks = l.tasks[1:]
	return fn, true
}

func (l *Loop) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Recovered from panic in event loop task.",
				zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	fn()
}

// Now implements clock.Clock.
func (l *Loop) Now() time.Time { return time.Now() }

// AfterFunc implements clock.Clock. f runs on the loop, never on the timer goroutine.
func (l *Loop) AfterFunc(d time.Duration, f func()) clock.Timer {
	return time.AfterFunc(d, func() { l.Post(f) })
}

var _ clock.Clock = (*Loop)(nil)
