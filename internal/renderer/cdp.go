// internal/renderer/cdp.go
package renderer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/inputpipe/api/schemas"
	"github.com/xkilldash9x/inputpipe/internal/config"
)

// CDPLatencyComponent is stamped on acks once the browser has taken the event.
const CDPLatencyComponent = "cdp_dispatch"

// ErrQueueFull is logged when the dispatch queue cannot take another job.
var ErrQueueFull = errors.New("cdp dispatch queue is full")

const dispatchQueueSize = 1024

// RunActionsFunc executes chromedp actions against the browser.
type RunActionsFunc func(ctx context.Context, actions ...chromedp.Action) error

type dispatchJob struct {
	label   string
	actions []chromedp.Action
	resolve func(sink AckSink, err error) error
}

// CDP dispatches input into a browser over the DevTools protocol. Send*
// calls come from the pipeline goroutine and only enqueue; a single worker
// runs the protocol calls in order and posts the acks back.
type CDP struct {
	cfg     config.CDPRendererConfig
	poster  Poster
	logger  *zap.Logger
	run     RunActionsFunc
	jobs    chan dispatchJob
	sink    AckSink
	now     func() time.Time
	pending []string
}

var _ Bindable = (*CDP)(nil)

// NewCDP creates a renderer that executes its actions through run.
func NewCDP(cfg config.CDPRendererConfig, run RunActionsFunc, poster Poster, logger *zap.Logger) *CDP {
	return &CDP{
		cfg:    cfg,
		poster: poster,
		logger: logger.Named("cdp_renderer"),
		run:    run,
		jobs:   make(chan dispatchJob, dispatchQueueSize),
		now:    time.Now,
	}
}

// Bind sets the destination of acks.
func (c *CDP) Bind(sink AckSink) { c.sink = sink }

// Run is the dispatch worker. It returns when ctx is done.
func (c *CDP) Run(ctx context.Context) error {
	c.logger.Debug("CDP dispatch worker started.")
	defer c.logger.Debug("CDP dispatch worker stopped.")
	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-c.jobs:
			err := c.dispatch(ctx, job)
			if ctx.Err() != nil {
				return nil
			}
			c.poster.Post(func() { c.resolve(job, err) })
		}
	}
}

func (c *CDP) dispatch(ctx context.Context, job dispatchJob) error {
	if len(job.actions) == 0 {
		return nil
	}
	opCtx := ctx
	if c.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}
	if err := c.run(opCtx, job.actions...); err != nil {
		if opCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("dispatching %s timed out after %v: %w", job.label, c.cfg.CallTimeout, opCtx.Err())
		}
		return fmt.Errorf("dispatching %s: %w", job.label, err)
	}
	return nil
}

func (c *CDP) resolve(job dispatchJob, err error) {
	if err != nil {
		c.logger.Warn("Browser rejected input event.", zap.String("type", job.label), zap.Error(err))
	}
	if job.resolve == nil {
		return
	}
	if c.sink == nil {
		c.logger.Warn("Dropping ack; renderer is not bound.", zap.String("type", job.label))
		return
	}
	if ackErr := job.resolve(c.sink, err); ackErr != nil {
		c.logger.Debug("Ack rejected by the router.", zap.String("type", job.label), zap.Error(ackErr))
	}
}

func (c *CDP) enqueue(job dispatchJob) {
	select {
	case c.jobs <- job:
	default:
		// The pipeline never blocks on the browser. The event is resolved
		// locally so its queue keeps moving.
		c.logger.Error("Dropping input event.", zap.String("type", job.label), zap.Error(ErrQueueFull))
		c.resolve(job, ErrQueueFull)
	}
}

// ackWith builds a resolver that acks typ: CONSUMED when the browser took the
// event, NOT_CONSUMED when it did not.
func (c *CDP) ackWith(typ schemas.EventType) func(AckSink, error) error {
	return func(sink AckSink, err error) error {
		state := schemas.AckConsumed
		if err != nil {
			state = schemas.AckNotConsumed
		}
		var latency schemas.LatencyInfo
		latency.AddComponent(CDPLatencyComponent, c.now())
		return sink.OnInputEventAck(schemas.InputEventAck{Type: typ, State: state, Latency: latency})
	}
}

func (c *CDP) SendGestureEvent(ev schemas.GestureEvent) {
	var resolve func(AckSink, error) error
	if !schemas.IgnoresAckDisposition(ev.Type) {
		resolve = c.ackWith(ev.Type)
	}
	c.enqueue(dispatchJob{label: string(ev.Type), actions: gestureActions(ev), resolve: resolve})
}

func (c *CDP) SendTouchEvent(ev schemas.TouchEvent) {
	c.enqueue(dispatchJob{label: string(ev.Type), actions: []chromedp.Action{touchAction(ev)}, resolve: c.ackWith(ev.Type)})
}

func (c *CDP) SendMouseEvent(ev schemas.MouseEvent) {
	p := input.DispatchMouseEvent(input.MouseType(ev.Type), ev.X, ev.Y).
		WithButton(input.MouseButton(ev.Button)).
		WithButtons(ev.Buttons).
		WithClickCount(int64(ev.ClickCount)).
		WithModifiers(input.Modifier(ev.Modifiers))
	c.enqueue(dispatchJob{label: string(ev.Type), actions: []chromedp.Action{p}, resolve: c.ackWith(ev.Type)})
}

func (c *CDP) SendWheelEvent(ev schemas.WheelEvent) {
	p := input.DispatchMouseEvent(input.MouseType(schemas.MouseWheel), ev.X, ev.Y).
		WithDeltaX(ev.DeltaX).
		WithDeltaY(ev.DeltaY).
		WithModifiers(input.Modifier(ev.Modifiers))
	c.enqueue(dispatchJob{label: string(schemas.MouseWheel), actions: []chromedp.Action{p}, resolve: c.ackWith(schemas.MouseWheel)})
}

// SendEditCommands holds the commands until the next key event, which
// carries them to the browser.
func (c *CDP) SendEditCommands(commands []schemas.EditCommand) {
	for _, cmd := range commands {
		c.pending = append(c.pending, cmd.Name)
	}
}

func (c *CDP) SendKeyboardEvent(ev schemas.KeyboardEvent) {
	p := input.DispatchKeyEvent(input.KeyType(ev.Type)).
		WithKey(ev.Key).
		WithCode(ev.Code).
		WithModifiers(input.Modifier(ev.Modifiers))
	if ev.Text != "" {
		p = p.WithText(ev.Text).WithUnmodifiedText(ev.Text)
	}
	if len(c.pending) > 0 {
		p = p.WithCommands(c.pending)
		c.pending = nil
	}
	c.enqueue(dispatchJob{label: string(ev.Type), actions: []chromedp.Action{p}, resolve: c.ackWith(ev.Type)})
}

// SendMoveCaret places the caret with a synthetic tap at p.
func (c *CDP) SendMoveCaret(p schemas.Point) {
	left := input.MouseButton(schemas.ButtonLeft)
	c.enqueue(dispatchJob{
		label: "moveCaret",
		actions: []chromedp.Action{
			input.DispatchMouseEvent(input.MouseType(schemas.MousePress), p.X, p.Y).WithButton(left).WithClickCount(1),
			input.DispatchMouseEvent(input.MouseType(schemas.MouseRelease), p.X, p.Y).WithButton(left).WithClickCount(1),
		},
		resolve: func(sink AckSink, _ error) error { return sink.OnMoveCaretAck() },
	})
}

// SendSelectRange drags from the start point to the end point.
func (c *CDP) SendSelectRange(r schemas.SelectRange) {
	left := input.MouseButton(schemas.ButtonLeft)
	c.enqueue(dispatchJob{
		label: "selectRange",
		actions: []chromedp.Action{
			input.DispatchMouseEvent(input.MouseType(schemas.MousePress), r.Start.X, r.Start.Y).WithButton(left).WithButtons(1).WithClickCount(1),
			input.DispatchMouseEvent(input.MouseType(schemas.MouseMove), r.End.X, r.End.Y).WithButton(left).WithButtons(1),
			input.DispatchMouseEvent(input.MouseType(schemas.MouseRelease), r.End.X, r.End.Y).WithButton(left).WithClickCount(1),
		},
		resolve: func(sink AckSink, _ error) error { return sink.OnSelectRangeAck() },
	})
}

func gestureSource(d schemas.SourceDevice) input.GestureSourceType {
	if d == schemas.SourceTouchpad {
		return input.GestureSourceType("mouse")
	}
	return input.GestureSourceType("touch")
}

// gestureActions maps a gesture onto the protocol's synthetic gestures. Kinds
// with no protocol counterpart dispatch nothing and are acked as taken.
func gestureActions(ev schemas.GestureEvent) []chromedp.Action {
	src := gestureSource(ev.SourceDevice)
	switch ev.Type {
	case schemas.GestureScrollUpdate:
		// The protocol scrolls content with the finger, so distances are
		// the opposite of the scroll delta.
		return []chromedp.Action{input.SynthesizeScrollGesture(ev.X, ev.Y).
			WithXDistance(-ev.ScrollUpdate.DeltaX).
			WithYDistance(-ev.ScrollUpdate.DeltaY).
			WithGestureSourceType(src)}
	case schemas.GesturePinchUpdate:
		return []chromedp.Action{input.SynthesizePinchGesture(ev.X, ev.Y, ev.PinchUpdate.Scale).WithGestureSourceType(src)}
	case schemas.GestureTap:
		return []chromedp.Action{input.SynthesizeTapGesture(ev.X, ev.Y).WithTapCount(1).WithGestureSourceType(src)}
	case schemas.GestureDoubleTap:
		return []chromedp.Action{input.SynthesizeTapGesture(ev.X, ev.Y).WithTapCount(2).WithGestureSourceType(src)}
	default:
		return nil
	}
}

// touchAction builds a touch dispatch. End and cancel frames carry no points;
// the others list every point still down.
func touchAction(ev schemas.TouchEvent) *input.DispatchTouchEventParams {
	var points []*input.TouchPoint
	if ev.Type == schemas.TouchStart || ev.Type == schemas.TouchMove {
		for _, p := range ev.Points {
			if p.State == schemas.TouchPointReleased || p.State == schemas.TouchPointCancelled {
				continue
			}
			points = append(points, &input.TouchPoint{X: p.X, Y: p.Y, ID: float64(p.ID)})
		}
	}
	if points == nil {
		points = []*input.TouchPoint{}
	}
	return input.DispatchTouchEvent(input.TouchType(ev.Type), points).WithModifiers(input.Modifier(ev.Modifiers))
}

// Browser is a chromedp browser context input is dispatched into.
type Browser struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewBrowser attaches to cfg.RemoteURL, or launches a browser when it is
// empty, and opens cfg.StartURL.
func NewBrowser(ctx context.Context, cfg config.CDPRendererConfig, logger *zap.Logger) (*Browser, error) {
	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if cfg.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, cfg.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("touch-events", "enabled"),
		)
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	}
	log := logger.Named("browser")
	taskCtx, taskCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(log.Sugar().Debugf))
	cancel := func() {
		taskCancel()
		allocCancel()
	}

	if err := chromedp.Run(taskCtx, chromedp.Navigate(cfg.StartURL)); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open %s: %w", cfg.StartURL, err)
	}
	log.Info("Browser ready.", zap.String("url", cfg.StartURL), zap.Bool("remote", cfg.RemoteURL != ""))
	return &Browser{ctx: taskCtx, cancel: cancel}, nil
}

// RunActions runs actions in the browser. The browser's own lifetime and ctx
// both bound the call.
func (b *Browser) RunActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(b.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// Close shuts the browser down.
func (b *Browser) Close() { b.cancel() }
