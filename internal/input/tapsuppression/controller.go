// internal/input/tapsuppression/controller.go
package tapsuppression

import (
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/inputpipe/internal/input/clock"
)

// State of the suppression state machine.
type State int

const (
	// StateNothing means no fling cancel is pending and taps pass through.
	StateNothing State = iota
	// StateFlingCancelInProgress means a fling cancel was sent and is awaiting its ack.
	StateFlingCancelInProgress
	// StateTapDownStashed means a tap down is held back until the tap ends or the gap expires.
	StateTapDownStashed
	// StateLastCancelStoppedFling means the last cancel stopped a fling and the suppression window is open.
	StateLastCancelStoppedFling
)

func (s State) String() string {
	switch s {
	case StateNothing:
		return "nothing"
	case StateFlingCancelInProgress:
		return "fling_cancel_in_progress"
	case StateTapDownStashed:
		return "tap_down_stashed"
	case StateLastCancelStoppedFling:
		return "last_cancel_stopped_fling"
	default:
		return "invalid"
	}
}

// Config holds the timing windows for one device class.
type Config struct {
	Enabled bool
	// MaxCancelToDown is how long after a fling-stopping cancel a tap down is
	// still considered part of the cancelling touch.
	MaxCancelToDown time.Duration
	// MaxTapGap is how long a stashed tap down waits for its tap end.
	MaxTapGap time.Duration
}

// DefaultConfig returns the stock windows.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		MaxCancelToDown: 400 * time.Millisecond,
		MaxTapGap:       200 * time.Millisecond,
	}
}

// client is implemented by the device variants; the controller tells it what
// to do with whatever tap down it has stashed.
type client interface {
	dropStashedTapDown()
	forwardStashedTapDown()
}

// Controller is the device-agnostic suppression state machine. It never
// fails: an impossible sequence is logged and treated as a no-op.
type Controller struct {
	cfg             Config
	client          client
	clock           clock.Clock
	logger          *zap.Logger
	state           State
	flingCancelTime time.Time
	tapDownTimer    *clock.OneShot
}

func newController(cfg Config, c client, clk clock.Clock, logger *zap.Logger) *Controller {
	ctrl := &Controller{
		cfg:    cfg,
		client: c,
		clock:  clk,
		logger: logger,
	}
	ctrl.tapDownTimer = clock.NewOneShot(clk, cfg.MaxTapGap, ctrl.tapDownTimerExpired)
	return ctrl
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// GestureFlingCancel records that a fling cancel was sent.
func (c *Controller) GestureFlingCancel() {
	if !c.cfg.Enabled {
		return
	}
	switch c.state {
	case StateNothing, StateFlingCancelInProgress, StateLastCancelStoppedFling:
		c.state = StateFlingCancelInProgress
	case StateTapDownStashed:
		// The stash belongs to an earlier cancel; keep waiting for its tap end.
	}
}

// GestureFlingCancelAck records the renderer's verdict on the cancel.
// processed is true when the cancel actually stopped a fling.
func (c *Controller) GestureFlingCancelAck(processed bool) {
	if !c.cfg.Enabled {
		return
	}
	switch c.state {
	case StateNothing:
		c.logger.Debug("Fling cancel ack without a pending cancel.")
	case StateFlingCancelInProgress:
		if processed {
			c.flingCancelTime = c.clock.Now()
			c.state = StateLastCancelStoppedFling
		} else {
			c.state = StateNothing
		}
	case StateTapDownStashed:
		if !processed {
			c.tapDownTimer.Stop()
			c.state = StateNothing
			c.client.forwardStashedTapDown()
		}
		// Otherwise the tap end or the gap timer releases the stash.
	case StateLastCancelStoppedFling:
	}
}

// shouldDeferTapDown decides whether a tap down belongs to the touch that
// cancelled a fling. A true result means the caller must stash the event.
func (c *Controller) shouldDeferTapDown() bool {
	if !c.cfg.Enabled {
		return false
	}
	switch c.state {
	case StateFlingCancelInProgress:
		c.state = StateTapDownStashed
		c.tapDownTimer.Start()
		return true
	case StateLastCancelStoppedFling:
		if c.clock.Now().Sub(c.flingCancelTime) < c.cfg.MaxCancelToDown {
			c.state = StateTapDownStashed
			c.tapDownTimer.Start()
			return true
		}
		c.state = StateNothing
		return false
	case StateTapDownStashed:
		c.logger.Warn("Tap down received while another is stashed; forwarding it.")
		return false
	default:
		return false
	}
}

// shouldSuppressTapEnd decides whether the end of a tap is dropped.
func (c *Controller) shouldSuppressTapEnd() bool {
	if !c.cfg.Enabled {
		return false
	}
	switch c.state {
	case StateTapDownStashed:
		c.state = StateNothing
		c.tapDownTimer.Stop()
		c.client.dropStashedTapDown()
		return true
	case StateLastCancelStoppedFling:
		c.state = StateNothing
		return false
	default:
		return false
	}
}

func (c *Controller) tapDownTimerExpired() {
	if c.state != StateTapDownStashed {
		c.logger.Debug("Tap gap timer fired outside the stashed state.", zap.Stringer("state", c.state))
		return
	}
	c.state = StateNothing
	c.client.forwardStashedTapDown()
}
