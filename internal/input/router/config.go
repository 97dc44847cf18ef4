// internal/input/router/config.go
package router

import (
	"github.com/xkilldash9x/inputpipe/internal/config"
	"github.com/xkilldash9x/inputpipe/internal/input/gesture"
	"github.com/xkilldash9x/inputpipe/internal/input/tapsuppression"
	"github.com/xkilldash9x/inputpipe/internal/input/touch"
)

// Config bundles the settings of the router and the queues it owns.
type Config struct {
	Gesture gesture.Config
	Touch   touch.Config
	// TouchCancelOnScroll hands the touch sequence over to a touchscreen
	// scroll once it begins.
	TouchCancelOnScroll bool
	// HasTouchHandlers is the initial touch handler state of the page.
	HasTouchHandlers bool
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		Gesture:             gesture.DefaultConfig(),
		Touch:               touch.DefaultConfig(),
		TouchCancelOnScroll: true,
		HasTouchHandlers:    true,
	}
}

// NewConfig derives the router settings from the application's input section.
func NewConfig(in config.InputConfig) Config {
	return Config{
		Gesture: gesture.Config{
			DebounceEnabled:  in.DebounceEnabled,
			DebounceInterval: in.DebounceInterval(),
			Touchscreen:      tapSuppressionConfig(in.Touchscreen),
			Touchpad:         tapSuppressionConfig(in.Touchpad),
		},
		Touch: touch.Config{
			AckTimeoutEnabled: in.AckTimeoutEnabled,
			AckTimeoutDelay:   in.AckTimeoutDelay(),
		},
		TouchCancelOnScroll: in.TouchCancelOnScroll,
		HasTouchHandlers:    in.HasTouchHandlers,
	}
}

func tapSuppressionConfig(c config.TapSuppressionConfig) tapsuppression.Config {
	return tapsuppression.Config{
		Enabled:         c.Enabled,
		MaxCancelToDown: c.MaxCancelToDown(),
		MaxTapGap:       c.MaxTapGap(),
	}
}
