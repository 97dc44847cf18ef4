// File: internal/config/input_config.go
// This file defines InputConfig, the tunables of the input pipeline: gesture
// debouncing, the touch ack timeout, scroll driven touch cancellation and the
// tap suppression windows for touchscreens and touchpads.
//
// Durations are expressed in milliseconds so the same keys work as YAML
// integers, environment variables and CLI flags.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// InputConfig tunes the gesture filter, touch queue and router.
type InputConfig struct {
	DebounceEnabled    bool `mapstructure:"debounce_enabled" yaml:"debounce_enabled"`
	DebounceIntervalMs int  `mapstructure:"debounce_interval_ms" yaml:"debounce_interval_ms"`

	AckTimeoutEnabled bool `mapstructure:"ack_timeout_enabled" yaml:"ack_timeout_enabled"`
	AckTimeoutDelayMs int  `mapstructure:"ack_timeout_delay_ms" yaml:"ack_timeout_delay_ms"`

	// TouchCancelOnScroll cancels the touch sequence once a touchscreen
	// scroll begins.
	TouchCancelOnScroll bool `mapstructure:"touch_cancel_on_scroll" yaml:"touch_cancel_on_scroll"`
	// HasTouchHandlers is the initial answer to whether the page listens for
	// touches. Without handlers touches are resolved locally.
	HasTouchHandlers bool `mapstructure:"has_touch_handlers" yaml:"has_touch_handlers"`

	Touchscreen TapSuppressionConfig `mapstructure:"touchscreen" yaml:"touchscreen"`
	Touchpad    TapSuppressionConfig `mapstructure:"touchpad" yaml:"touchpad"`
}

// TapSuppressionConfig holds the windows in which a tap after a fling cancel
// is treated as part of the cancel.
type TapSuppressionConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled"`
	MaxCancelToDownMs int  `mapstructure:"max_cancel_to_down_ms" yaml:"max_cancel_to_down_ms"`
	MaxTapGapMs       int  `mapstructure:"max_tap_gap_ms" yaml:"max_tap_gap_ms"`
}

// DebounceInterval returns the debounce window as a duration.
func (c InputConfig) DebounceInterval() time.Duration {
	return time.Duration(c.DebounceIntervalMs) * time.Millisecond
}

// AckTimeoutDelay returns the touch ack timeout as a duration.
func (c InputConfig) AckTimeoutDelay() time.Duration {
	return time.Duration(c.AckTimeoutDelayMs) * time.Millisecond
}

// MaxCancelToDown returns the cancel-to-tap-down window as a duration.
func (c TapSuppressionConfig) MaxCancelToDown() time.Duration {
	return time.Duration(c.MaxCancelToDownMs) * time.Millisecond
}

// MaxTapGap returns how long a stashed tap down may wait for its tap end.
func (c TapSuppressionConfig) MaxTapGap() time.Duration {
	return time.Duration(c.MaxTapGapMs) * time.Millisecond
}

// setInputDefaults mirrors the stock pipeline behaviour.
func setInputDefaults(v *viper.Viper) {
	v.SetDefault("input.debounce_enabled", true)
	v.SetDefault("input.debounce_interval_ms", 30)
	v.SetDefault("input.ack_timeout_enabled", false)
	v.SetDefault("input.ack_timeout_delay_ms", 200)
	v.SetDefault("input.touch_cancel_on_scroll", true)
	v.SetDefault("input.has_touch_handlers", true)

	for _, device := range []string{"touchscreen", "touchpad"} {
		v.SetDefault("input."+device+".enabled", true)
		v.SetDefault("input."+device+".max_cancel_to_down_ms", 400)
		v.SetDefault("input."+device+".max_tap_gap_ms", 200)
	}
}

// Validate checks the input settings.
func (c *InputConfig) Validate() error {
	if c.DebounceEnabled && c.DebounceIntervalMs <= 0 {
		return fmt.Errorf("input.debounce_interval_ms must be positive when debouncing is enabled")
	}
	if c.AckTimeoutEnabled && c.AckTimeoutDelayMs <= 0 {
		return fmt.Errorf("input.ack_timeout_delay_ms must be positive when the ack timeout is enabled")
	}
	if err := c.Touchscreen.Validate(); err != nil {
		return fmt.Errorf("input.touchscreen: %w", err)
	}
	if err := c.Touchpad.Validate(); err != nil {
		return fmt.Errorf("input.touchpad: %w", err)
	}
	return nil
}

// Validate checks one tap suppression window pair.
func (c *TapSuppressionConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MaxCancelToDownMs < 0 || c.MaxTapGapMs < 0 {
		return fmt.Errorf("tap suppression windows must not be negative")
	}
	return nil
}
