// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Input() InputConfig
	Renderer() RendererConfig
	Source() SourceConfig
	Journal() JournalConfig

	// Input Setters
	SetInputDebounceEnabled(bool)
	SetInputAckTimeoutEnabled(bool)

	// Source Setters
	SetSourceTracePath(string)
	SetSourceFollow(bool)
	SetSourceListenAddr(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	InputCfg    InputConfig    `mapstructure:"input" yaml:"input"`
	RendererCfg RendererConfig `mapstructure:"renderer" yaml:"renderer"`
	SourceCfg   SourceConfig   `mapstructure:"source" yaml:"source"`
	JournalCfg  JournalConfig  `mapstructure:"journal" yaml:"journal"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Input() InputConfig       { return c.InputCfg }
func (c *Config) Renderer() RendererConfig { return c.RendererCfg }
func (c *Config) Source() SourceConfig     { return c.SourceCfg }
func (c *Config) Journal() JournalConfig   { return c.JournalCfg }

// --- Interface Method Implementations (Setters) ---

// Input Setters
func (c *Config) SetInputDebounceEnabled(b bool)   { c.InputCfg.DebounceEnabled = b }
func (c *Config) SetInputAckTimeoutEnabled(b bool) { c.InputCfg.AckTimeoutEnabled = b }

// Source Setters
func (c *Config) SetSourceTracePath(p string)  { c.SourceCfg.TracePath = p }
func (c *Config) SetSourceFollow(b bool)       { c.SourceCfg.Follow = b }
func (c *Config) SetSourceListenAddr(a string) { c.SourceCfg.ListenAddr = a }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// Renderer kinds.
const (
	RendererSim = "sim"
	RendererCDP = "cdp"
)

// RendererConfig selects and tunes the consumer input is routed to.
type RendererConfig struct {
	Kind string            `mapstructure:"kind" yaml:"kind"`
	Sim  SimRendererConfig `mapstructure:"sim" yaml:"sim"`
	CDP  CDPRendererConfig `mapstructure:"cdp" yaml:"cdp"`
}

// SimRendererConfig drives the in-process simulated renderer.
type SimRendererConfig struct {
	AckDelay time.Duration `mapstructure:"ack_delay" yaml:"ack_delay"`
	// Dispositions maps an event category (gesture, touch, mouse, wheel,
	// keyboard) to the ack state the renderer answers with.
	Dispositions map[string]string `mapstructure:"dispositions" yaml:"dispositions"`
	// HangTouchAcks withholds every touch ack, exercising the ack timeout.
	HangTouchAcks bool `mapstructure:"hang_touch_acks" yaml:"hang_touch_acks"`
}

// CDPRendererConfig points the DevTools renderer at a browser.
type CDPRendererConfig struct {
	// RemoteURL attaches to a running browser; empty launches a new one.
	RemoteURL   string        `mapstructure:"remote_url" yaml:"remote_url"`
	Headless    bool          `mapstructure:"headless" yaml:"headless"`
	StartURL    string        `mapstructure:"start_url" yaml:"start_url"`
	CallTimeout time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
}

// SourceConfig describes where input events come from.
type SourceConfig struct {
	TracePath string `mapstructure:"trace_path" yaml:"trace_path"`
	// Follow keeps reading the trace as it grows.
	Follow bool `mapstructure:"follow" yaml:"follow"`
	// Paced replays honour the recorded gaps between events.
	Paced      bool   `mapstructure:"paced" yaml:"paced"`
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// JournalConfig controls persistence of acked events for latency analysis.
type JournalConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	URL           string        `mapstructure:"url" yaml:"url"`
	FlushInterval time.Duration `mapstructure:"flush_interval" yaml:"flush_interval"`
	BatchSize     int           `mapstructure:"batch_size" yaml:"batch_size"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "inputpipe")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Input pipeline --
	setInputDefaults(v)

	// -- Renderer --
	v.SetDefault("renderer.kind", RendererSim)
	v.SetDefault("renderer.sim.ack_delay", "8ms")
	v.SetDefault("renderer.sim.hang_touch_acks", false)
	v.SetDefault("renderer.cdp.headless", true)
	v.SetDefault("renderer.cdp.start_url", "about:blank")
	v.SetDefault("renderer.cdp.call_timeout", "5s")

	// -- Source --
	v.SetDefault("source.follow", false)
	v.SetDefault("source.paced", true)
	v.SetDefault("source.listen_addr", "127.0.0.1:8765")

	// -- Journal --
	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.flush_interval", "1s")
	v.SetDefault("journal.batch_size", 256)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The journal URL carries credentials, so it is usually supplied by env.
	_ = v.BindEnv("journal.url", "INPUTPIPE_JOURNAL_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	for _, p := range []*string{&cfg.SourceCfg.TracePath, &cfg.LoggerCfg.LogFile} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return nil, fmt.Errorf("error expanding path %q: %w", *p, err)
		}
		*p = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.InputCfg.Validate(); err != nil {
		return fmt.Errorf("input configuration invalid: %w", err)
	}
	if err := c.RendererCfg.Validate(); err != nil {
		return fmt.Errorf("renderer configuration invalid: %w", err)
	}
	if err := c.JournalCfg.Validate(); err != nil {
		return fmt.Errorf("journal configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the renderer settings.
func (r *RendererConfig) Validate() error {
	switch r.Kind {
	case RendererSim:
		if r.Sim.AckDelay < 0 {
			return fmt.Errorf("renderer.sim.ack_delay must not be negative")
		}
		for category, state := range r.Sim.Dispositions {
			if !isAckState(state) {
				return fmt.Errorf("renderer.sim.dispositions.%s: unknown ack state %q", category, state)
			}
		}
	case RendererCDP:
		if r.CDP.CallTimeout <= 0 {
			return fmt.Errorf("renderer.cdp.call_timeout must be a positive duration")
		}
	default:
		return fmt.Errorf("renderer.kind must be one of %q, %q; got %q", RendererSim, RendererCDP, r.Kind)
	}
	return nil
}

// Validate checks the journal settings.
func (j *JournalConfig) Validate() error {
	if !j.Enabled {
		return nil
	}
	if j.URL == "" {
		return fmt.Errorf("journal.url is required when the journal is enabled")
	}
	if j.BatchSize <= 0 {
		return fmt.Errorf("journal.batch_size must be a positive integer")
	}
	if j.FlushInterval <= 0 {
		return fmt.Errorf("journal.flush_interval must be a positive duration")
	}
	return nil
}

func isAckState(s string) bool {
	switch strings.ToLower(s) {
	case "consumed", "not_consumed", "no_consumer_exists", "unknown":
		return true
	}
	return false
}
