// Package config provides configuration management for flvtransmux using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultStashInitialSize         = 384 * 1024 // KiB-ladder snapped value, see internal/stash
	defaultBufferHeadroom           = 1024 * 1024
	defaultLazyLoadMaxDuration      = 3 * time.Minute
	defaultLazyLoadRecoverDuration  = 30 * time.Second
	defaultConnectingTimeout        = 10 * time.Second
	defaultVideoTimescale    uint32 = 1000
	defaultAudioTimescale    uint32 = 1000
)

// Config holds all configuration for the pipeline.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Stash      StashConfig      `mapstructure:"stash"`
	Seek       SeekConfig       `mapstructure:"seek"`
	Workaround WorkaroundConfig `mapstructure:"workaround"`
	Remux      RemuxConfig      `mapstructure:"remux"`
}

// RemuxConfig holds the fMP4 remuxer's track timescales and live/VOD mode
// (spec §4.4 "fMP4 Remuxer"). IsLive gates whether the per-track segment
// history is retained (spec §4.4 "Append info to segment-info list
// (non-live only)").
type RemuxConfig struct {
	VideoTimescale uint32 `mapstructure:"video_timescale"`
	AudioTimescale uint32 `mapstructure:"audio_timescale"`
	IsLive         bool   `mapstructure:"is_live"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // trace, debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// StashConfig holds the I/O controller's stash-buffer behavior (spec §4.1, §6).
type StashConfig struct {
	// Enabled mirrors enableStashBuffer; when false chunks pass straight through.
	Enabled bool `mapstructure:"enabled"`
	// InitialSize mirrors stashInitialSize, accepting "384KB"-style values.
	InitialSize ByteSize `mapstructure:"initial_size"`
	// IsLive selects the live-mode sizing rule (snapped ladder value) over the VOD rule.
	IsLive bool `mapstructure:"is_live"`
	// LazyLoad enables deferred loading of content beyond the configured window.
	LazyLoad                bool     `mapstructure:"lazy_load"`
	LazyLoadMaxDuration     Duration `mapstructure:"lazy_load_max_duration"`
	LazyLoadRecoverDuration Duration `mapstructure:"lazy_load_recover_duration"`
	// ConnectingTimeout is loaded with the other stash settings; the stash
	// controller does not read it, so open() applies no connecting timeout.
	ConnectingTimeout Duration `mapstructure:"connecting_timeout"`
	// MemoryPressureProbeSchedule is a 6-field (seconds-first) cron
	// expression scheduling periodic host memory checks; empty disables
	// the probe.
	MemoryPressureProbeSchedule string `mapstructure:"memory_pressure_probe_schedule"`
}

// SeekConfig holds seek-handler configuration (spec §4.1 "Seek-handler variants").
type SeekConfig struct {
	// Type selects range, param, or custom seek encoding.
	Type               string `mapstructure:"type"`
	ParamStart         string `mapstructure:"param_start"`
	ParamEnd           string `mapstructure:"param_end"`
	RangeLoadZeroStart bool   `mapstructure:"range_load_zero_start"`
	AccurateSeek       bool   `mapstructure:"accurate_seek"`
}

// WorkaroundConfig holds the platform-workaround flags called out in spec §9
// ("Platform workarounds"), exposed here as explicit config rather than a
// user-agent probe.
type WorkaroundConfig struct {
	FixAudioTimestampGap     bool `mapstructure:"fix_audio_timestamp_gap"`
	ForceKeyframeOnDiscontinuity bool `mapstructure:"force_keyframe_on_discontinuity"`
	DeferLoadAfterSourceOpen bool `mapstructure:"defer_load_after_source_open"`
	ReuseRedirectedURL       bool `mapstructure:"reuse_redirected_url"`
	// TargetUserAgent selects the AAC object-type promotion table (spec §4.2,
	// §9 "Platform workarounds"): "firefox", "android", or "" (other/default).
	TargetUserAgent string `mapstructure:"target_user_agent"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration, are
// prefixed with FLVTRANSMUX_, and use underscores for nesting, e.g.
// FLVTRANSMUX_STASH_IS_LIVE=true.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/flvtransmux")
		v.AddConfigPath("$HOME/.flvtransmux")
	}

	v.SetEnvPrefix("FLVTRANSMUX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("stash.enabled", true)
	v.SetDefault("stash.initial_size", defaultStashInitialSize)
	v.SetDefault("stash.is_live", false)
	v.SetDefault("stash.lazy_load", false)
	v.SetDefault("stash.lazy_load_max_duration", defaultLazyLoadMaxDuration)
	v.SetDefault("stash.lazy_load_recover_duration", defaultLazyLoadRecoverDuration)
	v.SetDefault("stash.connecting_timeout", defaultConnectingTimeout)
	v.SetDefault("stash.memory_pressure_probe_schedule", "")

	v.SetDefault("seek.type", "range")
	v.SetDefault("seek.param_start", "bstart")
	v.SetDefault("seek.param_end", "bend")
	v.SetDefault("seek.range_load_zero_start", false)
	v.SetDefault("seek.accurate_seek", false)

	v.SetDefault("workaround.fix_audio_timestamp_gap", false)
	v.SetDefault("workaround.force_keyframe_on_discontinuity", false)
	v.SetDefault("workaround.defer_load_after_source_open", false)
	v.SetDefault("workaround.reuse_redirected_url", false)
	v.SetDefault("workaround.target_user_agent", "")

	v.SetDefault("remux.video_timescale", defaultVideoTimescale)
	v.SetDefault("remux.audio_timescale", defaultAudioTimescale)
	v.SetDefault("remux.is_live", false)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	validSeekTypes := map[string]bool{"range": true, "param": true, "custom": true}
	if !validSeekTypes[c.Seek.Type] {
		return fmt.Errorf("seek.type must be one of: range, param, custom")
	}

	if c.Stash.InitialSize < 0 {
		return fmt.Errorf("stash.initial_size must not be negative")
	}

	validUserAgents := map[string]bool{"": true, "firefox": true, "android": true}
	if !validUserAgents[c.Workaround.TargetUserAgent] {
		return fmt.Errorf("workaround.target_user_agent must be one of: \"\", firefox, android")
	}

	return nil
}
