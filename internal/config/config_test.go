package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.True(t, cfg.Stash.Enabled)
	assert.Equal(t, ByteSize(defaultStashInitialSize), cfg.Stash.InitialSize)
	assert.False(t, cfg.Stash.IsLive)

	assert.Equal(t, "range", cfg.Seek.Type)
	assert.Equal(t, "bstart", cfg.Seek.ParamStart)
	assert.Equal(t, "bend", cfg.Seek.ParamEnd)

	assert.False(t, cfg.Workaround.FixAudioTimestampGap)
	assert.False(t, cfg.Workaround.ForceKeyframeOnDiscontinuity)
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "debug"
  format: "text"

stash:
  is_live: true
  initial_size: "512KB"

seek:
  type: "param"
  param_start: "s"
  param_end: "e"

workaround:
  fix_audio_timestamp_gap: true
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o600))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.True(t, cfg.Stash.IsLive)
	assert.Equal(t, ByteSize(512*1024), cfg.Stash.InitialSize)
	assert.Equal(t, "param", cfg.Seek.Type)
	assert.Equal(t, "s", cfg.Seek.ParamStart)
	assert.True(t, cfg.Workaround.FixAudioTimestampGap)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("FLVTRANSMUX_LOGGING_LEVEL", "warn")
	t.Setenv("FLVTRANSMUX_STASH_IS_LIVE", "true")
	t.Setenv("FLVTRANSMUX_SEEK_TYPE", "custom")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Stash.IsLive)
	assert.Equal(t, "custom", cfg.Seek.Type)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "debug"
stash:
  is_live: false
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o600))

	t.Setenv("FLVTRANSMUX_LOGGING_LEVEL", "error")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Logging.Level)
	assert.False(t, cfg.Stash.IsLive)
}

func validConfig() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Stash:   StashConfig{Enabled: true, InitialSize: ByteSize(384 * 1024)},
		Seek:    SeekConfig{Type: "range"},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "verbose"

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "logging.format")
}

func TestValidate_InvalidSeekType(t *testing.T) {
	cfg := validConfig()
	cfg.Seek.Type = "websocket"

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "seek.type")
}

func TestValidate_NegativeStashSize(t *testing.T) {
	cfg := validConfig()
	cfg.Stash.InitialSize = -1

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "stash.initial_size")
}

func TestValidate_AllSeekTypes(t *testing.T) {
	for _, seekType := range []string{"range", "param", "custom"} {
		t.Run(seekType, func(t *testing.T) {
			cfg := validConfig()
			cfg.Seek.Type = seekType
			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	invalidContent := `
stash:
  initial_size: "512KB"
  invalid yaml structure
`
	require.NoError(t, os.WriteFile(configPath, []byte(invalidContent), 0o600))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}
