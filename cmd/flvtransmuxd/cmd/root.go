// Package cmd implements the CLI commands for flvtransmuxd.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/flvtransmux/internal/config"
	"github.com/jmylchreest/flvtransmux/internal/version"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "flvtransmuxd",
	Short:   "FLV-to-fMP4 transmuxing service",
	Version: version.Short(),
	Long: `flvtransmuxd turns a live or VOD FLV byte stream into fragmented MP4,
correcting timestamps and emitting seekable segments.

Configuration is read from a YAML file (--config) or from environment
variables prefixed FLVTRANSMUX_, e.g.:
  FLVTRANSMUX_STASH_IS_LIVE=true
  FLVTRANSMUX_REMUX_VIDEO_TIMESCALE=90000`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
}

// loadConfig loads configuration and overlays any explicitly-set CLI flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("log-level") {
		level, _ := cmd.Flags().GetString("log-level")
		cfg.Logging.Level = strings.ToLower(level)
	}
	if cmd.Flags().Changed("log-format") {
		format, _ := cmd.Flags().GetString("log-format")
		cfg.Logging.Format = strings.ToLower(format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

