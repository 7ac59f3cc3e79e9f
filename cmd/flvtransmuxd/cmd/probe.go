package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/flvtransmux/internal/flv"
	"github.com/jmylchreest/flvtransmux/internal/observability"
	"github.com/jmylchreest/flvtransmux/internal/pipeline"
	"github.com/jmylchreest/flvtransmux/pkg/loader"
)

var probeCmd = &cobra.Command{
	Use:   "probe <source>",
	Short: "Probe an FLV source and print its media info as JSON",
	Long: `Opens an FLV source (a local path, file://..., or http(s)://...) just
far enough to decode onMetaData and the first audio/video tag, then prints
the resulting media info as JSON and exits.

Examples:
  flvtransmuxd probe ./testdata/sample.flv
  flvtransmuxd probe https://example.invalid/live/stream.flv --pretty`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().Bool("pretty", false, "pretty-print JSON output")
	probeCmd.Flags().Duration("timeout", 10*time.Second, "probe timeout")
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := observability.NewLogger(cfg.Logging)

	timeout, _ := cmd.Flags().GetDuration("timeout")
	pretty, _ := cmd.Flags().GetBool("pretty")

	source := args[0]
	var ld loader.Loader
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		ld = loader.NewHTTPLoader(loader.DefaultHTTPConfig())
	} else {
		ld = loader.NewFileLoader(0)
	}

	session, err := pipeline.NewSession(*cfg, ld, logger)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	defer session.Close()

	infoCh := make(chan flv.MediaInfo, 1)
	errCh := make(chan error, 1)

	session.OnMediaInfo = func(info flv.MediaInfo) {
		select {
		case infoCh <- info:
		default:
		}
	}
	session.OnError = func(e pipeline.Error) {
		select {
		case errCh <- e:
		default:
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := session.Open(ctx, loader.DataSource{URL: source}); err != nil {
		return fmt.Errorf("opening source: %w", err)
	}

	select {
	case info := <-infoCh:
		return printMediaInfo(info, pretty)
	case err := <-errCh:
		return fmt.Errorf("probe failed: %w", err)
	case <-ctx.Done():
		return fmt.Errorf("probe timed out after %s waiting for media info", timeout)
	}
}

func printMediaInfo(info flv.MediaInfo, pretty bool) error {
	var (
		output []byte
		err    error
	)
	if pretty {
		output, err = json.MarshalIndent(info, "", "  ")
	} else {
		output, err = json.Marshal(info)
	}
	if err != nil {
		return fmt.Errorf("marshaling media info: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(output))
	return nil
}
