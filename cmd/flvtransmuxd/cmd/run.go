package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/flvtransmux/internal/observability"
	"github.com/jmylchreest/flvtransmux/internal/pipeline"
	"github.com/jmylchreest/flvtransmux/internal/remux"
	"github.com/jmylchreest/flvtransmux/pkg/loader"
)

var runCmd = &cobra.Command{
	Use:   "run <source>",
	Short: "Transmux an FLV source to fragmented MP4",
	Long: `Opens an FLV source (a local path, file://..., or http(s)://...), transmuxes
it to fragmented MP4, and writes the concatenated ftyp+moov followed by each
moof+mdat fragment, in arrival order, to --output (stdout by default).

Examples:
  flvtransmuxd run ./testdata/sample.flv --output out.mp4
  flvtransmuxd run https://example.invalid/live/stream.flv > live.mp4`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("output", "o", "", "output file path (default: stdout)")
	runCmd.Flags().Bool("live", false, "treat the source as a live stream (disables VOD-only behavior)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := observability.NewLogger(cfg.Logging)
	observability.SetDefault(logger)

	isLive, _ := cmd.Flags().GetBool("live")
	cfg.Stash.IsLive = isLive
	cfg.Remux.IsLive = isLive

	out, closeOut, err := openOutput(cmd)
	if err != nil {
		return err
	}
	defer closeOut()

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

	done := make(chan error, 1)
	var writeErr error

	session.OnInitSegment = func(seg pipeline.InitSegment) {
		logger.Info("init segment ready", slog.String("codec", seg.Codec), slog.Int("bytes", len(seg.Data)))
		if _, err := out.Write(seg.Data); err != nil && writeErr == nil {
			writeErr = fmt.Errorf("writing init segment: %w", err)
		}
	}
	session.OnMediaSegment = func(seg remux.MediaSegment) {
		if _, err := out.Write(seg.Data); err != nil && writeErr == nil {
			writeErr = fmt.Errorf("writing media segment: %w", err)
		}
	}
	session.OnError = func(e pipeline.Error) {
		logger.Error("session error", slog.String("kind", string(e.Kind)), slog.String("detail", e.Detail))
	}
	session.OnLoadingComplete = func() {
		done <- writeErr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := session.Open(ctx, loader.DataSource{URL: source, IsLive: isLive}); err != nil {
		return fmt.Errorf("opening source: %w", err)
	}

	if isLive {
		// Live sources have no natural end; run until interrupted or errored.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
			logger.Info("received shutdown signal")
		case err := <-done:
			return err
		}
		return nil
	}

	return <-done
}

func openOutput(cmd *cobra.Command) (io.Writer, func(), error) {
	path, _ := cmd.Flags().GetString("output")
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file %q: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}
