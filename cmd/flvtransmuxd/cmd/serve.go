package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/flvtransmux/internal/httpapi"
	"github.com/jmylchreest/flvtransmux/internal/observability"
	"github.com/jmylchreest/flvtransmux/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP session API",
	Long: `Start flvtransmuxd's HTTP surface.

The server provides:
- POST   /api/v1/sessions             open a session over a media source
- POST   /api/v1/sessions/{id}/seek   seek a session
- DELETE /api/v1/sessions/{id}        close a session
- GET    /api/v1/sessions/{id}/stream SSE stream of init/media segments`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "host to bind to (overrides config)")
	serveCmd.Flags().Int("port", 0, "port to listen on (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := observability.NewLogger(cfg.Logging)
	observability.SetDefault(logger)

	logger.Info("flvtransmuxd starting", slog.String("version", version.Short()))

	serverCfg := httpapi.DefaultServerConfig()
	if cmd.Flags().Changed("host") {
		serverCfg.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		serverCfg.Port, _ = cmd.Flags().GetInt("port")
	}

	server := httpapi.NewServer(serverCfg, logger, version.Short())
	server.RegisterSessions(*cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	}

	return server.Shutdown(ctx)
}
