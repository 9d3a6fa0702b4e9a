package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/edufabric/integration-fabric/internal/config"
	"github.com/edufabric/integration-fabric/internal/daemon"
	"github.com/edufabric/integration-fabric/internal/fabric"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the fabric daemon in foreground mode",
	Long: "Start the fabric daemon in foreground mode.\n\n" +
		"The daemon starts the event bus and health polling, replays persisted critical " +
		"events, and exposes the HTTP API with health probes and Prometheus metrics. " +
		"Use standard backgrounding methods like '&', 'nohup', or a service runner to " +
		"run it in the background.",
	Example: `  # Start in foreground
  fabric serve

  # Start in background
  nohup fabric serve &`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return nil
	},
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Current()

	f, err := fabric.New(fabric.OptionsFromConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to build fabric; %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f.Start(ctx)
	defer f.Stop()

	if replayed, err := f.Bus.ReplayPersistedEvents(); err != nil {
		slog.Warn("replay of persisted events failed", "error", err)
	} else if replayed > 0 {
		slog.Info("replayed persisted events", "count", replayed)
	}

	server := daemon.NewServer(f, daemon.ServerConfig{
		Port: cfg.Daemon.HTTPPort,
		Bind: cfg.Daemon.HTTPBind,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	slog.Info("fabric daemon started",
		"http_bind", cfg.Daemon.HTTPBind,
		"http_port", cfg.Daemon.HTTPPort,
	)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("daemon error; %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Daemon.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
