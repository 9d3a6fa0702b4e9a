// Package cmd provides the fabric CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edufabric/integration-fabric/internal/config"
	"github.com/edufabric/integration-fabric/internal/logging"
)

// logManager is the process logging manager, created in init() in bootstrap
// mode and upgraded once config loads.
var logManager *logging.Manager

var rootCmd = &cobra.Command{
	Use:   "fabric",
	Short: "Integration fabric for component health, events, and transactions",
	Long: "The integration fabric tracks registered components and their dependencies, " +
		"carries cross-component events on a durable bus, validates status transitions, " +
		"cascades impairment to dependents, and records nested transactions.\n\n" +
		"Run 'fabric serve' to start the daemon with its HTTP API.",
	PersistentPreRunE: runInitialize,
}

func init() {
	logManager = logging.NewManager()
}

func runInitialize(cmd *cobra.Command, args []string) error {
	logger := logManager.Logger()

	if err := config.Init(); err != nil {
		return err
	}

	level := logging.ParseLevel(config.GetString("log_level"))
	if err := logManager.Upgrade(config.GetString("log_file"), level); err != nil {
		logger.Warn("failed to enable file logging, continuing with stderr only", "error", err)
	}

	return nil
}

// Execute runs the CLI.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	defer func() { _ = logManager.Close() }()

	err := rootCmd.Execute()
	if err != nil {
		cmd, _, _ := rootCmd.Find(os.Args[1:])
		if cmd == nil {
			cmd = rootCmd
		}

		fmt.Printf("Error: %v\n", err)
		if !cmd.SilenceUsage {
			fmt.Printf("\n")
			cmd.SetOut(os.Stdout)
			_ = cmd.Usage()
		}

		return err
	}

	return nil
}
