package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edufabric/integration-fabric/internal/config"
	"github.com/edufabric/integration-fabric/internal/daemonclient"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon readiness, component states, and transaction counts",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return nil
	},
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := daemonclient.NewFromConfig(config.Current())
	if err != nil {
		return err
	}
	ctx := context.Background()

	ready, err := client.Ready(ctx)
	if err != nil {
		return fmt.Errorf("daemon not running; %w", err)
	}
	fmt.Printf("Overall: %s (bus running: %v, components: %d)\n",
		ready.Status, ready.BusRunning, ready.Components)

	components, err := client.Components(ctx)
	if err != nil {
		return err
	}
	for _, c := range components {
		fmt.Printf("  %-24s %s", c.ID, c.State)
		if c.Message != "" {
			fmt.Printf("  (%s)", c.Message)
		}
		fmt.Println()
	}

	summary, err := client.TransactionSummary(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Transactions: %d total, %d active, error rate %.2f\n",
		summary.Total, summary.Active, summary.ErrorRate)

	return nil
}
