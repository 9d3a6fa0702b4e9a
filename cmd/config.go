package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/edufabric/integration-fabric/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and manage fabric configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(config.Current())
		if err != nil {
			return fmt.Errorf("failed to marshal config; %w", err)
		}

		if path := config.ConfigFilePath(); path != "" {
			fmt.Printf("# loaded from %s\n", path)
		} else {
			fmt.Println("# defaults (no config file found)")
		}
		fmt.Print(string(data))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file to the default path",
	RunE: func(cmd *cobra.Command, args []string) error {
		if config.ConfigExists() {
			return fmt.Errorf("config file already exists at %s", config.DefaultConfigPath())
		}

		cfg := config.NewDefaultConfig()
		if err := config.WriteDefault(&cfg); err != nil {
			return err
		}

		fmt.Printf("Wrote default configuration to %s\n", config.DefaultConfigPath())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
