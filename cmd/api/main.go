// Command api runs the idea canvas node service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/woragis/woragis-sub002/infrastructure/config"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "api <command>",
	Short:         "Idea canvas node service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (overrides CONFIG_FILE)")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

// loadConfig applies the --config flag before reading the environment.
func loadConfig() (*config.Config, error) {
	if configFile != "" {
		if err := os.Setenv("CONFIG_FILE", configFile); err != nil {
			return nil, err
		}
	}
	return config.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
