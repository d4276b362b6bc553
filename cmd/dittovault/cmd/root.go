package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "dittovault",
	Short: "Content-addressable block vault server",
	Long: `dittovault stores immutable, content-addressed blocks in vaults and
assembles them into files over an HTTP API.

Blocks live on a pluggable store (filesystem, memory, S3) and file
composition is tracked in a metadata index (memory, BadgerDB).`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default $XDG_CONFIG_HOME/dittovault/config.yaml)")

	rootCmd.AddCommand(serveCmd, initCmd, versionCmd)
}
