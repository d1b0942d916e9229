// Package cli implements the ChainMesh command-line interface using Cobra.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chainmesh",
	Short: "ChainMesh — peer discovery daemon for blockchain nodes",
	Long: `ChainMesh discovers, scores, and selects a diverse set of network
peers for a blockchain node. It bootstraps from seeds, gossips peer
lists, ranks peers by reliability and speed, and keeps the connection
set spread across network prefixes to resist eclipse attacks.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
