package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/chainmesh-network/chainmesh/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveNetwork, "network", "", "Network to join: mainnet, testnet, custom (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost    string
	servePort    int
	serveNetwork string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ChainMesh peer discovery daemon",
	Long:  `Start peer discovery and the node HTTP API at 0.0.0.0:9380.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}

	// Override config from flags
	if serveHost != "" {
		cfg.API.Host = serveHost
	}
	if servePort > 0 {
		cfg.API.Port = servePort
	}
	if serveNetwork != "" {
		cfg.Node.Network = serveNetwork
	}

	d, err := daemon.NewWithConfig(cfg, rootCmd.Version)
	if err != nil {
		return err
	}

	return d.Serve(context.Background())
}
