package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chainmesh-network/chainmesh/internal/infra/discovery"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show discovery statistics from the running daemon",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	var stats discovery.Stats
	if err := getJSON("/peers/discovery/stats", &stats); err != nil {
		return err
	}

	fmt.Printf("Network:           %s\n", stats.NetworkType)
	fmt.Printf("Running:           %v\n", stats.IsRunning)
	fmt.Printf("Known peers:       %d\n", stats.KnownPeers)
	fmt.Printf("Connected peers:   %d / %d\n", stats.ConnectedPeers, stats.MaxPeers)
	fmt.Printf("Diversity score:   %.1f\n", stats.DiversityScore)
	fmt.Printf("Avg peer quality:  %.1f\n", stats.AvgPeerQuality)
	fmt.Printf("Discoveries:       %d\n", stats.TotalDiscoveries)
	fmt.Printf("Connections:       %d ok, %d failed\n", stats.TotalConnections, stats.TotalFailedConnections)
	return nil
}
