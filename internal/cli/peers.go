package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chainmesh-network/chainmesh/internal/domain"
)

func init() {
	rootCmd.AddCommand(peersCmd)
}

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List known peers from the running daemon",
	RunE:  runPeers,
}

func runPeers(cmd *cobra.Command, args []string) error {
	var details []domain.PeerSnapshot
	if err := getJSON("/peers/discovery/details", &details); err != nil {
		return err
	}

	if len(details) == 0 {
		fmt.Println("No known peers yet. The daemon may still be bootstrapping.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "URL\tQUALITY\tRELIABILITY\tAVG RTT\tSEEN\tBOOTSTRAP")
	for _, p := range details {
		fmt.Fprintf(w, "%s\t%.1f\t%.1f%%\t%.0fms\t%s\t%v\n",
			p.URL,
			p.QualityScore,
			p.Reliability,
			p.AvgResponseTime*1000,
			p.LastSeen.Format("15:04:05"),
			p.IsBootstrap,
		)
	}
	return w.Flush()
}
