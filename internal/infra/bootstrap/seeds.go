// Package bootstrap holds the static seed registry used to join the
// network when no peers are known yet. Seeds are keyed by network type.
//
// The addresses below are placeholders. Production deployments must
// replace them with real operator-controlled endpoints before launch.
package bootstrap

import "github.com/chainmesh-network/chainmesh/internal/domain"

var mainnetSeeds = []string{
	"http://seed1.chainmesh.network:9380",
	"http://seed2.chainmesh.network:9380",
	"http://seed3.chainmesh.network:9380",
	"http://seed4.chainmesh.network:9380",
	"http://seed5.chainmesh.network:9380",
}

var testnetSeeds = []string{
	"http://testnet-seed1.chainmesh.network:9380",
	"http://testnet-seed2.chainmesh.network:9380",
	"http://testnet-seed3.chainmesh.network:9380",
}

// Seeds returns the seed URLs for a network. For NetworkCustom the custom
// list from config is returned as-is; for the built-in networks the custom
// list is ignored.
func Seeds(network domain.NetworkType, custom []string) []string {
	switch network {
	case domain.NetworkMainnet:
		return append([]string(nil), mainnetSeeds...)
	case domain.NetworkTestnet:
		return append([]string(nil), testnetSeeds...)
	case domain.NetworkCustom:
		return append([]string(nil), custom...)
	default:
		return nil
	}
}
