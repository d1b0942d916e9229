package bootstrap

import (
	"testing"

	"github.com/chainmesh-network/chainmesh/internal/domain"
)

func TestSeeds(t *testing.T) {
	custom := []string{"http://10.1.0.1:9380"}

	mainnet := Seeds(domain.NetworkMainnet, custom)
	if len(mainnet) != 5 {
		t.Errorf("mainnet seeds = %d, want 5", len(mainnet))
	}
	if len(Seeds(domain.NetworkTestnet, custom)) != 3 {
		t.Error("testnet should have 3 seeds")
	}
	if got := Seeds(domain.NetworkCustom, custom); len(got) != 1 || got[0] != custom[0] {
		t.Errorf("custom seeds = %v, want configured list", got)
	}
	if got := Seeds(domain.NetworkType("bogus"), custom); got != nil {
		t.Errorf("unknown network seeds = %v, want nil", got)
	}
}

func TestSeeds_ReturnsCopy(t *testing.T) {
	got := Seeds(domain.NetworkMainnet, nil)
	got[0] = "mutated"
	if Seeds(domain.NetworkMainnet, nil)[0] == "mutated" {
		t.Error("Seeds must not expose the registry's backing array")
	}
}
