package domain

import "fmt"

// NetworkType selects which bootstrap seed set a node joins.
type NetworkType string

const (
	NetworkMainnet NetworkType = "mainnet"
	NetworkTestnet NetworkType = "testnet"
	NetworkCustom  NetworkType = "custom"
)

// ParseNetworkType validates a config string into a NetworkType.
func ParseNetworkType(s string) (NetworkType, error) {
	switch NetworkType(s) {
	case NetworkMainnet, NetworkTestnet, NetworkCustom:
		return NetworkType(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownNetwork, s)
	}
}

func (n NetworkType) String() string { return string(n) }
