// Package main is the single-binary entrypoint for ChainMesh.
package main

import "github.com/chainmesh-network/chainmesh/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
