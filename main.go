package main

import (
	"os"

	"github.com/edufabric/integration-fabric/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
