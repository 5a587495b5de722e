package main

import (
	"fmt"
	"os"

	"chainswarm/cmd/chainswarm-node/commands"
)

func main() {
	if err := commands.RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
