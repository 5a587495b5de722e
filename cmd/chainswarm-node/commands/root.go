// Package commands wires chainswarm-node's cobra command tree, grounded in
// cmd/babble/commands/root.go's RootCmd-plus-subcommand-constructor shape.
package commands

import (
	"github.com/spf13/cobra"
)

// RootCmd is chainswarm-node's root command.
var RootCmd = &cobra.Command{
	Use:              "chainswarm-node",
	Short:            "chainswarm peer-to-peer node",
	TraverseChildren: true,
}

func init() {
	RootCmd.AddCommand(NewRunCmd())
	RootCmd.AddCommand(NewStatusCmd())
	RootCmd.AddCommand(NewPeersCmd())
	RootCmd.AddCommand(NewKeygenCmd())
}
