package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"chainswarm/internal/config"
)

// NewPeersCmd lists the seed peers configured for this node. Like status,
// it reflects configuration, not a running node's live peer set.
func NewPeersCmd() *cobra.Command {
	def := config.Default()
	cmd := &cobra.Command{
		Use:   "peers",
		Short: "list this node's configured seed peers",
		RunE:  runPeers,
	}
	config.AddFlags(cmd, def)
	return cmd
}

func runPeers(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if len(cfg.SeedPeers) == 0 {
		fmt.Println("no seed peers configured")
		return nil
	}
	for _, p := range cfg.SeedPeers {
		fmt.Println(p)
	}
	return nil
}
