package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"chainswarm/internal/config"
	"chainswarm/internal/identity"
)

// NewStatusCmd prints the node's identity and effective configuration. It
// reads local state only — there is no running-process query channel, so
// this reports what a subsequent `run` would use, not a live node's
// in-memory swarm state.
func NewStatusCmd() *cobra.Command {
	def := config.Default()
	cmd := &cobra.Command{
		Use:   "status",
		Short: "show this node's identity and effective configuration",
		RunE:  runStatus,
	}
	config.AddFlags(cmd, def)
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	id, err := identity.LoadOrCreate(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	fmt.Printf("address:             %s\n", id.Address())
	fmt.Printf("data dir:            %s\n", cfg.DataDir)
	fmt.Printf("listen addr:         %s\n", cfg.ListenAddr)
	fmt.Printf("distribute interval: %s\n", cfg.DistributeInterval)
	fmt.Printf("dial timeout:        %s\n", cfg.DialTimeout)
	fmt.Printf("seed peers:          %d configured\n", len(cfg.SeedPeers))
	return nil
}
