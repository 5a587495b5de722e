package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"chainswarm/internal/config"
	"chainswarm/internal/identity"
)

// NewKeygenCmd generates (or reports) this node's identity key pair under
// its configured data directory, mirroring cmd/babble/commands/keygen.go.
func NewKeygenCmd() *cobra.Command {
	def := config.Default()
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "generate (or show) this node's identity key",
		RunE:  runKeygen,
	}
	cmd.Flags().String("data-dir", def.DataDir, "directory holding the node's identity key")
	return cmd
}

func runKeygen(cmd *cobra.Command, args []string) error {
	dataDir, err := cmd.Flags().GetString("data-dir")
	if err != nil {
		return err
	}
	id, err := identity.LoadOrCreate(dataDir)
	if err != nil {
		return fmt.Errorf("load or create identity: %w", err)
	}
	fmt.Printf("address:    %s\n", id.Address())
	fmt.Printf("public key: %x\n", id.PublicKey())
	return nil
}
