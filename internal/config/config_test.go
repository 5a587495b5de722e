package config

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.ListenAddr == "" {
		t.Fatal("expected a non-empty default listen address")
	}
	if cfg.DistributeInterval != 1500*time.Millisecond {
		t.Fatalf("DistributeInterval = %v, want 1500ms", cfg.DistributeInterval)
	}
}

func TestLoadUsesFlagDefaultsWithNoConfigFile(t *testing.T) {
	cmd := &cobra.Command{Use: "run"}
	def := Default()
	def.DataDir = t.TempDir()
	AddFlags(cmd, def)

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ListenAddr != def.ListenAddr {
		t.Fatalf("ListenAddr = %q, want %q", cfg.ListenAddr, def.ListenAddr)
	}
	if cfg.DistributeInterval != def.DistributeInterval {
		t.Fatalf("DistributeInterval = %v, want %v", cfg.DistributeInterval, def.DistributeInterval)
	}
}

func TestLoadHonorsExplicitFlagOverride(t *testing.T) {
	cmd := &cobra.Command{Use: "run"}
	def := Default()
	def.DataDir = t.TempDir()
	AddFlags(cmd, def)

	if err := cmd.Flags().Set("listen-addr", "127.0.0.1:9999"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9999" {
		t.Fatalf("ListenAddr = %q, want 127.0.0.1:9999", cfg.ListenAddr)
	}
}
