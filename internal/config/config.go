// Package config loads chainswarm-node's configuration: a YAML file,
// overridable by CHAINSWARM_* environment variables, overridable by CLI
// flags — the same three-layer precedence cmd/babble/commands/run.go builds
// with viper.BindPFlags + viper.Unmarshal + a datadir-scoped config file
// search.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the node's full runtime configuration.
type Config struct {
	ListenAddr         string        `mapstructure:"listen_addr"`
	DialTimeout        time.Duration `mapstructure:"dial_timeout"`
	DistributeInterval time.Duration `mapstructure:"distribute_interval"`
	DataDir            string        `mapstructure:"data_dir"`
	SeedPeers          []string      `mapstructure:"seed_peers"`
	LogLevel           string        `mapstructure:"log_level"`
	PprofAddr          string        `mapstructure:"pprof_addr"`
	MetricsAddr        string        `mapstructure:"metrics_addr"`
	Insecure           bool          `mapstructure:"insecure"`
}

// Default returns the configuration's baked-in defaults, before any file,
// env var, or flag override is applied.
func Default() *Config {
	return &Config{
		ListenAddr:         "127.0.0.1:7946",
		DialTimeout:        15 * time.Second,
		DistributeInterval: 1500 * time.Millisecond,
		DataDir:            "./chainswarm-data",
		LogLevel:           "info",
		PprofAddr:          "",
		MetricsAddr:        "",
		Insecure:           false,
	}
}

// AddFlags registers cmd's run flags, seeded with def's values as their
// defaults, mirroring AddRunFlags in cmd/babble/commands/run.go.
func AddFlags(cmd *cobra.Command, def *Config) {
	cmd.Flags().String("listen-addr", def.ListenAddr, "QUIC listen address for the server endpoint")
	cmd.Flags().Duration("dial-timeout", def.DialTimeout, "per-URL dial timeout when connecting to a peer")
	cmd.Flags().Duration("distribute-interval", def.DistributeInterval, "gossip delta distribution interval")
	cmd.Flags().String("data-dir", def.DataDir, "directory holding the node's identity key and config file")
	cmd.Flags().StringSlice("seed-peers", def.SeedPeers, "initial peers to add on start, as pubkey@addr")
	cmd.Flags().String("log-level", def.LogLevel, "debug, info, warn, error (stored in the config only; the logger's level is read from CHAINSWARM_LOG_LEVEL)")
	cmd.Flags().String("pprof-addr", def.PprofAddr, "loopback address to serve net/http/pprof on (empty disables)")
	cmd.Flags().String("metrics-addr", def.MetricsAddr, "address to serve Prometheus metrics on (empty disables)")
	cmd.Flags().Bool("insecure", def.Insecure, "skip TLS verification when dialing peers (dev only)")
}

// Load binds cmd's flags into viper, reads an optional "chainswarm.yaml" (or
// .json/.toml) from the resolved data dir, and unmarshals the result into a
// Config. Flags take precedence over the file; CHAINSWARM_* env vars sit
// between the two, per viper.AutomaticEnv's normal precedence.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CHAINSWARM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	// Flags are named with dashes ("listen-addr") while Config's keys use
	// underscores ("listen_addr"); bind each flag under its underscore key
	// too, so Unmarshal sees flag values.
	for _, key := range v.AllKeys() {
		f := cmd.Flags().Lookup(key)
		if f == nil || !strings.Contains(key, "-") {
			continue
		}
		if err := v.BindPFlag(strings.ReplaceAll(key, "-", "_"), f); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", key, err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal defaults+flags: %w", err)
	}

	v.SetConfigName("chainswarm")
	v.AddConfigPath(cfg.DataDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config file: %w", err)
	}
	return cfg, nil
}
