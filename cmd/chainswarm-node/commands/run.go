package commands

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"chainswarm/internal/chainref"
	"chainswarm/internal/config"
	"chainswarm/internal/identity"
	"chainswarm/internal/logging"
	"chainswarm/internal/peer"
	"chainswarm/internal/pprofutil"
	"chainswarm/internal/swarm"
)

var log = logging.For("cmd")

// NewRunCmd returns the command that starts a chainswarm node, grounded in
// cmd/babble/commands/run.go's NewRunCmd/AddRunFlags/loadConfig shape.
func NewRunCmd() *cobra.Command {
	def := config.Default()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run a chainswarm node",
		RunE:  runNode,
	}
	config.AddFlags(cmd, def)
	return cmd
}

func runNode(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.PprofAddr != "" {
		os.Setenv("SWARM_PPROF", "1")
		os.Setenv("SWARM_PPROF_ADDR", cfg.PprofAddr)
	}
	if err := pprofutil.StartFromEnv(os.Stderr); err != nil {
		return fmt.Errorf("start pprof: %w", err)
	}

	self, err := identity.LoadOrCreate(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	log.WithField("address", self.Address().String()).Info("loaded node identity")

	sw := swarm.New(self, cfg.ListenAddr, cfg.DialTimeout)
	sw.SetInsecureTLS(cfg.Insecure)
	sw.Metrics().MustRegister(prometheus.DefaultRegisterer)

	seeds, err := parseSeedPeers(cfg.SeedPeers)
	if err != nil {
		return fmt.Errorf("parse seed-peers: %w", err)
	}
	if len(seeds) > 0 {
		sw.AddPeers(context.Background(), seeds, time.Now())
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	chain := chainref.NewChain()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = sw.Stop(stopCtx)
		cancel()
	}()

	log.WithField("listen_addr", cfg.ListenAddr).Info("starting swarm")
	return sw.Start(ctx, chain, cfg.DistributeInterval)
}

// parseSeedPeers parses "pubkey@addr" entries into Peers, where pubkey is
// the hex-encoded compressed public key.
func parseSeedPeers(entries []string) ([]peer.Peer, error) {
	var peers []peer.Peer
	for _, e := range entries {
		parts := strings.SplitN(e, "@", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("malformed seed peer %q, want pubkey@addr", e)
		}
		pub, err := hex.DecodeString(parts[0])
		if err != nil {
			return nil, fmt.Errorf("seed peer %q: bad pubkey hex: %w", e, err)
		}
		peers = append(peers, peer.Peer{PubKey: pub, URLs: []string{parts[1]}})
	}
	return peers, nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log.WithField("metrics_addr", addr).Info("serving prometheus metrics")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Warn("metrics server exited")
	}
}
