// Package swarm is the node's peer-to-peer membership and sync engine: a
// live peer set maintained by periodic signed gossip deltas, a concurrent
// request/reply dispatcher over the transport package's two-socket model,
// and a chain catch-up routine that reacts to block announcements. It owns
// the peer set and the ticker loop that drives gossip, dispatch, and sync.
package swarm

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"chainswarm/internal/chainref"
	"chainswarm/internal/identity"
	"chainswarm/internal/logging"
	"chainswarm/internal/metrics"
	"chainswarm/internal/peer"
	"chainswarm/internal/swarmerr"
	"chainswarm/internal/transport"
)

var log = logging.For("swarm")

// Swarm owns one node's view of the network: its live peer set, its
// tombstones, its transport endpoints, and the chain it keeps in sync.
type Swarm struct {
	self        *identity.Identity
	listenAddr  string
	dialTimeout time.Duration
	insecureTLS bool

	live       *peer.PeerSet
	tombstone  *peer.RemovedSet
	lastSeenTS *peer.LastSeenTimestamps

	clients *transport.Pool
	server  *transport.Server

	chain *chainref.Chain

	metrics *metrics.Metrics

	// receiveMu serializes applyDelta and the peer-set mutation paths it
	// drives (AddPeers/Remove). distributeMu serializes distributeDelta.
	// receiveMu is always acquired before distributeMu; the only path that
	// needs both releases receiveMu before acquiring distributeMu (the
	// first-encounter full-state redistribution in applyDelta).
	receiveMu    sync.Mutex
	distributeMu sync.Mutex

	lastDistributed time.Time
	lastReceived    time.Time
	tickCount       uint64

	deltaDistributed *Event
	deltaReceived    *Event
	txReceived       *Event

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New constructs a Swarm identified by self, bound (once started) at
// listenAddr, dialing new peers with dialTimeout.
func New(self *identity.Identity, listenAddr string, dialTimeout time.Duration) *Swarm {
	return &Swarm{
		self:             self,
		listenAddr:       listenAddr,
		dialTimeout:      dialTimeout,
		live:             peer.NewPeerSet(),
		tombstone:        peer.NewRemovedSet(),
		lastSeenTS:       peer.NewLastSeenTimestamps(),
		clients:          transport.NewPool(dialTimeout, false),
		metrics:          metrics.New(),
		deltaDistributed: NewEvent(),
		deltaReceived:    NewEvent(),
		txReceived:       NewEvent(),
	}
}

// SetInsecureTLS toggles skip-verification dialing (dev/test only). Must be
// called before Start.
func (s *Swarm) SetInsecureTLS(insecure bool) {
	s.insecureTLS = insecure
	s.clients = transport.NewPool(s.dialTimeout, insecure)
}

// Metrics returns the swarm's Prometheus collector bundle, for registration
// by the owning process.
func (s *Swarm) Metrics() *metrics.Metrics {
	return s.metrics
}

// DeltaDistributed, DeltaReceived, and TxReceived are the one-shot,
// auto-reset signals consumers may await: a delta was broadcast, a delta
// was applied, or new transactions were staged after a TxIds announcement.
func (s *Swarm) DeltaDistributed() *Event { return s.deltaDistributed }
func (s *Swarm) DeltaReceived() *Event    { return s.deltaReceived }
func (s *Swarm) TxReceived() *Event       { return s.txReceived }

// Running reports whether the swarm is currently started.
func (s *Swarm) Running() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.running
}

// AsPeer returns this swarm's own identity as a Peer, reachable at its
// bound address once started (or its configured listen address before
// then).
func (s *Swarm) AsPeer() peer.Peer {
	s.runMu.Lock()
	addr := s.listenAddr
	if s.server != nil {
		addr = s.server.Addr()
	}
	s.runMu.Unlock()
	return peer.Peer{PubKey: s.self.PublicKey(), URLs: []string{addr}}
}

// Start binds the server endpoint, dials every already-known peer, and
// runs the gossip and dispatch loops until ctx is cancelled or Stop is
// called. It blocks for the lifetime of the swarm; callers typically run
// it in its own goroutine. Re-entrant calls fail with ErrAlreadyRunning.
func (s *Swarm) Start(ctx context.Context, chain *chainref.Chain, distributeInterval time.Duration) error {
	s.runMu.Lock()
	if s.running {
		s.runMu.Unlock()
		return swarmerr.ErrAlreadyRunning
	}
	s.running = true
	s.chain = chain
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.runMu.Unlock()

	srv, err := transport.NewServer(s.listenAddr, s.insecureTLS)
	if err != nil {
		s.runMu.Lock()
		s.running = false
		s.runMu.Unlock()
		return fmt.Errorf("bind server endpoint: %w", err)
	}
	s.runMu.Lock()
	s.server = srv
	s.runMu.Unlock()
	go srv.Serve(runCtx)

	for _, p := range s.live.List() {
		s.dialKnownPeer(runCtx, p)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); s.gossipLoop(runCtx, distributeInterval) }()
	go func() { defer wg.Done(); s.dispatchLoop(runCtx) }()
	wg.Wait()
	return nil
}

// dialKnownPeer best-effort dials a peer already present in the live set at
// startup, so already-configured endpoints (e.g. seed peers added before
// Start) are reachable immediately rather than waiting for the first
// gossip round to reintroduce them. On success it replaces the live entry
// with its pruned URL list, the same as addPeersLocked does for peers added
// while running.
func (s *Swarm) dialKnownPeer(ctx context.Context, p peer.Peer) {
	addr, err := p.Address()
	if err != nil {
		log.WithError(err).Warn("seed peer has unparseable public key")
		return
	}
	dialCtx, cancel := context.WithTimeout(ctx, s.dialTimeout)
	defer cancel()
	ep, err := s.clients.Dial(dialCtx, addr, p.URLs, s.self)
	if err != nil {
		log.WithError(err).WithField("peer", addr.String()).Debug("seed peer unreachable at start")
		return
	}
	ts, ok := s.live.LastSeen(p)
	if !ok {
		ts = time.Now()
	}
	s.live.Put(p.WithURLs(prunedURLs(p.URLs, ep.LiveURL())), ts)
}

// Stop idempotently tears the swarm down: it tombstones this node's own
// peer entry, broadcasts a final farewell delta, closes every client
// endpoint and the server endpoint, and unblocks Start.
func (s *Swarm) Stop(ctx context.Context) error {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.runMu.Unlock()

	now := time.Now()
	self := s.AsPeer()
	s.tombstone.Add(self, now)
	s.distributeDelta(ctx, now, false)

	s.clients.CloseAll()
	s.runMu.Lock()
	srv := s.server
	s.runMu.Unlock()
	if srv != nil {
		_ = srv.Close()
	}

	s.runMu.Lock()
	s.running = false
	s.server = nil
	s.runMu.Unlock()

	cancel()
	return nil
}

// AddPeers adds candidate peers to the live set: for each one, it drops
// any tombstone, skips itself and peers already live, dials the peer when
// running (skipping it on dial failure), and stores the (possibly
// URL-pruned) result with ts. It returns the peers actually added.
func (s *Swarm) AddPeers(ctx context.Context, peers []peer.Peer, ts time.Time) []peer.Peer {
	s.receiveMu.Lock()
	defer s.receiveMu.Unlock()
	return s.addPeersLocked(ctx, peers, ts)
}

func (s *Swarm) addPeersLocked(ctx context.Context, peers []peer.Peer, ts time.Time) []peer.Peer {
	var added []peer.Peer
	selfAddr := s.self.Address()
	for _, p := range peers {
		s.tombstone.Drop(p)

		addr, err := p.Address()
		if err != nil {
			log.WithError(err).Debug("skipping peer with unparseable public key")
			continue
		}
		if addr == selfAddr {
			continue
		}
		if _, ok := s.live.Find(p); ok {
			continue
		}

		final := p
		if s.Running() {
			dialCtx, cancel := context.WithTimeout(ctx, s.dialTimeout)
			ep, err := s.clients.Dial(dialCtx, addr, p.URLs, s.self)
			cancel()
			if err != nil {
				log.WithError(err).WithField("peer", addr.String()).Debug("dropping peer unreachable on add")
				continue
			}
			final = p.WithURLs(prunedURLs(p.URLs, ep.LiveURL()))
		}

		s.live.Put(final, ts)
		added = append(added, final)
	}
	s.metrics.SetLivePeers(s.live.Count())
	s.metrics.SetClientEndpoints(s.clients.Count())
	return added
}

// prunedURLs returns urls starting at the first occurrence of live, or all
// of urls unchanged if live is not found in it.
func prunedURLs(urls []string, live string) []string {
	for i, u := range urls {
		if u == live {
			return urls[i:]
		}
	}
	return urls
}

// Remove unconditionally drops p from the live set and closes its client
// endpoint, if any.
func (s *Swarm) Remove(p peer.Peer) {
	s.receiveMu.Lock()
	defer s.receiveMu.Unlock()
	if addr, err := p.Address(); err == nil {
		s.clients.Remove(addr)
	}
	s.live.Remove(p)
	s.metrics.SetLivePeers(s.live.Count())
	s.metrics.SetClientEndpoints(s.clients.Count())
}

// Contains reports whether p is in the live set.
func (s *Swarm) Contains(p peer.Peer) bool { return s.live.Contains(p) }

// Clear empties the live set without touching client endpoints or
// tombstones.
func (s *Swarm) Clear() { s.live.Clear() }

// Count returns the number of live peers.
func (s *Swarm) Count() int { return s.live.Count() }

// CopyTo copies up to len(out)-offset live peers into out starting at
// offset.
func (s *Swarm) CopyTo(out []peer.Peer, offset int) (int, error) {
	return s.live.CopyTo(out, offset)
}

// Snapshot is a point-in-time view of swarm state for admin/debug surfaces
// (e.g. a node's "status" command) and for metrics collection.
type Snapshot struct {
	LivePeers       int
	Tombstoned      int
	ClientEndpoints int
	LastDistributed time.Time
	LastReceived    time.Time
}

// Snapshot returns the current swarm state.
func (s *Swarm) Snapshot() Snapshot {
	return Snapshot{
		LivePeers:       s.live.Count(),
		Tombstoned:      s.tombstone.Count(),
		ClientEndpoints: s.clients.Count(),
		LastDistributed: s.lastDistributed,
		LastReceived:    s.lastReceived,
	}
}

func pubKeyHex(p peer.Peer) string {
	return hex.EncodeToString(p.PubKey)
}
