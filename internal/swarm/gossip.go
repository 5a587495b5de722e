package swarm

import (
	"context"
	"time"

	"chainswarm/internal/peer"
	"chainswarm/internal/wireproto"
)

// gossipLoop ticks at distributeInterval, distributing a delta on every
// tick and a full-state refresh every tenth tick, until ctx is cancelled.
// The tick counter advances on every tick regardless of whether that tick
// produced anything to send.
func (s *Swarm) gossipLoop(ctx context.Context, distributeInterval time.Duration) {
	ticker := time.NewTicker(distributeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickCount++
			fullState := s.tickCount%10 == 0
			s.distributeDelta(ctx, time.Now(), fullState)
			snap := s.Snapshot()
			s.metrics.SetLivePeers(snap.LivePeers)
			s.metrics.SetClientEndpoints(snap.ClientEndpoints)
		}
	}
}

// distributeDelta computes the set of peers added and removed since the
// last distribution, optionally attaches the full existing-peer list, and
// broadcasts the result to every live peer. A per-send timeout keeps one
// unreachable peer from stalling the whole broadcast; send failures are
// logged and swallowed.
func (s *Swarm) distributeDelta(ctx context.Context, now time.Time, fullState bool) {
	s.distributeMu.Lock()
	defer s.distributeMu.Unlock()

	var added []peer.Peer
	addedKeys := make(map[string]bool)
	for _, e := range s.live.ListWithTimestamps() {
		if e.TS.After(s.lastDistributed) && !e.TS.After(now) {
			added = append(added, e.Peer)
			addedKeys[pubKeyHex(e.Peer)] = true
		}
	}
	removed := s.tombstone.DueBy(now)

	var existing *[]peer.Peer
	if fullState {
		var ex []peer.Peer
		for _, p := range s.live.List() {
			if !addedKeys[pubKeyHex(p)] {
				ex = append(ex, p)
			}
		}
		existing = &ex
	}

	if len(added) == 0 && len(removed) == 0 && !fullState {
		return
	}

	payload := wireproto.PeerSetDeltaPayload{
		Sender:    s.AsPeer().ToWire(),
		Timestamp: now,
		Added:     peer.ToWireSlice(added),
		Removed:   peer.ToWireSlice(removed),
	}
	if existing != nil {
		w := peer.ToWireSlice(*existing)
		payload.Existing = &w
	}

	s.lastDistributed = now

	for _, p := range s.live.List() {
		addr, err := p.Address()
		if err != nil {
			continue
		}
		ep, ok := s.clients.Get(addr)
		if !ok {
			continue
		}
		sendCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
		err = ep.Send(sendCtx, wireproto.TypePeerSetDelta, payload, s.self)
		cancel()
		if err != nil {
			log.WithError(err).WithField("peer", addr.String()).Debug("delta broadcast timed out")
		}
	}
	s.metrics.IncDeltaDistributed()
	s.deltaDistributed.Signal()
}

// applyDelta processes one inbound PeerSetDelta under the
// receive-serialization lock: self-introduction, tombstone/live removal,
// working-set computation, AddPeers, last-seen bookkeeping, and (outside
// the lock) a first-encounter full-state redistribution.
func (s *Swarm) applyDelta(ctx context.Context, env wireproto.Envelope) error {
	var payload wireproto.PeerSetDeltaPayload
	if err := wireproto.Unmarshal(env, &payload); err != nil {
		return err
	}

	sender, err := peer.FromWire(payload.Sender)
	if err != nil {
		return err
	}
	added, err := peer.FromWireSlice(payload.Added)
	if err != nil {
		return err
	}
	removed, err := peer.FromWireSlice(payload.Removed)
	if err != nil {
		return err
	}
	var existing []peer.Peer
	if payload.Existing != nil {
		existing, err = peer.FromWireSlice(*payload.Existing)
		if err != nil {
			return err
		}
	}

	s.receiveMu.Lock()

	_, alreadyLive := s.live.Find(sender)
	firstEncounter := !alreadyLive
	if firstEncounter {
		added = append(added, sender)
	}

	selfAddr := s.self.Address()
	for _, rp := range removed {
		raddr, err := rp.Address()
		if err != nil {
			continue
		}
		if raddr == selfAddr {
			s.tombstone.Add(rp, payload.Timestamp)
			continue
		}
		s.live.Remove(rp)
		s.clients.Remove(raddr)
	}

	working := make([]peer.Peer, 0, len(added)+len(existing))
	working = append(working, added...)
	for _, ep := range existing {
		if s.tombstone.Contains(ep) {
			continue
		}
		working = append(working, ep)
	}

	s.addPeersLocked(ctx, working, payload.Timestamp)

	s.lastReceived = payload.Timestamp
	s.lastSeenTS.Update(sender, payload.Timestamp)

	s.receiveMu.Unlock()

	if firstEncounter {
		s.distributeDelta(ctx, time.Now(), true)
	}

	s.metrics.IncDeltaReceived()
	s.deltaReceived.Signal()
	return nil
}
