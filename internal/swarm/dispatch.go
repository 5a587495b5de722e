package swarm

import (
	"context"
	"encoding/hex"
	"time"

	"chainswarm/internal/chainref"
	"chainswarm/internal/transport"
	"chainswarm/internal/wireproto"
)

// dispatchLoop polls the server endpoint's request channel with a bounded
// timeout, handing each request to its own goroutine so a slow handler
// (e.g. catch-up fetching many blocks) never blocks the next poll.
func (s *Swarm) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.server.Requests():
			go s.handle(ctx, req)
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (s *Swarm) handle(ctx context.Context, req *transport.Request) {
	defer req.Close()
	env := req.Envelope
	s.metrics.IncDispatched(env.Type.String())

	switch env.Type {
	case wireproto.TypePing:
		if err := req.Reply(wireproto.TypePong, wireproto.PongPayload{}, s.self); err != nil {
			log.WithError(err).Debug("reply to ping failed")
		}
	case wireproto.TypePeerSetDelta:
		if err := s.applyDelta(ctx, env); err != nil {
			log.WithError(err).Warn("rejected peer set delta")
		}
	case wireproto.TypeGetBlockHashes:
		s.handleGetBlockHashes(req)
	case wireproto.TypeGetBlocks:
		s.handleGetBlocks(req)
	case wireproto.TypeGetTxs:
		s.handleGetTxs(req)
	case wireproto.TypeTxIds:
		s.handleTxIds(ctx, env)
	case wireproto.TypeBlockHashes:
		s.handleBlockHashesAnnouncement(ctx, env)
	default:
		// Pong/Block/Tx only ever arrive as replies read directly off an
		// Exchange/ExchangeMany call, never as a freshly accepted request;
		// reaching this branch means the codec accepted a type the
		// dispatcher table doesn't know, a programming error.
		log.WithField("type", env.Type.String()).Fatal("dispatcher received an unroutable message type")
	}
}

func (s *Swarm) handleGetBlockHashes(req *transport.Request) {
	var payload wireproto.GetBlockHashesPayload
	if err := wireproto.Unmarshal(req.Envelope, &payload); err != nil {
		log.WithError(err).Debug("bad GetBlockHashes payload")
		return
	}
	locator := chainref.BlockLocator{}
	for _, hs := range payload.Locator {
		h, err := wireproto.ParseHash(hs)
		if err != nil {
			log.WithError(err).Debug("bad locator hash")
			return
		}
		locator.Hashes = append(locator.Hashes, h)
	}
	var stop wireproto.Hash
	if payload.Stop != "" {
		var err error
		stop, err = wireproto.ParseHash(payload.Stop)
		if err != nil {
			log.WithError(err).Debug("bad stop hash")
			return
		}
	}

	hashes := s.chain.FindNextHashes(locator, stop, 500)
	if len(hashes) == 0 {
		// No locator entry is recognized locally; there is nothing
		// meaningful to answer with (BlockHashes never carries an empty
		// hash list), so the request is simply left unanswered.
		return
	}
	hexHashes := make([]string, len(hashes))
	for i, h := range hashes {
		hexHashes[i] = h.Hex()
	}
	if err := req.Reply(wireproto.TypeBlockHashes, wireproto.BlockHashesPayload{Hashes: hexHashes}, s.self); err != nil {
		log.WithError(err).Debug("reply to GetBlockHashes failed")
	}
}

func (s *Swarm) handleGetBlocks(req *transport.Request) {
	var payload wireproto.GetBlocksPayload
	if err := wireproto.Unmarshal(req.Envelope, &payload); err != nil {
		log.WithError(err).Debug("bad GetBlocks payload")
		return
	}
	blocks := s.chain.Blocks()
	for _, hs := range payload.Hashes {
		h, err := wireproto.ParseHash(hs)
		if err != nil {
			continue
		}
		blk, ok := blocks[h]
		if !ok {
			// Missing hashes are silently skipped; callers only request
			// hashes a prior BlockHashes announcement claimed to have, so
			// this should not happen in practice.
			continue
		}
		raw, err := blk.Bytes()
		if err != nil {
			log.WithError(err).Warn("failed to encode block for reply")
			continue
		}
		if err := req.Reply(wireproto.TypeBlock, wireproto.BlockPayload{Bytes: hex.EncodeToString(raw)}, s.self); err != nil {
			log.WithError(err).Debug("reply to GetBlocks failed")
			return
		}
	}
}

func (s *Swarm) handleGetTxs(req *transport.Request) {
	var payload wireproto.GetTxsPayload
	if err := wireproto.Unmarshal(req.Envelope, &payload); err != nil {
		log.WithError(err).Debug("bad GetTxs payload")
		return
	}
	pool := s.chain.Transactions()
	for _, ids := range payload.IDs {
		h, err := wireproto.ParseHash(ids)
		if err != nil {
			continue
		}
		tx, ok := pool[h]
		if !ok {
			continue
		}
		raw, err := tx.Bytes()
		if err != nil {
			log.WithError(err).Warn("failed to encode transaction for reply")
			continue
		}
		if err := req.Reply(wireproto.TypeTx, wireproto.TxPayload{Bytes: hex.EncodeToString(raw)}, s.self); err != nil {
			log.WithError(err).Debug("reply to GetTxs failed")
			return
		}
	}
}

// handleTxIds fetches any transaction ids the announcer claims to have
// that this node does not, stages them, and signals tx_received.
func (s *Swarm) handleTxIds(ctx context.Context, env wireproto.Envelope) {
	var payload wireproto.TxIdsPayload
	if err := wireproto.Unmarshal(env, &payload); err != nil {
		log.WithError(err).Debug("bad TxIds payload")
		return
	}
	ep, ok := s.clients.Get(env.Identity)
	if !ok {
		log.WithField("peer", env.Identity.String()).Debug("tx announcement from unknown peer, ignoring")
		return
	}

	local := s.chain.Transactions()
	var unknown []wireproto.Hash
	for _, ids := range payload.IDs {
		h, err := wireproto.ParseHash(ids)
		if err != nil {
			continue
		}
		if _, known := local[h]; !known {
			unknown = append(unknown, h)
		}
	}
	if len(unknown) == 0 {
		return
	}

	hexIDs := make([]string, len(unknown))
	for i, h := range unknown {
		hexIDs[i] = h.Hex()
	}
	envs, err := ep.ExchangeMany(ctx, wireproto.TypeGetTxs, wireproto.GetTxsPayload{IDs: hexIDs}, s.self, len(unknown))
	if err != nil {
		log.WithError(err).WithField("peer", env.Identity.String()).Debug("fetching announced transactions failed")
		return
	}

	txs := make([]chainref.Transaction, 0, len(envs))
	for _, e := range envs {
		if e.Type != wireproto.TypeTx {
			log.WithField("type", e.Type.String()).Warn("expected Tx reply, got something else")
			return
		}
		var tp wireproto.TxPayload
		if err := wireproto.Unmarshal(e, &tp); err != nil {
			log.WithError(err).Warn("bad Tx reply payload")
			return
		}
		raw, err := hex.DecodeString(tp.Bytes)
		if err != nil {
			log.WithError(err).Warn("bad Tx reply encoding")
			return
		}
		tx, err := chainref.DecodeTransaction(raw)
		if err != nil {
			log.WithError(err).Warn("undecodable Tx reply")
			return
		}
		txs = append(txs, tx)
	}

	s.chain.StageTransactions(txs)
	s.txReceived.Signal()
}

func (s *Swarm) handleBlockHashesAnnouncement(ctx context.Context, env wireproto.Envelope) {
	var payload wireproto.BlockHashesPayload
	if err := wireproto.Unmarshal(env, &payload); err != nil {
		log.WithError(err).Debug("bad BlockHashes payload")
		return
	}
	hashes := make([]wireproto.Hash, 0, len(payload.Hashes))
	for _, hs := range payload.Hashes {
		h, err := wireproto.ParseHash(hs)
		if err != nil {
			log.WithError(err).Debug("bad block hash in announcement")
			return
		}
		hashes = append(hashes, h)
	}
	if err := s.catchUp(ctx, env.Identity, hashes); err != nil {
		log.WithError(err).WithField("peer", env.Identity.String()).Warn("catch-up failed")
	}
}
