package swarm

import (
	"context"
	"fmt"

	"chainswarm/internal/chainref"
	"chainswarm/internal/swarmerr"
	"chainswarm/internal/wireproto"
)

// BroadcastBlocks announces newly-appended blocks to every live peer via a
// BlockHashes message, prompting each to catch up.
func (s *Swarm) BroadcastBlocks(ctx context.Context, blocks []chainref.Block) error {
	if len(blocks) == 0 {
		return fmt.Errorf("%w: empty block list", swarmerr.ErrArgError)
	}
	hashes := make([]string, len(blocks))
	for i, b := range blocks {
		hashes[i] = b.Hash().Hex()
	}
	return s.broadcastAll(ctx, wireproto.TypeBlockHashes, wireproto.BlockHashesPayload{Hashes: hashes})
}

// BroadcastTxs announces newly-staged transactions to every live peer via
// a TxIds message, prompting each to fetch the ones it doesn't have.
func (s *Swarm) BroadcastTxs(ctx context.Context, txs []chainref.Transaction) error {
	if len(txs) == 0 {
		return fmt.Errorf("%w: empty transaction list", swarmerr.ErrArgError)
	}
	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID().Hex()
	}
	return s.broadcastAll(ctx, wireproto.TypeTxIds, wireproto.TxIdsPayload{IDs: ids})
}

func (s *Swarm) broadcastAll(ctx context.Context, msgType wireproto.MsgType, payload interface{}) error {
	if !s.Running() {
		return swarmerr.ErrNotStarted
	}
	for _, p := range s.live.List() {
		addr, err := p.Address()
		if err != nil {
			continue
		}
		ep, ok := s.clients.Get(addr)
		if !ok {
			continue
		}
		if err := ep.Send(ctx, msgType, payload, s.self); err != nil {
			log.WithError(err).WithField("peer", addr.String()).Debug("broadcast send failed")
		}
	}
	return nil
}
