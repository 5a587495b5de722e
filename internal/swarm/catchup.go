package swarm

import (
	"context"
	"encoding/hex"
	"fmt"

	"chainswarm/internal/chainref"
	"chainswarm/internal/identity"
	"chainswarm/internal/swarmerr"
	"chainswarm/internal/transport"
	"chainswarm/internal/wireproto"
)

// catchUp runs the chain sync algorithm for an announced set of block
// hashes from peerAddr: resolve the announcer's client endpoint (raising
// ErrPeerNotFound if it has none — the catch-up tier of spec's §7 "a
// handler needs the client endpoint of a peer it does not have", which
// propagates to the caller rather than being swallowed), fetch the blocks,
// then decide whether they extend the local tip directly (Case A, append),
// describe a longer fork that requires rewinding first (Case B, reorg —
// handled recursively), or are already behind the local tip (Case C,
// stale — ignored).
func (s *Swarm) catchUp(ctx context.Context, peerAddr identity.Address, hashes []wireproto.Hash) error {
	ep, ok := s.clients.Get(peerAddr)
	if !ok {
		s.metrics.IncCatchUp("error")
		return swarmerr.ErrPeerNotFound
	}

	blocks, err := s.getBlocks(ctx, ep, hashes)
	if err != nil {
		s.metrics.IncCatchUp("error")
		return err
	}
	if len(blocks) == 0 {
		return nil
	}
	oldest := blocks[0]
	latest := blocks[len(blocks)-1]

	tipHash, hasTip := s.chain.IndexBlockHash(-1)
	tip := s.chain.Tip()

	switch {
	case !hasTip || oldest.PreviousHash == tipHash:
		for _, b := range blocks {
			if err := s.chain.Append(b); err != nil {
				s.metrics.IncCatchUp("error")
				return fmt.Errorf("append during catch-up: %w", err)
			}
		}
		s.metrics.IncCatchUp("append")
		return nil

	case latest.Index > tip.Index:
		if err := s.reorgTo(ctx, ep, oldest); err != nil {
			s.metrics.IncCatchUp("error")
			return err
		}
		s.metrics.IncCatchUp("reorg")
		return s.catchUp(ctx, peerAddr, hashes)

	default:
		s.metrics.IncCatchUp("stale")
		return nil
	}
}

// reorgTo asks ep for its block hashes from our own locator down to (and
// including) oldest, truncates our chain at the returned common ancestor,
// and appends everything ep reports between the branch point and oldest —
// but not oldest itself, which the caller's recursive catchUp re-entry
// appends once oldest.PreviousHash connects to the new tip.
func (s *Swarm) reorgTo(ctx context.Context, ep *transport.ClientEndpoint, oldest chainref.Block) error {
	locator := s.chain.GetBlockLocator()
	locatorHex := make([]string, len(locator.Hashes))
	for i, h := range locator.Hashes {
		locatorHex[i] = h.Hex()
	}

	env, err := ep.Exchange(ctx, wireproto.TypeGetBlockHashes, wireproto.GetBlockHashesPayload{
		Locator: locatorHex,
		Stop:    oldest.Hash().Hex(),
	}, s.self)
	if err != nil {
		return fmt.Errorf("request block hashes for reorg: %w", err)
	}
	if env.Type != wireproto.TypeBlockHashes {
		return fmt.Errorf("%w: expected BlockHashes reply, got %v", swarmerr.ErrInvalidMessage, env.Type)
	}
	var bh wireproto.BlockHashesPayload
	if err := wireproto.Unmarshal(env, &bh); err != nil {
		return err
	}
	if len(bh.Hashes) == 0 {
		return fmt.Errorf("%w: empty BlockHashes reply during reorg", swarmerr.ErrInvalidMessage)
	}

	returned := make([]wireproto.Hash, len(bh.Hashes))
	for i, hs := range bh.Hashes {
		h, err := wireproto.ParseHash(hs)
		if err != nil {
			return err
		}
		returned[i] = h
	}

	branchPoint := returned[0]
	s.chain.DeleteAfter(branchPoint)

	rest := returned[1:]
	if len(rest) > 0 && rest[len(rest)-1] == oldest.Hash() {
		// The stop hash is returned inclusively; drop it here so the chain
		// ends up one block short of oldest, letting the recursive catchUp
		// re-entry's Case A pick it up (oldest.PreviousHash now equals our
		// new tip).
		rest = rest[:len(rest)-1]
	}
	if len(rest) == 0 {
		return nil
	}
	blocks, err := s.getBlocks(ctx, ep, rest)
	if err != nil {
		return err
	}
	for _, b := range blocks {
		if err := s.chain.Append(b); err != nil {
			return fmt.Errorf("append during reorg: %w", err)
		}
	}
	return nil
}

// getBlocks requests the canonical bytes for hashes and decodes each reply
// in order.
func (s *Swarm) getBlocks(ctx context.Context, ep *transport.ClientEndpoint, hashes []wireproto.Hash) ([]chainref.Block, error) {
	if len(hashes) == 0 {
		return nil, nil
	}
	hexHashes := make([]string, len(hashes))
	for i, h := range hashes {
		hexHashes[i] = h.Hex()
	}
	envs, err := ep.ExchangeMany(ctx, wireproto.TypeGetBlocks, wireproto.GetBlocksPayload{Hashes: hexHashes}, s.self, len(hashes))
	if err != nil {
		return nil, fmt.Errorf("fetch blocks: %w", err)
	}
	blocks := make([]chainref.Block, len(envs))
	for i, env := range envs {
		if env.Type != wireproto.TypeBlock {
			return nil, fmt.Errorf("%w: expected Block reply, got %v", swarmerr.ErrInvalidMessage, env.Type)
		}
		var bp wireproto.BlockPayload
		if err := wireproto.Unmarshal(env, &bp); err != nil {
			return nil, err
		}
		raw, err := hex.DecodeString(bp.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: bad block encoding: %v", swarmerr.ErrInvalidMessage, err)
		}
		blk, err := chainref.DecodeBlock(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", swarmerr.ErrInvalidMessage, err)
		}
		blocks[i] = blk
	}
	return blocks, nil
}
