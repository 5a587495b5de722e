// Package chainref is a minimal in-memory implementation of the external
// Chain/Block/Transaction interface the swarm consumes. Validation rules,
// persistent storage, and canonical encoding for a real blockchain live
// outside this package; chainref exists so internal/swarm is runnable and
// testable on its own, the same way network tests elsewhere stand up a
// bare in-memory pair rather than depending on the rest of the node.
//
// Hashing uses sha3, already used by internal/identity. Canonical byte
// encoding uses encoding/gob, since chainref has no external wire-format
// requirement of its own — only the swarm's wireproto.Block/Tx payload
// frames need a stable byte string.
package chainref

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"

	"golang.org/x/crypto/sha3"

	"chainswarm/internal/wireproto"
)

// Transaction is the reference transaction type: an opaque payload plus its
// content-derived id.
type Transaction struct {
	Payload []byte
}

// ID returns the transaction's content hash.
func (tx Transaction) ID() wireproto.Hash {
	return wireproto.Hash(sha3.Sum256(tx.Payload))
}

// Bytes returns tx's canonical encoding.
func (tx Transaction) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(tx); err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeTransaction parses a transaction from its canonical encoding.
func DecodeTransaction(b []byte) (Transaction, error) {
	var tx Transaction
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&tx); err != nil {
		return Transaction{}, fmt.Errorf("decode transaction: %w", err)
	}
	return tx, nil
}

// Block is the reference block type: an index, a previous-hash link, and a
// batch of transactions. Its Hash is derived from its content, so two
// blocks with identical index/previous hash/transactions are identical
// blocks.
type Block struct {
	Index        int
	PreviousHash wireproto.Hash
	Transactions []Transaction
}

// Hash returns the block's content hash.
func (b Block) Hash() wireproto.Hash {
	h := sha3.New256()
	fmt.Fprintf(h, "%d:%s", b.Index, b.PreviousHash.Hex())
	for _, tx := range b.Transactions {
		id := tx.ID()
		h.Write(id[:])
	}
	var out wireproto.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Bytes returns b's canonical encoding.
func (b Block) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(b); err != nil {
		return nil, fmt.Errorf("encode block: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeBlock parses a block from its canonical encoding.
func DecodeBlock(b []byte) (Block, error) {
	var blk Block
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&blk); err != nil {
		return Block{}, fmt.Errorf("decode block: %w", err)
	}
	return blk, nil
}

// BlockLocator is a compact description of a chain's shape, sufficient for
// a peer to find the common ancestor with another chain: the chain's block
// hashes from the tip backward, newest first.
type BlockLocator struct {
	Hashes []wireproto.Hash
}

// Chain is the reference append-only chain the swarm drives through catch
// up: block lookup by index or hash, the current tip, the staged
// transaction pool, locator-based hash lookahead, append, truncation for
// reorgs, and transaction staging.
type Chain struct {
	mu sync.RWMutex

	order []wireproto.Hash          // block hashes in chain order, genesis first
	blocks map[wireproto.Hash]Block // hash -> block

	txPool map[wireproto.Hash]Transaction // staged transactions, by id
}

// NewChain builds a chain seeded with a single genesis block (index 0, a
// zero previous-hash, no transactions).
func NewChain() *Chain {
	genesis := Block{Index: 0, PreviousHash: wireproto.Hash{}}
	h := genesis.Hash()
	return &Chain{
		order:  []wireproto.Hash{h},
		blocks: map[wireproto.Hash]Block{h: genesis},
		txPool: make(map[wireproto.Hash]Transaction),
	}
}

// IndexBlockHash returns the hash of the block at i, or the tip's hash when
// i is -1. The second return value is false when i is out of range.
func (c *Chain) IndexBlockHash(i int) (wireproto.Hash, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i == -1 {
		i = len(c.order) - 1
	}
	if i < 0 || i >= len(c.order) {
		return wireproto.Hash{}, false
	}
	return c.order[i], true
}

// Tip returns the chain's current head block.
func (c *Chain) Tip() Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[c.order[len(c.order)-1]]
}

// Blocks returns a snapshot of every block in the chain, keyed by hash.
func (c *Chain) Blocks() map[wireproto.Hash]Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[wireproto.Hash]Block, len(c.blocks))
	for h, b := range c.blocks {
		out[h] = b
	}
	return out
}

// Transactions returns a snapshot of the staged transaction pool, keyed by
// id.
func (c *Chain) Transactions() map[wireproto.Hash]Transaction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[wireproto.Hash]Transaction, len(c.txPool))
	for id, tx := range c.txPool {
		out[id] = tx
	}
	return out
}

// FindNextHashes returns up to max block hashes following the first hash in
// locator that this chain recognizes, stopping at (and including) stop if
// non-zero. The first returned hash is always the recognized locator entry
// itself — the common ancestor / branch point — so a caller reorging off
// the result always has an anchor to truncate back to.
func (c *Chain) FindNextHashes(locator BlockLocator, stop wireproto.Hash, max int) []wireproto.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()

	anchor := -1
	for _, h := range locator.Hashes {
		if idx, ok := c.indexOf(h); ok {
			anchor = idx
			break
		}
	}
	if anchor == -1 {
		return nil
	}

	out := make([]wireproto.Hash, 0, max)
	for i := anchor; i < len(c.order) && len(out) < max; i++ {
		h := c.order[i]
		out = append(out, h)
		if !stop.IsZero() && h == stop {
			break
		}
	}
	return out
}

// indexOf returns the position of hash h in c.order. Caller must hold
// (at least) a read lock.
func (c *Chain) indexOf(h wireproto.Hash) (int, bool) {
	for i, o := range c.order {
		if o == h {
			return i, true
		}
	}
	return 0, false
}

// GetBlockLocator builds a locator for the current chain: every block hash
// from the tip back to genesis, newest first. Simpler than Bitcoin's
// exponentially-sparse locator, sufficient for the in-process test chains
// this reference implementation is sized for.
func (c *Chain) GetBlockLocator() BlockLocator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hashes := make([]wireproto.Hash, len(c.order))
	for i, h := range c.order {
		hashes[len(c.order)-1-i] = h
	}
	return BlockLocator{Hashes: hashes}
}

// ErrChainMismatch is returned by Append when the block does not extend
// the current tip.
var ErrChainMismatch = fmt.Errorf("block does not extend chain tip")

// Append adds block to the end of the chain. It fails with
// ErrChainMismatch if block.PreviousHash does not equal the current tip's
// hash, or if block.Index is not exactly one past the tip's index.
func (c *Chain) Append(block Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	tipHash := c.order[len(c.order)-1]
	tip := c.blocks[tipHash]
	if block.PreviousHash != tipHash || block.Index != tip.Index+1 {
		return ErrChainMismatch
	}
	h := block.Hash()
	c.order = append(c.order, h)
	c.blocks[h] = block
	for _, tx := range block.Transactions {
		delete(c.txPool, tx.ID())
	}
	return nil
}

// DeleteAfter truncates the chain to end at hash, inclusive of everything
// kept and exclusive of everything after. It is a no-op if hash is not
// found.
func (c *Chain) DeleteAfter(hash wireproto.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.indexOf(hash)
	if !ok {
		return
	}
	for _, h := range c.order[idx+1:] {
		delete(c.blocks, h)
	}
	c.order = c.order[:idx+1]
}

// StageTransactions adds the given transactions to the pending pool,
// keyed by id.
func (c *Chain) StageTransactions(txs []Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tx := range txs {
		c.txPool[tx.ID()] = tx
	}
}
