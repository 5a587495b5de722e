// Package peer implements the Peer/PeerSet/RemovedSet data model: peers
// identified by public key with a mutable, ordered endpoint-URL list, and
// the live/tombstone/last-seen collections the gossip engine maintains.
package peer

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"chainswarm/internal/identity"
	"chainswarm/internal/wireproto"
)

// Peer is a remote node identified by a public key and reachable at one or
// more endpoint URLs, in preference order.
type Peer struct {
	PubKey []byte
	URLs   []string
}

// Address derives the peer's short address from its public key.
func (p Peer) Address() (identity.Address, error) {
	pub, err := btcec.ParsePubKey(p.PubKey)
	if err != nil {
		return identity.Address{}, err
	}
	return identity.DeriveAddress(pub), nil
}

// Equal reports structural equality: same public key and same URL list in
// the same order.
func (p Peer) Equal(other Peer) bool {
	if len(p.PubKey) != len(other.PubKey) {
		return false
	}
	for i := range p.PubKey {
		if p.PubKey[i] != other.PubKey[i] {
			return false
		}
	}
	if len(p.URLs) != len(other.URLs) {
		return false
	}
	for i := range p.URLs {
		if p.URLs[i] != other.URLs[i] {
			return false
		}
	}
	return true
}

// WithURLs returns a copy of p with its URL list replaced.
func (p Peer) WithURLs(urls []string) Peer {
	cp := make([]string, len(urls))
	copy(cp, urls)
	return Peer{PubKey: p.PubKey, URLs: cp}
}

// key returns the map key used by PeerSet/RemovedSet: the peer's public
// key, hex-encoded. Peers are keyed by public key rather than by
// (pubkey, urls) so that pruning a peer's unreachable URL prefix never
// requires a key remap in the live set.
func (p Peer) key() string {
	return hex.EncodeToString(p.PubKey)
}

// ToWire converts p to its JSON wire representation.
func (p Peer) ToWire() wireproto.PeerWire {
	return wireproto.PeerWire{PubKey: hex.EncodeToString(p.PubKey), URLs: p.URLs}
}

// FromWire parses a wireproto.PeerWire back into a Peer.
func FromWire(w wireproto.PeerWire) (Peer, error) {
	pub, err := hex.DecodeString(w.PubKey)
	if err != nil {
		return Peer{}, fmt.Errorf("bad peer pubkey: %w", err)
	}
	return Peer{PubKey: pub, URLs: w.URLs}, nil
}

// ToWireSlice converts a slice of Peers to their wire form.
func ToWireSlice(peers []Peer) []wireproto.PeerWire {
	out := make([]wireproto.PeerWire, len(peers))
	for i, p := range peers {
		out[i] = p.ToWire()
	}
	return out
}

// FromWireSlice parses a slice of wireproto.PeerWire back into Peers.
func FromWireSlice(ws []wireproto.PeerWire) ([]Peer, error) {
	out := make([]Peer, len(ws))
	for i, w := range ws {
		p, err := FromWire(w)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}
