package peer

import (
	"testing"

	"chainswarm/internal/identity"
)

func TestPeerAddressMatchesIdentity(t *testing.T) {
	id, err := identity.New()
	if err != nil {
		t.Fatalf("identity.New() error: %v", err)
	}
	p := Peer{PubKey: id.PublicKey(), URLs: []string{"quic://127.0.0.1:5001"}}

	addr, err := p.Address()
	if err != nil {
		t.Fatalf("Address() error: %v", err)
	}
	if addr != id.Address() {
		t.Fatalf("Address() = %v, want %v", addr, id.Address())
	}
}

func TestPeerToFromWireRoundTrip(t *testing.T) {
	id, err := identity.New()
	if err != nil {
		t.Fatalf("identity.New() error: %v", err)
	}
	p := Peer{PubKey: id.PublicKey(), URLs: []string{"quic://a:1", "quic://b:1"}}

	back, err := FromWire(p.ToWire())
	if err != nil {
		t.Fatalf("FromWire() error: %v", err)
	}
	if !p.Equal(back) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", back, p)
	}
}

func TestToFromWireSlice(t *testing.T) {
	id1, _ := identity.New()
	id2, _ := identity.New()
	peers := []Peer{
		{PubKey: id1.PublicKey(), URLs: []string{"quic://a:1"}},
		{PubKey: id2.PublicKey(), URLs: []string{"quic://b:1"}},
	}

	back, err := FromWireSlice(ToWireSlice(peers))
	if err != nil {
		t.Fatalf("FromWireSlice() error: %v", err)
	}
	if len(back) != len(peers) {
		t.Fatalf("len(back) = %d, want %d", len(back), len(peers))
	}
	for i := range peers {
		if !peers[i].Equal(back[i]) {
			t.Fatalf("entry %d mismatch: got %+v, want %+v", i, back[i], peers[i])
		}
	}
}
