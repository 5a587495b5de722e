package peer

import (
	"testing"
	"time"

	"chainswarm/internal/swarmerr"
)

func mustIdentityPub(t *testing.T, seed byte) []byte {
	t.Helper()
	pub := make([]byte, 33)
	pub[0] = 0x02
	for i := 1; i < len(pub); i++ {
		pub[i] = seed
	}
	return pub
}

func TestPeerSetPutContainsRemove(t *testing.T) {
	ps := NewPeerSet()
	p := Peer{PubKey: mustIdentityPub(t, 1), URLs: []string{"quic://a:1"}}

	if ps.Contains(p) {
		t.Fatal("empty set should not contain p")
	}
	ps.Put(p, time.Unix(100, 0))
	if !ps.Contains(p) {
		t.Fatal("set should contain p after Put")
	}
	if got := ps.Count(); got != 1 {
		t.Fatalf("Count() = %d, want 1", got)
	}
	ts, ok := ps.LastSeen(p)
	if !ok || !ts.Equal(time.Unix(100, 0)) {
		t.Fatalf("LastSeen = %v, %v", ts, ok)
	}

	ps.Remove(p)
	if ps.Contains(p) {
		t.Fatal("set should not contain p after Remove")
	}
}

func TestPeerSetKeyedByPublicKeyNotURLs(t *testing.T) {
	ps := NewPeerSet()
	pub := mustIdentityPub(t, 2)
	p1 := Peer{PubKey: pub, URLs: []string{"quic://a:1", "quic://b:1"}}
	ps.Put(p1, time.Unix(1, 0))

	p2 := Peer{PubKey: pub, URLs: []string{"quic://b:1"}}
	ps.Put(p2, time.Unix(2, 0))

	if got := ps.Count(); got != 1 {
		t.Fatalf("Count() = %d, want 1 (same pubkey must replace, not add)", got)
	}
	found, ok := ps.Find(p1)
	if !ok {
		t.Fatal("expected to find entry by shared pubkey")
	}
	if len(found.URLs) != 1 || found.URLs[0] != "quic://b:1" {
		t.Fatalf("expected URL list to be replaced by latest Put, got %v", found.URLs)
	}
}

func TestPeerSetClear(t *testing.T) {
	ps := NewPeerSet()
	ps.Put(Peer{PubKey: mustIdentityPub(t, 3)}, time.Now())
	ps.Put(Peer{PubKey: mustIdentityPub(t, 4)}, time.Now())
	ps.Clear()
	if ps.Count() != 0 {
		t.Fatalf("Count() after Clear = %d, want 0", ps.Count())
	}
}

func TestPeerSetCopyTo(t *testing.T) {
	ps := NewPeerSet()
	p1 := Peer{PubKey: mustIdentityPub(t, 5)}
	p2 := Peer{PubKey: mustIdentityPub(t, 6)}
	ps.Put(p1, time.Now())
	ps.Put(p2, time.Now())

	out := make([]Peer, 2)
	n, err := ps.CopyTo(out, 0)
	if err != nil {
		t.Fatalf("CopyTo error: %v", err)
	}
	if n != 2 {
		t.Fatalf("CopyTo copied %d, want 2", n)
	}
}

func TestPeerSetCopyToNullArg(t *testing.T) {
	ps := NewPeerSet()
	if _, err := ps.CopyTo(nil, 0); err != swarmerr.ErrNullArg {
		t.Fatalf("CopyTo(nil, 0) error = %v, want ErrNullArg", err)
	}
}

func TestPeerSetCopyToNegativeOffset(t *testing.T) {
	ps := NewPeerSet()
	out := make([]Peer, 2)
	if _, err := ps.CopyTo(out, -1); err != swarmerr.ErrRangeError {
		t.Fatalf("CopyTo negative offset error = %v, want ErrRangeError", err)
	}
}

func TestPeerSetCopyToInsufficientLength(t *testing.T) {
	ps := NewPeerSet()
	ps.Put(Peer{PubKey: mustIdentityPub(t, 7)}, time.Now())
	ps.Put(Peer{PubKey: mustIdentityPub(t, 8)}, time.Now())

	out := make([]Peer, 1)
	if _, err := ps.CopyTo(out, 0); err != swarmerr.ErrArgError {
		t.Fatalf("CopyTo insufficient length error = %v, want ErrArgError", err)
	}
}

func TestRemovedSetAddContainsDrop(t *testing.T) {
	rs := NewRemovedSet()
	p := Peer{PubKey: mustIdentityPub(t, 9)}

	rs.Add(p, time.Unix(100, 0))
	if !rs.Contains(p) {
		t.Fatal("expected tombstone to be present")
	}
	rs.Drop(p)
	if rs.Contains(p) {
		t.Fatal("expected tombstone to be dropped")
	}
}

func TestRemovedSetDueBy(t *testing.T) {
	rs := NewRemovedSet()
	early := Peer{PubKey: mustIdentityPub(t, 10)}
	late := Peer{PubKey: mustIdentityPub(t, 11)}

	rs.Add(early, time.Unix(100, 0))
	rs.Add(late, time.Unix(300, 0))

	due := rs.DueBy(time.Unix(200, 0))
	if len(due) != 1 || !due[0].Equal(early) {
		t.Fatalf("DueBy(200) = %v, want [early]", due)
	}
	if rs.Contains(early) {
		t.Fatal("expected early tombstone to be consumed by DueBy")
	}
	if !rs.Contains(late) {
		t.Fatal("expected late tombstone to remain")
	}
}

func TestLastSeenTimestamps(t *testing.T) {
	l := NewLastSeenTimestamps()
	p := Peer{PubKey: mustIdentityPub(t, 12)}

	if l.Known(p) {
		t.Fatal("fresh tracker should not know p")
	}
	l.Update(p, time.Unix(1, 0))
	if !l.Known(p) {
		t.Fatal("expected p to be known after Update")
	}
	ts, ok := l.Get(p)
	if !ok || !ts.Equal(time.Unix(1, 0)) {
		t.Fatalf("Get = %v, %v", ts, ok)
	}
	l.Update(p, time.Unix(2, 0))
	ts, _ = l.Get(p)
	if !ts.Equal(time.Unix(2, 0)) {
		t.Fatalf("Get after second Update = %v, want 2", ts)
	}
}

func TestPeerEqualAndWithURLs(t *testing.T) {
	pub := mustIdentityPub(t, 13)
	p1 := Peer{PubKey: pub, URLs: []string{"quic://a:1"}}
	p2 := Peer{PubKey: pub, URLs: []string{"quic://a:1"}}
	if !p1.Equal(p2) {
		t.Fatal("expected equal peers to compare equal")
	}

	p3 := p1.WithURLs([]string{"quic://b:1", "quic://c:1"})
	if p1.Equal(p3) {
		t.Fatal("expected WithURLs to produce a distinct URL list")
	}
	if len(p1.URLs) != 1 || p1.URLs[0] != "quic://a:1" {
		t.Fatal("WithURLs must not mutate the receiver")
	}
}
