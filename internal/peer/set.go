package peer

import (
	"sync"
	"time"

	"chainswarm/internal/swarmerr"
)

// timedEntry pairs a Peer with a timestamp: last-seen for the live set,
// removed-at for the tombstone set.
type timedEntry struct {
	peer Peer
	ts   time.Time
}

// timeSet is the shared mutex-guarded map backing PeerSet, RemovedSet, and
// LastSeenTimestamps. Peers are keyed by public key (see Peer.key), so at
// most one entry per public key can ever exist.
type timeSet struct {
	mu      sync.Mutex
	entries map[string]timedEntry
}

func newTimeSet() *timeSet {
	return &timeSet{entries: make(map[string]timedEntry)}
}

func (s *timeSet) put(p Peer, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[p.key()] = timedEntry{peer: p, ts: ts}
}

func (s *timeSet) get(p Peer) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[p.key()]
	return e.ts, ok
}

func (s *timeSet) delete(p Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, p.key())
}

func (s *timeSet) deleteByKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

func (s *timeSet) contains(p Peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[p.key()]
	return ok
}

func (s *timeSet) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]timedEntry)
}

func (s *timeSet) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// snapshot returns a stable copy of every (Peer, timestamp) pair.
func (s *timeSet) snapshot() []timedEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]timedEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}

// PeerSet is the live peer collection: public key -> last-seen timestamp.
type PeerSet struct {
	set *timeSet
}

// NewPeerSet constructs an empty live peer set.
func NewPeerSet() *PeerSet {
	return &PeerSet{set: newTimeSet()}
}

// Contains reports whether p (by public key) is in the live set.
func (ps *PeerSet) Contains(p Peer) bool {
	return ps.set.contains(p)
}

// Put records p -> ts, replacing any existing entry for the same public
// key (and therefore its stored URL list too).
func (ps *PeerSet) Put(p Peer, ts time.Time) {
	ps.set.put(p, ts)
}

// LastSeen returns the timestamp last recorded for p, if present.
func (ps *PeerSet) LastSeen(p Peer) (time.Time, bool) {
	return ps.set.get(p)
}

// Remove unconditionally drops p from the live set.
func (ps *PeerSet) Remove(p Peer) {
	ps.set.delete(p)
}

// RemoveByKey drops a peer identified by its raw public-key hex key,
// without constructing a Peer value. Used when only the public key (not
// the current URL list) is known, e.g. when collapsing duplicate entries
// under the same public key during catch-up.
func (ps *PeerSet) RemoveByKey(pubKeyHexKey string) {
	ps.set.deleteByKey(pubKeyHexKey)
}

// Clear empties the live set.
func (ps *PeerSet) Clear() {
	ps.set.clear()
}

// Count returns the number of live peers.
func (ps *PeerSet) Count() int {
	return ps.set.count()
}

// List returns a stable snapshot of every live peer.
func (ps *PeerSet) List() []Peer {
	entries := ps.set.snapshot()
	out := make([]Peer, len(entries))
	for i, e := range entries {
		out[i] = e.peer
	}
	return out
}

// ListWithTimestamps returns a stable snapshot of every live peer paired
// with its last-seen timestamp.
func (ps *PeerSet) ListWithTimestamps() []struct {
	Peer Peer
	TS   time.Time
} {
	entries := ps.set.snapshot()
	out := make([]struct {
		Peer Peer
		TS   time.Time
	}, len(entries))
	for i, e := range entries {
		out[i] = struct {
			Peer Peer
			TS   time.Time
		}{Peer: e.peer, TS: e.ts}
	}
	return out
}

// Find returns the live entry sharing p's public key, if any — useful when
// a caller only has a Peer whose URL list may be stale.
func (ps *PeerSet) Find(p Peer) (Peer, bool) {
	ps.set.mu.Lock()
	defer ps.set.mu.Unlock()
	e, ok := ps.set.entries[p.key()]
	return e.peer, ok
}

// CopyTo copies up to len(out)-offset live peers into out starting at
// offset. It returns the number of peers copied.
func (ps *PeerSet) CopyTo(out []Peer, offset int) (int, error) {
	if out == nil {
		return 0, swarmerr.ErrNullArg
	}
	if offset < 0 {
		return 0, swarmerr.ErrRangeError
	}
	peers := ps.List()
	if offset > 0 && offset >= len(out) && len(peers) > 0 {
		return 0, swarmerr.ErrArgError
	}
	if len(out)-offset < len(peers) {
		return 0, swarmerr.ErrArgError
	}
	n := copy(out[offset:], peers)
	return n, nil
}

// RemovedSet is the tombstone collection: public key -> removal timestamp.
type RemovedSet struct {
	set *timeSet
}

// NewRemovedSet constructs an empty tombstone set.
func NewRemovedSet() *RemovedSet {
	return &RemovedSet{set: newTimeSet()}
}

// Add tombstones p at ts.
func (rs *RemovedSet) Add(p Peer, ts time.Time) {
	rs.set.put(p, ts)
}

// Contains reports whether p is currently tombstoned.
func (rs *RemovedSet) Contains(p Peer) bool {
	return rs.set.contains(p)
}

// Drop removes p's tombstone (e.g. the caller explicitly re-added it).
func (rs *RemovedSet) Drop(p Peer) {
	rs.set.delete(p)
}

// DueBy returns, and atomically removes, every tombstone with a timestamp
// <= cutoff. The gossip engine calls this once per tick to collect the
// removals due for the next outgoing delta.
func (rs *RemovedSet) DueBy(cutoff time.Time) []Peer {
	rs.set.mu.Lock()
	defer rs.set.mu.Unlock()
	var due []Peer
	for k, e := range rs.set.entries {
		if !e.ts.After(cutoff) {
			due = append(due, e.peer)
			delete(rs.set.entries, k)
		}
	}
	return due
}

// List returns a stable snapshot of every tombstoned peer.
func (rs *RemovedSet) List() []Peer {
	entries := rs.set.snapshot()
	out := make([]Peer, len(entries))
	for i, e := range entries {
		out[i] = e.peer
	}
	return out
}

// Count returns the number of tombstoned peers.
func (rs *RemovedSet) Count() int {
	return rs.set.count()
}

// LastSeenTimestamps tracks, per sender, the most recent timestamp observed
// in any accepted PeerSetDelta.
type LastSeenTimestamps struct {
	set *timeSet
}

// NewLastSeenTimestamps constructs an empty tracker.
func NewLastSeenTimestamps() *LastSeenTimestamps {
	return &LastSeenTimestamps{set: newTimeSet()}
}

// Update records ts for sender, unconditionally.
func (l *LastSeenTimestamps) Update(sender Peer, ts time.Time) {
	l.set.put(sender, ts)
}

// Get returns the last timestamp recorded for sender, if any.
func (l *LastSeenTimestamps) Get(sender Peer) (time.Time, bool) {
	return l.set.get(sender)
}

// Known reports whether sender has ever been recorded.
func (l *LastSeenTimestamps) Known(sender Peer) bool {
	return l.set.contains(sender)
}
