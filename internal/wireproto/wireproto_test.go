package wireproto

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"chainswarm/internal/identity"
	"chainswarm/internal/swarmerr"
)

func newTestIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	id, err := identity.New()
	if err != nil {
		t.Fatalf("identity.New() error: %v", err)
	}
	return id
}

func roundTrip(t *testing.T, msgType MsgType, payload interface{}, signer *identity.Identity) Envelope {
	t.Helper()
	data, err := Encode(msgType, payload, signer)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	env, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if env.Type != msgType {
		t.Fatalf("Type = %v, want %v", env.Type, msgType)
	}
	if !env.HasIdentity {
		t.Fatal("expected HasIdentity")
	}
	if env.Identity != signer.Address() {
		t.Fatalf("Identity = %v, want %v", env.Identity, signer.Address())
	}
	return env
}

func TestEncodeDecodePing(t *testing.T) {
	id := newTestIdentity(t)
	roundTrip(t, TypePing, PingPayload{}, id)
}

func TestEncodeDecodePong(t *testing.T) {
	id := newTestIdentity(t)
	roundTrip(t, TypePong, PongPayload{}, id)
}

func TestEncodeDecodePeerSetDeltaFullState(t *testing.T) {
	id := newTestIdentity(t)
	existing := []PeerWire{{PubKey: "aa", URLs: []string{"quic://a:1"}}}
	payload := PeerSetDeltaPayload{
		Sender:    PeerWire{PubKey: "bb", URLs: []string{"quic://b:1"}},
		Timestamp: time.Unix(1000, 0).UTC(),
		Added:     []PeerWire{},
		Removed:   []PeerWire{},
		Existing:  &existing,
	}
	env := roundTrip(t, TypePeerSetDelta, payload, id)

	var got PeerSetDeltaPayload
	if err := Unmarshal(env, &got); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if got.Existing == nil || len(*got.Existing) != 1 {
		t.Fatalf("Existing = %v, want one entry", got.Existing)
	}
	if !payload.Timestamp.Equal(got.Timestamp) {
		t.Fatalf("Timestamp = %v, want %v", got.Timestamp, payload.Timestamp)
	}
}

func TestEncodeDecodePeerSetDeltaIncrementalHasNoExisting(t *testing.T) {
	id := newTestIdentity(t)
	payload := PeerSetDeltaPayload{
		Sender:    PeerWire{PubKey: "bb", URLs: []string{"quic://b:1"}},
		Timestamp: time.Unix(2000, 0).UTC(),
		Added:     []PeerWire{{PubKey: "cc", URLs: []string{"quic://c:1"}}},
		Removed:   []PeerWire{},
	}
	env := roundTrip(t, TypePeerSetDelta, payload, id)

	var got PeerSetDeltaPayload
	if err := Unmarshal(env, &got); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if got.Existing != nil {
		t.Fatalf("Existing = %v, want nil (absent)", got.Existing)
	}
}

func TestEncodeDecodeGetBlockHashes(t *testing.T) {
	id := newTestIdentity(t)
	payload := GetBlockHashesPayload{Locator: []string{Hash{1}.Hex()}, Stop: Hash{2}.Hex()}
	env := roundTrip(t, TypeGetBlockHashes, payload, id)

	var got GetBlockHashesPayload
	if err := Unmarshal(env, &got); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if len(got.Locator) != 1 {
		t.Fatalf("Locator = %v, want 1 entry", got.Locator)
	}
}

func TestEncodeDecodeBlockHashesRejectsEmpty(t *testing.T) {
	id := newTestIdentity(t)
	data, err := Encode(TypeBlockHashes, BlockHashesPayload{Hashes: nil}, id)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if _, err := Decode(bytes.NewReader(data)); err == nil {
		t.Fatal("expected InvalidMessage decoding empty BlockHashes")
	} else if !errors.Is(err, swarmerr.ErrInvalidMessage) {
		t.Fatalf("error = %v, want ErrInvalidMessage", err)
	}
}

func TestEncodeDecodeGetBlocksRejectsEmpty(t *testing.T) {
	id := newTestIdentity(t)
	data, err := Encode(TypeGetBlocks, GetBlocksPayload{Hashes: nil}, id)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if _, err := Decode(bytes.NewReader(data)); err == nil {
		t.Fatal("expected InvalidMessage decoding empty GetBlocks")
	}
}

func TestEncodeDecodeBlock(t *testing.T) {
	id := newTestIdentity(t)
	payload := BlockPayload{Bytes: "deadbeef"}
	env := roundTrip(t, TypeBlock, payload, id)

	var got BlockPayload
	if err := Unmarshal(env, &got); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if got.Bytes != "deadbeef" {
		t.Fatalf("Bytes = %q, want %q", got.Bytes, "deadbeef")
	}
}

func TestEncodeDecodeTxIds(t *testing.T) {
	id := newTestIdentity(t)
	payload := TxIdsPayload{IDs: []string{Hash{9}.Hex()}}
	env := roundTrip(t, TypeTxIds, payload, id)

	var got TxIdsPayload
	if err := Unmarshal(env, &got); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if len(got.IDs) != 1 {
		t.Fatalf("IDs = %v, want 1 entry", got.IDs)
	}
}

func TestDecodeRejectsTamperedSignature(t *testing.T) {
	id := newTestIdentity(t)
	data, err := Encode(TypePing, PingPayload{}, id)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	// Flip a byte inside the body frame (after the 4-byte length prefix and
	// the 1-byte type tag), corrupting the signed content.
	data[5] ^= 0xff
	if _, err := Decode(bytes.NewReader(data)); err == nil {
		t.Fatal("expected InvalidMessage for tampered body")
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	id := newTestIdentity(t)
	body := []byte{0xff}
	sig, err := id.Sign(body)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	var buf bytes.Buffer
	if err := writeFrame(&buf, body); err != nil {
		t.Fatalf("writeFrame() error: %v", err)
	}
	if err := writeFrame(&buf, sig); err != nil {
		t.Fatalf("writeFrame() error: %v", err)
	}
	if _, err := Decode(&buf); err == nil {
		t.Fatal("expected InvalidMessage for unknown type tag")
	}
}

func TestHashRoundTrip(t *testing.T) {
	h := Hash{1, 2, 3}
	parsed, err := ParseHash(h.Hex())
	if err != nil {
		t.Fatalf("ParseHash() error: %v", err)
	}
	if parsed != h {
		t.Fatalf("parsed = %v, want %v", parsed, h)
	}
}
