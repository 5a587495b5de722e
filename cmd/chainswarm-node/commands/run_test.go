package commands

import "testing"

func TestParseSeedPeersValid(t *testing.T) {
	peers, err := parseSeedPeers([]string{"aabbcc@127.0.0.1:7000", "112233@example.org:8000"})
	if err != nil {
		t.Fatalf("parseSeedPeers() error: %v", err)
	}
	if len(peers) != 2 {
		t.Fatalf("len(peers) = %d, want 2", len(peers))
	}
	if peers[0].URLs[0] != "127.0.0.1:7000" {
		t.Fatalf("peers[0].URLs[0] = %q, want 127.0.0.1:7000", peers[0].URLs[0])
	}
}

func TestParseSeedPeersRejectsMalformed(t *testing.T) {
	cases := []string{"noatsign", "@missingpubkey", "missingaddr@", "zzzz@127.0.0.1:7000"}
	for _, c := range cases {
		if _, err := parseSeedPeers([]string{c}); err == nil {
			t.Fatalf("parseSeedPeers(%q) expected an error, got nil", c)
		}
	}
}

func TestParseSeedPeersEmpty(t *testing.T) {
	peers, err := parseSeedPeers(nil)
	if err != nil {
		t.Fatalf("parseSeedPeers(nil) error: %v", err)
	}
	if len(peers) != 0 {
		t.Fatalf("len(peers) = %d, want 0", len(peers))
	}
}
