package identity

import (
	"path/filepath"
	"testing"
)

func TestSignAndRecover(t *testing.T) {
	id, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	msg := []byte("ping from a peer")
	sig, err := id.Sign(msg)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	addr, err := Recover(msg, sig)
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if addr != id.Address() {
		t.Fatalf("recovered address %s != signer address %s", addr, id.Address())
	}
}

func TestRecoverRejectsTamperedMessage(t *testing.T) {
	id, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	sig, err := id.Sign([]byte("original"))
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	addr, err := Recover([]byte("tampered"), sig)
	if err == nil && addr == id.Address() {
		t.Fatalf("expected tampered message to not recover the signer's address")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	id, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := Save(dir, id); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Address() != id.Address() {
		t.Fatalf("loaded address %s != original %s", loaded.Address(), id.Address())
	}
}

func TestLoadOrCreate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	first, err := LoadOrCreate(dir)
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	second, err := LoadOrCreate(dir)
	if err != nil {
		t.Fatalf("LoadOrCreate (reload) failed: %v", err)
	}
	if first.Address() != second.Address() {
		t.Fatalf("LoadOrCreate should be idempotent across calls")
	}
}
