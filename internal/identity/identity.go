// Package identity implements the signing-key-pair-plus-derived-address
// contract the swarm consumes: sign bytes, verify a signature while
// recovering the signer's address, derive an address from a public key.
package identity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"golang.org/x/crypto/sha3"
)

// AddressSize is the length, in bytes, of a derived address.
const AddressSize = 20

// Address is a short identifier derived from a public key.
type Address [AddressSize]byte

func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Identity is a signing key pair with its derived address. The private
// scalar and public key are immutable once constructed.
type Identity struct {
	priv    *btcec.PrivateKey
	pub     *btcec.PublicKey
	address Address
}

// New generates a fresh identity.
func New() (*Identity, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	return fromPrivateKey(priv), nil
}

func fromPrivateKey(priv *btcec.PrivateKey) *Identity {
	pub := priv.PubKey()
	return &Identity{priv: priv, pub: pub, address: DeriveAddress(pub)}
}

// DeriveAddress computes the short address for a public key: the low
// AddressSize bytes of its SHA3-256 hash over the compressed encoding.
func DeriveAddress(pub *btcec.PublicKey) Address {
	sum := sha3.Sum256(pub.SerializeCompressed())
	var addr Address
	copy(addr[:], sum[len(sum)-AddressSize:])
	return addr
}

// Address returns the identity's derived address.
func (id *Identity) Address() Address {
	return id.address
}

// PublicKey returns the raw compressed public key bytes.
func (id *Identity) PublicKey() []byte {
	return id.pub.SerializeCompressed()
}

// Sign produces a compact, recoverable signature over the SHA3-256 digest
// of data.
func (id *Identity) Sign(data []byte) ([]byte, error) {
	digest := sha3.Sum256(data)
	sig := ecdsa.SignCompact(id.priv, digest[:], true)
	return sig, nil
}

// Recover recovers the public key that produced a compact recoverable
// signature over data and returns its address. It does not require knowing
// the signer's public key ahead of time. A signature checked against data
// other than what was signed recovers a different address rather than
// failing; an error is returned only when sig is malformed or no key can be
// recovered from it.
func Recover(data, sig []byte) (Address, error) {
	if len(sig) != 65 {
		return Address{}, errors.New("identity: bad signature length")
	}
	digest := sha3.Sum256(data)
	pub, _, err := ecdsa.RecoverCompact(sig, digest[:])
	if err != nil {
		return Address{}, fmt.Errorf("identity: recover: %w", err)
	}
	return DeriveAddress(pub), nil
}

// Save persists the private key (hex-encoded, 0600) under dir.
func Save(dir string, id *Identity) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	priv := id.priv.Serialize()
	return os.WriteFile(filepath.Join(dir, "identity.key"), []byte(hex.EncodeToString(priv)), 0600)
}

// Load reads a previously-saved identity from dir.
func Load(dir string) (*Identity, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "identity.key"))
	if err != nil {
		return nil, err
	}
	b, err := hex.DecodeString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("identity: bad identity.key: %w", err)
	}
	priv, _ := btcec.PrivKeyFromBytes(b)
	if priv == nil {
		return nil, errors.New("identity: bad private key bytes")
	}
	return fromPrivateKey(priv), nil
}

// LoadOrCreate loads the identity under dir, generating and saving a new
// one if none exists yet.
func LoadOrCreate(dir string) (*Identity, error) {
	id, err := Load(dir)
	if err == nil {
		return id, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	id, err = New()
	if err != nil {
		return nil, err
	}
	if err := Save(dir, id); err != nil {
		return nil, err
	}
	return id, nil
}
