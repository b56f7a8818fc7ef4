package chain

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// Signer signs chain hashes with an Ed25519 key and verifies record
// signatures. The hex-encoded public key travels with exports so a
// third party can verify without the keyfile.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// GenerateKey creates a new Ed25519 signer from secure randomness.
func GenerateKey() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return &Signer{priv: priv, pub: pub}, nil
}

// LoadKey reads a hex-encoded Ed25519 private key from path.
func LoadKey(path string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode signing key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signing key must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	priv := ed25519.PrivateKey(raw)
	return &Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// LoadOrCreateKey loads the keyfile if present, otherwise generates a
// key and writes it with owner-only permissions.
func LoadOrCreateKey(path string) (*Signer, error) {
	if _, err := os.Stat(path); err == nil {
		return LoadKey(path)
	}
	s, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := s.Save(path); err != nil {
		return nil, err
	}
	return s, nil
}

// Save writes the hex-encoded private key to path, mode 0600.
func (s *Signer) Save(path string) error {
	if err := os.WriteFile(path, []byte(hex.EncodeToString(s.priv)+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write signing key: %w", err)
	}
	return nil
}

// Sign returns the hex-encoded signature over the message.
func (s *Signer) Sign(message string) string {
	return hex.EncodeToString(ed25519.Sign(s.priv, []byte(message)))
}

// PublicKeyHex returns the verifying key as lowercase hex.
func (s *Signer) PublicKeyHex() string {
	return hex.EncodeToString(s.pub)
}

// VerifySignature checks a hex signature over a message against a hex
// public key. Returns false on any malformed input.
func VerifySignature(pubHex, message, sigHex string) bool {
	pub, err := hex.DecodeString(pubHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), []byte(message), sig)
}
