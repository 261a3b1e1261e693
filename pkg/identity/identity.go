// Package identity implements ssbnet key material: the textual encodings of
// public keys, secret keys, content hashes and signatures, and the
// in-process Identity value used to sign and verify feed entries.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

// Suffixes used by the canonical textual forms (§3, §4.1 of the spec).
const (
	suffixFeed      = ".ed25519"
	suffixMessage   = ".sha256"
	suffixSignature = ".sig.ed25519"
)

// PublicKey and SecretKey are raw Ed25519 key bytes.
type PublicKey = ed25519.PublicKey
type SecretKey = ed25519.PrivateKey

// Hash is a raw SHA-256 digest.
type Hash [32]byte

// Error is a crypto-format error as described in spec §7 ("Crypto format").
type Error struct {
	Code   string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("identity: %s: %s", e.Code, e.Reason)
}

func newError(code, reason string) *Error {
	return &Error{Code: code, Reason: reason}
}

// Named failure modes from spec §7.
var (
	ErrInvalidSuffix         = "InvalidSuffix"
	ErrBadPublicKey          = "BadPublicKey"
	ErrBadSecretKey          = "BadSecretKey"
	ErrInvalidDigest         = "InvalidDigest"
	ErrCannotCreateSignature = "CannotCreateSignature"
)

// EncodePublicKey renders a public key as "@<base64>.ed25519".
func EncodePublicKey(pk PublicKey) string {
	return "@" + base64.StdEncoding.EncodeToString(pk) + suffixFeed
}

// EncodeSecretKey renders a secret key as "<base64>.ed25519" (no sigil —
// secret keys are never embedded in signed content, only in keystore files).
func EncodeSecretKey(sk SecretKey) string {
	return base64.StdEncoding.EncodeToString(sk) + suffixFeed
}

// EncodeHash renders a raw digest as "<base64>.sha256".
func EncodeHash(h Hash) string {
	return base64.StdEncoding.EncodeToString(h[:]) + suffixMessage
}

// EncodeSignature renders a raw Ed25519 signature as "<base64>.sig.ed25519".
func EncodeSignature(sig []byte) string {
	return base64.StdEncoding.EncodeToString(sig) + suffixSignature
}

// DecodePublicKeyWithSuffix parses "@<base64>.ed25519" into a PublicKey.
func DecodePublicKeyWithSuffix(s string) (PublicKey, error) {
	if !strings.HasPrefix(s, "@") {
		return nil, newError(ErrInvalidSuffix, "public key missing '@' sigil")
	}
	return DecodePublicKeyNoSuffix(s[1:])
}

// DecodePublicKeyNoSuffix parses "<base64>.ed25519" (no leading '@') into a
// PublicKey. Used when the sigil has already been stripped by the caller
// (e.g. Message.Author()[1:]).
func DecodePublicKeyNoSuffix(s string) (PublicKey, error) {
	b64, err := stripSuffix(s, suffixFeed)
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, newError(ErrBadPublicKey, "unexpected public key length")
	}
	return PublicKey(raw), nil
}

// DecodeSecretKey parses "<base64>.ed25519" into a SecretKey.
func DecodeSecretKey(s string) (SecretKey, error) {
	b64, err := stripSuffix(s, suffixFeed)
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, newError(ErrBadSecretKey, "unexpected secret key length")
	}
	return SecretKey(raw), nil
}

// DecodeHash parses "<base64>.sha256" into a raw Hash.
func DecodeHash(s string) (Hash, error) {
	var h Hash
	b64, err := stripSuffix(s, suffixMessage)
	if err != nil {
		return h, err
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return h, err
	}
	if len(raw) != len(h) {
		return h, newError(ErrInvalidDigest, "unexpected digest length")
	}
	copy(h[:], raw)
	return h, nil
}

// DecodeSignature parses "<base64>.sig.ed25519" into raw signature bytes.
func DecodeSignature(s string) ([]byte, error) {
	b64, err := stripSuffix(s, suffixSignature)
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.SignatureSize {
		return nil, newError(ErrCannotCreateSignature, "unexpected signature length")
	}
	return raw, nil
}

func stripSuffix(s, suffix string) (string, error) {
	if !strings.HasSuffix(s, suffix) {
		return "", newError(ErrInvalidSuffix, fmt.Sprintf("missing suffix %q", suffix))
	}
	return strings.TrimSuffix(s, suffix), nil
}

// Identity pairs a keypair with its cached textual id, as described in §9's
// "avoid global singletons" design note: callers construct one and pass it
// explicitly into signing/encryption operations.
type Identity struct {
	Public PublicKey
	Secret SecretKey
	ID     string // "@<base64 public key>.ed25519"
}

// GenerateIdentity creates a fresh random Ed25519 identity.
func GenerateIdentity() (*Identity, error) {
	pub, sec, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	return NewIdentity(pub, sec), nil
}

// NewIdentity wraps an existing keypair into an Identity, computing its id.
func NewIdentity(pub PublicKey, sec SecretKey) *Identity {
	return &Identity{Public: pub, Secret: sec, ID: EncodePublicKey(pub)}
}
