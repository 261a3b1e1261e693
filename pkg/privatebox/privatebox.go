// Package privatebox implements the multi-recipient private-box envelope
// described in spec §4.5: a symmetric ciphertext that conceals both its
// plaintext and, to non-recipients, even which (or how many) of the
// recipient slots they hold. It is grounded on the X25519-ECDH-then-AEAD
// shape used across the example pack's crypto helpers, adapted from a single
// shared-secret-per-peer session to a fixed per-message header fanned out
// over up to seven recipients.
package privatebox

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/WebFirstLanguage/ssbnet/pkg/identity"
)

const (
	// MaxRecipients is the hard upper bound on recipient count (spec §4.5).
	MaxRecipients = 7

	keySize      = 32
	nonceSize    = 24
	headerSize   = 1 + keySize        // recipient count byte || secretbox key
	headerCTSize = headerSize + secretbox.Overhead

	boxSuffix = ".box"
)

// Error reports a private-box failure mode from spec §7 ("Crypto (private box)").
type Error struct {
	Code   string
	Reason string
}

func (e *Error) Error() string { return fmt.Sprintf("privatebox: %s: %s", e.Code, e.Reason) }

func newError(code, reason string) *Error { return &Error{Code: code, Reason: reason} }

var (
	ErrEmptyPlaintext       = "EmptyPlaintext"
	ErrBadRecipientCount    = "BadRecipientCount"
	ErrCannotReadNonce      = "CannotReadNonce"
	ErrCryptoScalarMultFail = "CryptoScalarMultFailed"
	ErrCannotCreateKey      = "CannotCreateKey"
	ErrFailedToDecipher     = "FailedToDecipher"
)

// IsPrivateBox reports whether s carries the ".box" ciphertext suffix.
func IsPrivateBox(s string) bool { return strings.HasSuffix(s, boxSuffix) }

// EdPublicKeyToCurve25519 converts an Ed25519 public key to its Curve25519
// (Montgomery u-coordinate) equivalent, as required to Diffie-Hellman with a
// peer who is only known by their signing identity.
func EdPublicKeyToCurve25519(pub identity.PublicKey) ([keySize]byte, error) {
	var out [keySize]byte
	pt, err := new(edwards25519.Point).SetBytes(pub)
	if err != nil {
		return out, newError(ErrCannotCreateKey, "not a valid ed25519 point")
	}
	copy(out[:], pt.BytesMontgomery())
	return out, nil
}

// EdSecretKeyToCurve25519 converts an Ed25519 secret key to its Curve25519
// scalar equivalent, following the standard seed-hash-and-clamp derivation
// (the same one libsodium's crypto_sign_ed25519_sk_to_curve25519 performs).
func EdSecretKeyToCurve25519(sec identity.SecretKey) [keySize]byte {
	seed := sec.Seed()
	digest := sha512.Sum512(seed)
	var out [keySize]byte
	copy(out[:], digest[:keySize])
	out[0] &= 248
	out[31] &= 127
	out[31] |= 64
	return out
}

// Encrypt seals plaintext for the given recipients following spec §4.5: a
// fresh ephemeral Curve25519 keypair, a random secretbox key/nonce pair for
// the body, and one 49-byte header slot per recipient carrying that body
// key under a key derived from scalarmult(ephemeral, recipient).
func Encrypt(plaintext []byte, recipients []identity.PublicKey) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, newError(ErrEmptyPlaintext, "plaintext must be non-empty")
	}
	n := len(recipients)
	if n < 1 || n > MaxRecipients {
		return nil, newError(ErrBadRecipientCount, fmt.Sprintf("recipient count %d out of range [1,%d]", n, MaxRecipients))
	}

	var ephSecret [keySize]byte
	if _, err := io.ReadFull(rand.Reader, ephSecret[:]); err != nil {
		return nil, newError(ErrCannotCreateKey, "failed to generate ephemeral key")
	}
	ephSecret[0] &= 248
	ephSecret[31] &= 127
	ephSecret[31] |= 64

	var ephPublic [keySize]byte
	curve25519.ScalarBaseMult(&ephPublic, &ephSecret)

	var bodyKey [keySize]byte
	if _, err := io.ReadFull(rand.Reader, bodyKey[:]); err != nil {
		return nil, newError(ErrCannotCreateKey, "failed to generate body key")
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, newError(ErrCannotReadNonce, "failed to generate nonce")
	}

	header := make([]byte, 0, headerSize)
	header = append(header, byte(n))
	header = append(header, bodyKey[:]...)

	out := make([]byte, 0, nonceSize+keySize+n*headerCTSize+len(plaintext)+secretbox.Overhead)
	out = append(out, nonce[:]...)
	out = append(out, ephPublic[:]...)

	for _, r := range recipients {
		rCurve, err := EdPublicKeyToCurve25519(r)
		if err != nil {
			return nil, err
		}
		var shared [keySize]byte
		curve25519.ScalarMult(&shared, &ephSecret, &rCurve)
		if isZero(shared[:]) {
			return nil, newError(ErrCryptoScalarMultFail, "scalarmult produced a low-order point")
		}
		headerCT := secretbox.Seal(nil, header, &nonce, &shared)
		out = append(out, headerCT...)
	}

	body := secretbox.Seal(nil, plaintext, &nonce, &bodyKey)
	out = append(out, body...)
	return out, nil
}

// Decrypt attempts to open a private-box ciphertext with secret. It returns
// (nil, false, nil) — not an error — when none of up to seven header slots
// open under this key (spec §4.5 step 4: "no recipient"). A body present
// but failing its MAC is FailedToDecipher, a fatal distinct case.
func Decrypt(ciphertext []byte, secret identity.SecretKey) (plaintext []byte, isRecipient bool, err error) {
	if len(ciphertext) < nonceSize+keySize {
		return nil, false, newError(ErrCannotReadNonce, "ciphertext too short to contain nonce and ephemeral key")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])
	var ephPublic [keySize]byte
	copy(ephPublic[:], ciphertext[nonceSize:nonceSize+keySize])
	cursor := nonceSize + keySize

	secretCurve := EdSecretKeyToCurve25519(secret)
	var shared [keySize]byte
	curve25519.ScalarMult(&shared, &secretCurve, &ephPublic)
	if isZero(shared[:]) {
		return nil, false, newError(ErrCryptoScalarMultFail, "scalarmult produced a low-order point")
	}

	maxSlots := MaxRecipients
	if remaining := len(ciphertext) - cursor; remaining/headerCTSize < maxSlots {
		maxSlots = remaining / headerCTSize
	}

	for i := 0; i < maxSlots; i++ {
		slotStart := cursor + i*headerCTSize
		slotEnd := slotStart + headerCTSize
		if slotEnd > len(ciphertext) {
			break
		}
		header, ok := secretbox.Open(nil, ciphertext[slotStart:slotEnd], &nonce, &shared)
		if !ok {
			continue
		}
		if len(header) != headerSize {
			continue
		}
		n := int(header[0])
		var bodyKey [keySize]byte
		copy(bodyKey[:], header[1:])

		// The body always begins after all N header slots, counted from the
		// cursor position before any slot was read — independent of which
		// slot index happened to open.
		bodyOffset := cursor + n*headerCTSize
		if bodyOffset > len(ciphertext) {
			return nil, false, newError(ErrFailedToDecipher, "claimed recipient count places body offset out of range")
		}
		body := ciphertext[bodyOffset:]
		plain, ok := secretbox.Open(nil, body, &nonce, &bodyKey)
		if !ok {
			return nil, false, newError(ErrFailedToDecipher, "body failed MAC check")
		}
		return plain, true, nil
	}
	return nil, false, nil
}

// EncodeBox renders a sealed ciphertext in its textual form, "<base64>.box".
func EncodeBox(ciphertext []byte) string {
	return base64.StdEncoding.EncodeToString(ciphertext) + boxSuffix
}

// DecodeBox parses a textual "<base64>.box" ciphertext back to raw bytes.
func DecodeBox(s string) ([]byte, error) {
	if !IsPrivateBox(s) {
		return nil, newError(ErrFailedToDecipher, "missing .box suffix")
	}
	return base64.StdEncoding.DecodeString(strings.TrimSuffix(s, boxSuffix))
}

func isZero(b []byte) bool {
	var v byte
	for _, x := range b {
		v |= x
	}
	return v == 0
}
