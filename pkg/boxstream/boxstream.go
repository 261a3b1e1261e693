// Package boxstream provides a concrete Noise-IK handshake and encrypted
// transport for the authenticated channel spec.md treats as an external
// collaborator (§1, §6: "the initial handshake and encrypted transport are
// external"): the protocol this repository implements only cares that frames
// (pkg/wire) arrive over *some* authenticated, confidential byte stream.
// This package gives that byte stream a real implementation so
// pkg/transport/{tcp,quic} have something to dial/accept over, keyed with
// the network's fixed 32-byte magic (spec §6) as the handshake prologue.
package boxstream

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/flynn/noise"

	"github.com/WebFirstLanguage/ssbnet/pkg/identity"
	"github.com/WebFirstLanguage/ssbnet/pkg/privatebox"
)

// networkMagicHex is the fixed network identifier from spec §6, used as the
// Noise handshake prologue so peers on different networks fail the
// handshake instead of silently talking past each other.
const networkMagicHex = "d4a1cb88a66f02f8db635ce26441cc5dac1b08420ceaac230839b755845a9ffb"

// NetworkMagic is the decoded 32-byte network identifier.
var NetworkMagic = decodeNetworkMagic()

func decodeNetworkMagic() [32]byte {
	var out [32]byte
	b, err := hex.DecodeString(networkMagicHex)
	if err != nil || len(b) != 32 {
		panic("boxstream: invalid compiled-in network magic")
	}
	copy(out[:], b)
	return out
}

// Error reports a handshake or transport failure.
type Error struct {
	Code   string
	Reason string
}

func (e *Error) Error() string { return fmt.Sprintf("boxstream: %s: %s", e.Code, e.Reason) }

func newError(code, reason string) *Error { return &Error{Code: code, Reason: reason} }

var (
	ErrHandshakeFailed = "HandshakeFailed"
	ErrFrameTooLarge   = "FrameTooLarge"
	ErrShortRead       = "ShortRead"
)

// maxRecordSize bounds one encrypted record, matching pkg/wire's own
// length-prefixed framing discipline one layer up.
const maxRecordSize = 1 << 20

func cipherSuite() noise.CipherSuite {
	return noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashBLAKE2b)
}

func staticKeypair(id *identity.Identity) noise.DHKey {
	priv := privatebox.EdSecretKeyToCurve25519(id.Secret)
	var pub [32]byte
	curvePub, err := privatebox.EdPublicKeyToCurve25519(id.Public)
	if err == nil {
		pub = curvePub
	}
	return noise.DHKey{Private: priv[:], Public: pub[:]}
}

// Dial runs the client (initiator) side of a Noise IK handshake over rw
// against a peer known by its Ed25519 signing identity peerPublic, and
// returns an established Session on success.
func Dial(rw io.ReadWriter, id *identity.Identity, peerPublic identity.PublicKey) (*Session, error) {
	peerCurve, err := privatebox.EdPublicKeyToCurve25519(peerPublic)
	if err != nil {
		return nil, newError(ErrHandshakeFailed, "invalid peer static key")
	}

	state, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite(),
		Random:        rand.Reader,
		Pattern:       noise.HandshakeIK,
		Initiator:     true,
		Prologue:      NetworkMagic[:],
		StaticKeypair: staticKeypair(id),
		PeerStatic:    peerCurve[:],
	})
	if err != nil {
		return nil, fmt.Errorf("boxstream: init client handshake: %w", err)
	}

	msg1, _, _, err := state.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("boxstream: write handshake message 1: %w", err)
	}
	if err := writeRecord(rw, msg1); err != nil {
		return nil, fmt.Errorf("boxstream: send handshake message 1: %w", err)
	}

	msg2, err := readRecord(rw)
	if err != nil {
		return nil, fmt.Errorf("boxstream: receive handshake message 2: %w", err)
	}
	_, csSend, csRecv, err := state.ReadMessage(nil, msg2)
	if err != nil {
		return nil, newError(ErrHandshakeFailed, err.Error())
	}
	if csSend == nil || csRecv == nil {
		return nil, newError(ErrHandshakeFailed, "handshake did not complete in two messages")
	}
	return &Session{rw: rw, send: csSend, recv: csRecv}, nil
}

// Accept runs the server (responder) side of a Noise IK handshake over rw,
// returning an established Session plus the remote peer's Curve25519 static
// key as presented during the handshake (callers wanting the peer's Ed25519
// identity must resolve it by some out-of-band means, e.g. the ["whoami"]
// call pkg/node makes at the RPC layer — Noise IK authenticates the key, not the
// identity string naming it).
func Accept(rw io.ReadWriter, id *identity.Identity) (*Session, []byte, error) {
	state, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite(),
		Random:        rand.Reader,
		Pattern:       noise.HandshakeIK,
		Initiator:     false,
		Prologue:      NetworkMagic[:],
		StaticKeypair: staticKeypair(id),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("boxstream: init server handshake: %w", err)
	}

	msg1, err := readRecord(rw)
	if err != nil {
		return nil, nil, fmt.Errorf("boxstream: receive handshake message 1: %w", err)
	}
	if _, _, _, err := state.ReadMessage(nil, msg1); err != nil {
		return nil, nil, newError(ErrHandshakeFailed, err.Error())
	}
	peerStatic := append([]byte(nil), state.PeerStatic()...)

	msg2, csRecv, csSend, err := state.WriteMessage(nil, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("boxstream: write handshake message 2: %w", err)
	}
	if err := writeRecord(rw, msg2); err != nil {
		return nil, nil, fmt.Errorf("boxstream: send handshake message 2: %w", err)
	}
	if csSend == nil || csRecv == nil {
		return nil, nil, newError(ErrHandshakeFailed, "handshake did not complete in two messages")
	}
	return &Session{rw: rw, send: csSend, recv: csRecv}, peerStatic, nil
}

// Session is an established, authenticated, encrypted byte stream: every
// Write seals one Noise transport record and every Read opens one,
// presenting a plain io.ReadWriter to pkg/wire's frame codec above it.
type Session struct {
	rw   io.ReadWriter
	send *noise.CipherState
	recv *noise.CipherState

	pending []byte
}

// Write seals p as one encrypted record and sends it length-prefixed.
func (s *Session) Write(p []byte) (int, error) {
	ciphertext, err := s.send.Encrypt(nil, nil, p)
	if err != nil {
		return 0, fmt.Errorf("boxstream: encrypt record: %w", err)
	}
	if err := writeRecord(s.rw, ciphertext); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read fills p from the next decrypted record(s), buffering any surplus
// plaintext for the next call (a Noise transport record rarely lines up
// exactly with the caller's read size).
func (s *Session) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		ciphertext, err := readRecord(s.rw)
		if err != nil {
			return 0, err
		}
		plaintext, err := s.recv.Decrypt(nil, nil, ciphertext)
		if err != nil {
			return 0, fmt.Errorf("boxstream: decrypt record: %w", err)
		}
		s.pending = plaintext
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func writeRecord(w io.Writer, data []byte) error {
	if len(data) > maxRecordSize {
		return newError(ErrFrameTooLarge, fmt.Sprintf("record of %d bytes exceeds %d", len(data), maxRecordSize))
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readRecord(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxRecordSize {
		return nil, newError(ErrFrameTooLarge, fmt.Sprintf("record of %d bytes exceeds %d", n, maxRecordSize))
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, newError(ErrShortRead, err.Error())
	}
	return buf, nil
}
