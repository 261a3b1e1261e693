// Package message implements the ssbnet signed feed entry: construction,
// Ed25519 signing, verification, and the accessors described in spec §4.3.
// It is grounded on pkg/wire's BaseFrame Sign/Verify/Marshal pattern,
// generalized from CBOR framing to the canonical-JSON signature preimage
// this protocol requires.
package message

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/WebFirstLanguage/ssbnet/pkg/canonjson"
	"github.com/WebFirstLanguage/ssbnet/pkg/identity"
)

const hashAlgorithm = "sha256"

// Error is a message-integrity error (spec §7 "Message integrity").
type Error struct {
	Code   string
	Reason string
}

func (e *Error) Error() string { return fmt.Sprintf("message: %s: %s", e.Code, e.Reason) }

func newError(code, reason string) *Error { return &Error{Code: code, Reason: reason} }

var (
	ErrInvalidSignature = "InvalidSignature"
	ErrInvalidJSON       = "InvalidJson"
)

// Message is a single signed feed entry. The underlying canonjson.Value is
// kept so Stringify/Hash reproduce the exact bytes that were signed, per the
// "byte-exact serialization is part of its identity" rule in spec §3.
type Message struct {
	value canonjson.Value
}

// FromValue wraps an already-validated canonjson object value as a Message
// without re-verifying it, for callers that parsed and verified the value
// elsewhere. feed.Decode does not use it; it goes through Verify.
func FromValue(v canonjson.Value) Message {
	return Message{value: v}
}

// Value returns the underlying canonjson object, signature included.
func (m Message) Value() canonjson.Value { return m.value }

// Sign builds and signs a new feed entry following spec §4.3:
//   - if prev is non-nil: previous = prev.ID(), sequence = prev.Sequence()+1
//   - else: previous = null, sequence = 1
//   - author, timestamp (now, ms), hash = "sha256", content = content
//   - signature = Ed25519 detached signature over the canonical
//     serialization of the object *without* the signature field
//
// Field order in the constructed object is previous, sequence, author,
// timestamp, hash, content, signature — fixed, never reordered.
func Sign(prev *Message, id *identity.Identity, content canonjson.Value) (Message, error) {
	var previous canonjson.Value
	var sequence int64
	if prev != nil {
		previous = canonjson.String(prev.ID())
		sequence = prev.Sequence() + 1
	} else {
		previous = canonjson.Null()
		sequence = 1
	}

	timestampMs := time.Now().UnixMilli()

	unsigned := canonjson.Object(
		canonjson.P("previous", previous),
		canonjson.P("sequence", canonjson.Int(sequence)),
		canonjson.P("author", canonjson.String(id.ID)),
		canonjson.P("timestamp", canonjson.Int(timestampMs)),
		canonjson.P("hash", canonjson.String(hashAlgorithm)),
		canonjson.P("content", content),
	)

	preimage, err := canonjson.Stringify(unsigned)
	if err != nil {
		return Message{}, fmt.Errorf("message: sign: %w", err)
	}

	sig := ed25519.Sign(id.Secret, []byte(preimage))
	signed := unsigned.WithPair("signature", canonjson.String(identity.EncodeSignature(sig)))

	return Message{value: signed}, nil
}

// requiredFields is the canonical member set of a signed message, spec §3.
var requiredFields = []string{"previous", "sequence", "author", "timestamp", "hash", "content", "signature"}

// Verify parses and verifies a message from its canonjson object form. It
// fails with InvalidJson if required fields are missing or malformed, and
// InvalidSignature if the Ed25519 signature check fails.
func Verify(v canonjson.Value) (Message, error) {
	if v.Kind() != canonjson.KindObject {
		return Message{}, newError(ErrInvalidJSON, "message must be a JSON object")
	}
	for _, f := range requiredFields {
		if _, ok := v.Get(f); !ok {
			return Message{}, newError(ErrInvalidJSON, fmt.Sprintf("missing field %q", f))
		}
	}

	prevVal, _ := v.Get("previous")
	if prevVal.Kind() != canonjson.KindNull && prevVal.Kind() != canonjson.KindString {
		return Message{}, newError(ErrInvalidJSON, "previous must be null or a string")
	}
	seqVal, _ := v.Get("sequence")
	if seqVal.Kind() != canonjson.KindNumber {
		return Message{}, newError(ErrInvalidJSON, "sequence must be a number")
	}
	authorVal, _ := v.Get("author")
	if authorVal.Kind() != canonjson.KindString {
		return Message{}, newError(ErrInvalidJSON, "author must be a string")
	}
	tsVal, _ := v.Get("timestamp")
	if tsVal.Kind() != canonjson.KindNumber || tsVal.Float64() < 0 {
		return Message{}, newError(ErrInvalidJSON, "timestamp must be a non-negative number")
	}
	hashVal, _ := v.Get("hash")
	if hashVal.Kind() != canonjson.KindString || hashVal.Str() != hashAlgorithm {
		return Message{}, newError(ErrInvalidJSON, `hash must be "sha256"`)
	}
	sigVal, _ := v.Get("signature")
	if sigVal.Kind() != canonjson.KindString {
		return Message{}, newError(ErrInvalidJSON, "signature must be a string")
	}

	sigBytes, err := identity.DecodeSignature(sigVal.Str())
	if err != nil {
		return Message{}, fmt.Errorf("message: %w", err)
	}
	pub, err := identity.DecodePublicKeyWithSuffix(authorVal.Str())
	if err != nil {
		return Message{}, fmt.Errorf("message: %w", err)
	}

	unsigned := v.WithoutKey("signature")
	preimage, err := canonjson.Stringify(unsigned)
	if err != nil {
		return Message{}, fmt.Errorf("message: %w", err)
	}
	if !ed25519.Verify(pub, []byte(preimage), sigBytes) {
		return Message{}, newError(ErrInvalidSignature, "ed25519 signature verification failed")
	}

	return Message{value: v}, nil
}

// Parse is a convenience wrapper combining canonjson.Parse and Verify.
func Parse(data []byte) (Message, error) {
	v, err := canonjson.Parse(data)
	if err != nil {
		return Message{}, newError(ErrInvalidJSON, err.Error())
	}
	return Verify(v)
}

// ID is the message id: "%" || base64(ssb_hash(self)) || ".sha256", hashed
// over the full signed object (signature field included — confirmed against
// the reference implementation's id(), which hashes self.value unmodified).
func (m Message) ID() string {
	digest, err := canonjson.Hash(m.value)
	if err != nil {
		// m.value was already validated by Sign/Verify; stringify cannot fail.
		panic(fmt.Sprintf("message: hash of validated message failed: %v", err))
	}
	return "%" + base64.StdEncoding.EncodeToString(digest[:]) + ".sha256"
}

// Previous returns the previous message id, or "" for the first message in
// a feed.
func (m Message) Previous() string {
	v, _ := m.value.Get("previous")
	if v.Kind() != canonjson.KindString {
		return ""
	}
	return v.Str()
}

// Author returns the author identifier, "@<base64>.ed25519".
func (m Message) Author() string {
	v, _ := m.value.Get("author")
	return v.Str()
}

// Sequence returns the 1-based sequence number.
func (m Message) Sequence() int64 {
	v, _ := m.value.Get("sequence")
	return int64(v.Float64())
}

// Timestamp returns the author-claimed timestamp in milliseconds.
func (m Message) Timestamp() float64 {
	v, _ := m.value.Get("timestamp")
	return v.Float64()
}

// HashAlgorithm returns the declared hash algorithm, always "sha256" for a
// message that passed Verify.
func (m Message) HashAlgorithm() string {
	v, _ := m.value.Get("hash")
	return v.Str()
}

// Content returns the message's free-form content value.
func (m Message) Content() canonjson.Value {
	v, _ := m.value.Get("content")
	return v
}

// Signature returns the signature string, "<base64>.sig.ed25519".
func (m Message) Signature() string {
	v, _ := m.value.Get("signature")
	return v.Str()
}
