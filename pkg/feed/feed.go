// Package feed implements the feed envelope described in spec §4.4: a signed
// message wrapped with its content hash and local receipt timestamps, as
// stored and streamed by a log collaborator. It is grounded on
// pkg/content/types.go's envelope-with-invariant-check pattern, generalized
// from blob manifests to signed feed entries.
package feed

import (
	"fmt"

	"github.com/WebFirstLanguage/ssbnet/pkg/canonjson"
	"github.com/WebFirstLanguage/ssbnet/pkg/message"
)

// Error reports a feed envelope integrity failure (spec §7 "Message integrity").
type Error struct {
	Code   string
	Reason string
}

func (e *Error) Error() string { return fmt.Sprintf("feed: %s: %s", e.Code, e.Reason) }

// ErrFeedDigestMismatch is reported when key != ssb_hash(value).
const ErrFeedDigestMismatch = "FeedDigestMismatch"

// Feed is the envelope around a signed message: its id, the message itself,
// and the local timestamps under which it was received.
type Feed struct {
	Key       string
	Value     message.Message
	Timestamp float64
	RTS       *float64
}

// Wrap builds a fresh envelope for a just-verified or just-signed message,
// stamping Timestamp with the local receipt time and leaving RTS unset.
func Wrap(msg message.Message, localReceiptTimeSeconds float64) Feed {
	return Feed{
		Key:       msg.ID(),
		Value:     msg,
		Timestamp: localReceiptTimeSeconds,
	}
}

// object renders the envelope as a canonjson object, preserving the
// key/value/timestamp/rts member order (rts omitted when unset).
func (f Feed) object() canonjson.Value {
	pairs := []canonjson.Pair{
		canonjson.P("key", canonjson.String(f.Key)),
		canonjson.P("value", f.Value.Value()),
		canonjson.P("timestamp", canonjson.Number(f.Timestamp)),
	}
	if f.RTS != nil {
		pairs = append(pairs, canonjson.P("rts", canonjson.Number(*f.RTS)))
	}
	return canonjson.Object(pairs...)
}

// Marshal serializes the envelope for on-disk or on-wire storage using the
// same canonical stringifier as the signing preimage, so a round trip through
// Marshal/Decode reproduces byte-identical bytes.
func (f Feed) Marshal() ([]byte, error) {
	s, err := canonjson.Stringify(f.object())
	if err != nil {
		return nil, fmt.Errorf("feed: marshal: %w", err)
	}
	return []byte(s), nil
}

// Decode parses a feed envelope, re-verifies the wrapped message's signature,
// and recomputes ssb_hash(value) to check it against the claimed key,
// failing with FeedDigestMismatch on any disagreement.
func Decode(data []byte) (Feed, error) {
	v, err := canonjson.Parse(data)
	if err != nil {
		return Feed{}, fmt.Errorf("feed: decode: %w", err)
	}
	return decodeValue(v)
}

func decodeValue(v canonjson.Value) (Feed, error) {
	if v.Kind() != canonjson.KindObject {
		return Feed{}, &Error{Code: ErrFeedDigestMismatch, Reason: "envelope must be a JSON object"}
	}

	keyVal, ok := v.Get("key")
	if !ok || keyVal.Kind() != canonjson.KindString {
		return Feed{}, &Error{Code: ErrFeedDigestMismatch, Reason: "missing or malformed key"}
	}
	valueVal, ok := v.Get("value")
	if !ok {
		return Feed{}, &Error{Code: ErrFeedDigestMismatch, Reason: "missing value"}
	}
	tsVal, ok := v.Get("timestamp")
	if !ok || tsVal.Kind() != canonjson.KindNumber {
		return Feed{}, &Error{Code: ErrFeedDigestMismatch, Reason: "missing or malformed timestamp"}
	}

	msg, err := message.Verify(valueVal)
	if err != nil {
		return Feed{}, fmt.Errorf("feed: %w", err)
	}

	wantKey := msg.ID()
	if keyVal.Str() != wantKey {
		return Feed{}, &Error{Code: ErrFeedDigestMismatch, Reason: fmt.Sprintf("key %q does not match ssb_hash(value) %q", keyVal.Str(), wantKey)}
	}

	f := Feed{Key: keyVal.Str(), Value: msg, Timestamp: tsVal.Float64()}
	if rtsVal, ok := v.Get("rts"); ok && rtsVal.Kind() == canonjson.KindNumber {
		rts := rtsVal.Float64()
		f.RTS = &rts
	}
	return f, nil
}
