// Package canonjson implements the deterministic JSON pretty-printer used as
// the signature preimage and content-hash input for ssbnet feed entries
// (spec §4.2). It preserves object key insertion order — this is load
// bearing: re-sorting keys changes the hash of every message.
package canonjson

import (
	"fmt"
)

// Kind identifies the dynamic type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Pair is one key/value member of an Object, in source/insertion order.
type Pair struct {
	Key   string
	Value Value
}

// Value is a parsed-or-constructed JSON value that remembers the insertion
// order of object members, per §9's "dynamic JSON shapes" design note:
// message content is schema-free JSON and must round-trip byte-for-byte
// through the signing preimage, so it is kept as this generic tree rather
// than a native Go map.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  []Pair
}

// Null is the JSON null value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a JSON boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a JSON number given as a float64.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Int wraps a JSON number given as an integer.
func Int(n int64) Value { return Value{kind: KindNumber, n: float64(n)} }

// String wraps a JSON string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array wraps a JSON array.
func Array(items ...Value) Value { return Value{kind: KindArray, arr: items} }

// Object builds a JSON object from an ordered list of pairs. The order given
// here is the order that will appear in Stringify's output.
func Object(pairs ...Pair) Value { return Value{kind: KindObject, obj: pairs} }

// P is a convenience constructor for a Pair.
func P(key string, v Value) Pair { return Pair{Key: key, Value: v} }

// Kind returns the value's dynamic type.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is JSON null (or the zero Value).
func (v Value) IsNull() bool { return v.kind == KindNull }

// BoolValue returns the boolean payload; only meaningful if Kind() == KindBool.
func (v Value) BoolValue() bool { return v.b }

// Float64 returns the numeric payload; only meaningful if Kind() == KindNumber.
func (v Value) Float64() float64 { return v.n }

// Str returns the string payload; only meaningful if Kind() == KindString.
func (v Value) Str() string { return v.s }

// Items returns the array payload; only meaningful if Kind() == KindArray.
func (v Value) Items() []Value { return v.arr }

// Members returns the object payload in insertion order; only meaningful if
// Kind() == KindObject.
func (v Value) Members() []Pair { return v.obj }

// Get returns the value of the named member and whether it was present.
func (v Value) Get(key string) (Value, bool) {
	for _, p := range v.obj {
		if p.Key == key {
			return p.Value, true
		}
	}
	return Value{}, false
}

// WithoutKey returns a copy of an object value with the named member
// removed, preserving the order of the remaining members. Used to build the
// signature preimage, which excludes the "signature" field (§4.3).
func (v Value) WithoutKey(key string) Value {
	out := make([]Pair, 0, len(v.obj))
	for _, p := range v.obj {
		if p.Key != key {
			out = append(out, p)
		}
	}
	return Value{kind: KindObject, obj: out}
}

// WithPair returns a copy of an object value with the given pair appended.
func (v Value) WithPair(key string, val Value) Value {
	out := make([]Pair, len(v.obj), len(v.obj)+1)
	copy(out, v.obj)
	out = append(out, Pair{Key: key, Value: val})
	return Value{kind: KindObject, obj: out}
}

func (v Value) String() string {
	s, err := Stringify(v)
	if err != nil {
		return fmt.Sprintf("<invalid canonjson.Value: %v>", err)
	}
	return s
}
