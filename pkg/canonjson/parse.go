package canonjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Parse decodes JSON bytes into a Value tree, preserving object member
// insertion order. Unlike json.Unmarshal into map[string]interface{}, which
// discards order, this walks the token stream directly.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := parseValue(dec)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, fmt.Errorf("canonjson: trailing data after value")
	}
	return v, nil
}

func parseValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return parseFromToken(dec, tok)
}

func parseFromToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return parseObject(dec)
		case '[':
			return parseArray(dec)
		default:
			return Value{}, fmt.Errorf("canonjson: unexpected delimiter %q", t)
		}
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("canonjson: invalid number %q: %w", t, err)
		}
		return Number(f), nil
	case string:
		return String(t), nil
	default:
		return Value{}, fmt.Errorf("canonjson: unsupported token %T", tok)
	}
}

func parseObject(dec *json.Decoder) (Value, error) {
	var pairs []Pair
	for {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, err
		}
		if delim, ok := tok.(json.Delim); ok && delim == '}' {
			break
		}
		key, ok := tok.(string)
		if !ok {
			return Value{}, fmt.Errorf("canonjson: expected object key, got %v", tok)
		}
		val, err := parseValue(dec)
		if err != nil {
			return Value{}, err
		}
		pairs = append(pairs, Pair{Key: key, Value: val})
	}
	return Object(pairs...), nil
}

func parseArray(dec *json.Decoder) (Value, error) {
	var items []Value
	for {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, err
		}
		if delim, ok := tok.(json.Delim); ok && delim == ']' {
			break
		}
		val, err := parseFromToken(dec, tok)
		if err != nil {
			return Value{}, err
		}
		items = append(items, val)
	}
	return Array(items...), nil
}
