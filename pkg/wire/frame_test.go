package wire

import (
	"bytes"
	"testing"
)

func TestHeaderMarshalUnmarshalRoundTrip(t *testing.T) {
	h := Header{IsStream: true, IsEndOrError: false, BodyType: BodyJSON, BodyLen: 42, ReqNo: -7}
	raw, err := h.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(raw) != HeaderSize {
		t.Fatalf("marshaled header length = %d, want %d", len(raw), HeaderSize)
	}
	got, err := UnmarshalHeader(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestHeaderFlagBits(t *testing.T) {
	h := Header{IsStream: true, IsEndOrError: true, BodyType: BodyUTF8, ReqNo: 1}
	raw, err := h.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := byte(0x08 | 0x04 | 0x01)
	if raw[0] != want {
		t.Fatalf("flags byte = %#x, want %#x", raw[0], want)
	}
}

func TestUnmarshalHeaderRejectsBadBodyType(t *testing.T) {
	raw := []byte{0x03, 0, 0, 0, 0, 0, 0, 0, 1} // body type bits = 3, invalid
	if _, err := UnmarshalHeader(raw); err == nil {
		t.Fatal("expected error for invalid body type")
	}
}

func TestUnmarshalHeaderRejectsWrongLength(t *testing.T) {
	if _, err := UnmarshalHeader([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short header")
	}
}

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	h := Header{IsStream: false, IsEndOrError: false, BodyType: BodyJSON, ReqNo: 3}
	body := []byte(`{"hello":"world"}`)

	if err := WriteFrame(&buf, h, body); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.Header.ReqNo != 3 {
		t.Fatalf("ReqNo = %d, want 3", f.Header.ReqNo)
	}
	if !bytes.Equal(f.Body, body) {
		t.Fatalf("body = %q, want %q", f.Body, body)
	}
}
