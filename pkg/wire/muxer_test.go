package wire

import (
	"bytes"
	"testing"
)

// pipe is a minimal bidirectional in-memory connection for muxer tests: two
// buffers, one "client reads what server writes" and vice versa.
type pipe struct {
	in  *bytes.Buffer
	out *bytes.Buffer
}

func (p *pipe) Read(b []byte) (int, error)  { return p.in.Read(b) }
func (p *pipe) Write(b []byte) (int, error) { return p.out.Write(b) }

func newPipePair() (*pipe, *pipe) {
	a, b := &bytes.Buffer{}, &bytes.Buffer{}
	return &pipe{in: a, out: b}, &pipe{in: b, out: a}
}

func TestSendRequestThenRecvClassifiesRpcRequest(t *testing.T) {
	clientConn, serverConn := newPipePair()
	client := NewMuxer(clientConn)
	server := NewMuxer(serverConn)

	reqNo, err := client.SendRequest([]string{"whoami"}, StyleAsync, []interface{}{}, nil)
	if err != nil {
		t.Fatalf("send request: %v", err)
	}
	if reqNo != 1 {
		t.Fatalf("first allocated req_no = %d, want 1", reqNo)
	}

	msg, err := server.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if msg.Kind != KindRpcRequest {
		t.Fatalf("Kind = %v, want KindRpcRequest", msg.Kind)
	}
	if msg.ReqNo != 1 {
		t.Fatalf("ReqNo = %d, want 1", msg.ReqNo)
	}
	if msg.Request == nil || len(msg.Request.Name) != 1 || msg.Request.Name[0] != "whoami" {
		t.Fatalf("Request = %+v, want name [whoami]", msg.Request)
	}
}

func TestSendResponseThenRecvClassifiesRpcResponse(t *testing.T) {
	clientConn, serverConn := newPipePair()
	client := NewMuxer(clientConn)
	server := NewMuxer(serverConn)

	if err := server.SendResponse(5, StyleAsync, BodyJSON, []byte(`{"id":"@abc"}`)); err != nil {
		t.Fatalf("send response: %v", err)
	}
	msg, err := client.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if msg.Kind != KindRpcResponse {
		t.Fatalf("Kind = %v, want KindRpcResponse", msg.Kind)
	}
	if msg.ReqNo != 5 {
		t.Fatalf("ReqNo = %d, want 5", msg.ReqNo)
	}
}

func TestSendStreamEOFClassification(t *testing.T) {
	clientConn, serverConn := newPipePair()
	server := NewMuxer(serverConn)
	client := NewMuxer(clientConn)

	if err := server.SendStreamEOF(9); err != nil {
		t.Fatalf("send stream eof: %v", err)
	}
	msg, err := client.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	// A stream EOF carries is_stream+is_end_or_error with a negative req_no,
	// the same shape as a cancel-stream response frame.
	if msg.Kind != KindCancelStreamResponse {
		t.Fatalf("Kind = %v, want KindCancelStreamResponse", msg.Kind)
	}
	if msg.ReqNo != 9 {
		t.Fatalf("ReqNo = %d, want 9", msg.ReqNo)
	}
}

func TestSendErrorClassification(t *testing.T) {
	clientConn, serverConn := newPipePair()
	server := NewMuxer(serverConn)
	client := NewMuxer(clientConn)

	if err := server.SendError(2, StyleAsync, "boom"); err != nil {
		t.Fatalf("send error: %v", err)
	}
	msg, err := client.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if msg.Kind != KindErrorResponse {
		t.Fatalf("Kind = %v, want KindErrorResponse", msg.Kind)
	}
	if msg.Message != "boom" {
		t.Fatalf("Message = %q, want %q", msg.Message, "boom")
	}
}

func TestSendCancelStreamClassification(t *testing.T) {
	clientConn, serverConn := newPipePair()
	client := NewMuxer(clientConn)
	server := NewMuxer(serverConn)

	if err := client.SendCancelStream(4); err != nil {
		t.Fatalf("send cancel: %v", err)
	}
	msg, err := server.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if msg.Kind != KindCancelStreamRequest {
		t.Fatalf("Kind = %v, want KindCancelStreamRequest", msg.Kind)
	}
	if msg.ReqNo != 4 {
		t.Fatalf("ReqNo = %d, want 4", msg.ReqNo)
	}
}

func TestRequestCounterMonotonic(t *testing.T) {
	clientConn, _ := newPipePair()
	client := NewMuxer(clientConn)

	for want := int32(1); want <= 5; want++ {
		got, err := client.SendRequest([]string{"ping"}, StyleAsync, []interface{}{}, nil)
		if err != nil {
			t.Fatalf("send request: %v", err)
		}
		if got != want {
			t.Fatalf("req_no #%d = %d, want %d", want, got, want)
		}
	}
}

func TestOtherRequestForNonJSONBody(t *testing.T) {
	clientConn, serverConn := newPipePair()
	client := NewMuxer(clientConn)
	server := NewMuxer(serverConn)

	h := Header{IsStream: false, IsEndOrError: false, BodyType: BodyBinary, ReqNo: 11}
	if err := WriteFrame(client.rw, h, []byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	msg, err := server.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if msg.Kind != KindOtherRequest {
		t.Fatalf("Kind = %v, want KindOtherRequest", msg.Kind)
	}
	if !bytes.Equal(msg.Bytes, []byte{0x01, 0x02, 0x03}) {
		t.Fatalf("Bytes = %v, want [1 2 3]", msg.Bytes)
	}
}
