package rpcapi

import (
	"bytes"
	"testing"

	"github.com/WebFirstLanguage/ssbnet/pkg/wire"
)

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

func TestWhoAmISelectorAndStyle(t *testing.T) {
	clientConn, serverConn := newPipePair()
	client := NewCaller(wire.NewMuxer(clientConn))
	server := wire.NewMuxer(serverConn)

	reqNo, err := client.WhoAmI()
	if err != nil {
		t.Fatalf("WhoAmI: %v", err)
	}
	if reqNo != 1 {
		t.Fatalf("reqNo = %d, want 1", reqNo)
	}

	msg, err := server.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if msg.Kind != wire.KindRpcRequest {
		t.Fatalf("Kind = %v, want KindRpcRequest", msg.Kind)
	}
	if len(msg.Request.Name) != 1 || msg.Request.Name[0] != "whoami" {
		t.Fatalf("Name = %v, want [whoami]", msg.Request.Name)
	}
	if msg.Request.Type != wire.StyleAsync {
		t.Fatalf("Type = %v, want async", msg.Request.Type)
	}
}

func TestCreateHistoryStreamIsSourceStyle(t *testing.T) {
	clientConn, serverConn := newPipePair()
	client := NewCaller(wire.NewMuxer(clientConn))
	server := wire.NewMuxer(serverConn)

	if _, err := client.CreateHistoryStream(NewCreateHistoryStreamIn("@abc.ed25519")); err != nil {
		t.Fatalf("CreateHistoryStream: %v", err)
	}
	msg, err := server.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if msg.Request.Type != wire.StyleSource {
		t.Fatalf("Type = %v, want source", msg.Request.Type)
	}
	if len(msg.Request.Name) != 1 || msg.Request.Name[0] != "createHistoryStream" {
		t.Fatalf("Name = %v", msg.Request.Name)
	}
}

func TestPrivatePublishSelectorPath(t *testing.T) {
	clientConn, serverConn := newPipePair()
	client := NewCaller(wire.NewMuxer(clientConn))
	server := wire.NewMuxer(serverConn)

	if _, err := client.PrivatePublish(map[string]string{"type": "post"}, []string{"@a.ed25519"}); err != nil {
		t.Fatalf("PrivatePublish: %v", err)
	}
	msg, err := server.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if len(msg.Request.Name) != 2 || msg.Request.Name[0] != "private" || msg.Request.Name[1] != "publish" {
		t.Fatalf("Name = %v, want [private publish]", msg.Request.Name)
	}
	if len(msg.Request.Args) != 2 {
		t.Fatalf("Args = %v, want 2 elements (content, recipients)", msg.Request.Args)
	}
}

func TestResSendBlobChunksSplitsAndTerminates(t *testing.T) {
	clientConn, serverConn := newPipePair()
	server := NewCaller(wire.NewMuxer(serverConn))
	client := wire.NewMuxer(clientConn)

	data := bytes.Repeat([]byte{0xAB}, maxBlobChunk+10)
	if err := server.ResSendBlobChunks(3, data); err != nil {
		t.Fatalf("ResSendBlobChunks: %v", err)
	}

	first, err := client.Recv()
	if err != nil {
		t.Fatalf("recv first chunk: %v", err)
	}
	if first.Kind != wire.KindRpcResponse || len(first.Bytes) != maxBlobChunk {
		t.Fatalf("first chunk: kind=%v len=%d, want response of %d bytes", first.Kind, len(first.Bytes), maxBlobChunk)
	}

	second, err := client.Recv()
	if err != nil {
		t.Fatalf("recv second chunk: %v", err)
	}
	if len(second.Bytes) != 10 {
		t.Fatalf("second chunk length = %d, want 10", len(second.Bytes))
	}

	eof, err := client.Recv()
	if err != nil {
		t.Fatalf("recv eof: %v", err)
	}
	if eof.Kind != wire.KindCancelStreamResponse {
		t.Fatalf("eof Kind = %v, want KindCancelStreamResponse (stream EOF shape)", eof.Kind)
	}
}
