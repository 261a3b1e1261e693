package boxstream

import (
	"net"
	"testing"

	"github.com/WebFirstLanguage/ssbnet/pkg/identity"
)

func TestHandshakeAndSessionRoundTrip(t *testing.T) {
	serverID, err := identity.GenerateIdentity()
	if err != nil {
		t.Fatalf("generate server identity: %v", err)
	}
	clientID, err := identity.GenerateIdentity()
	if err != nil {
		t.Fatalf("generate client identity: %v", err)
	}

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	type serverResult struct {
		sess *Session
		peer []byte
		err  error
	}
	serverDone := make(chan serverResult, 1)
	go func() {
		sess, peer, err := Accept(serverConn, serverID)
		serverDone <- serverResult{sess: sess, peer: peer, err: err}
	}()

	clientSess, err := Dial(clientConn, clientID, serverID.Public)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	res := <-serverDone
	if res.err != nil {
		t.Fatalf("Accept: %v", res.err)
	}
	serverSess := res.sess

	expectedClientCurve, err := clientCurvePublic(clientID)
	if err != nil {
		t.Fatalf("derive client curve public: %v", err)
	}
	if string(res.peer) != string(expectedClientCurve) {
		t.Fatal("server did not see the client's static key during the handshake")
	}

	msg := []byte("hello over the wire")
	done := make(chan error, 1)
	go func() {
		_, err := clientSess.Write(msg)
		done <- err
	}()

	buf := make([]byte, len(msg))
	n, err := serverSess.Read(buf)
	if err != nil {
		t.Fatalf("server Read: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("client Write: %v", err)
	}
	if string(buf[:n]) != string(msg) {
		t.Fatalf("server received %q, want %q", buf[:n], msg)
	}

	reply := []byte("and back again")
	done2 := make(chan error, 1)
	go func() {
		_, err := serverSess.Write(reply)
		done2 <- err
	}()
	buf2 := make([]byte, len(reply))
	n2, err := clientSess.Read(buf2)
	if err != nil {
		t.Fatalf("client Read: %v", err)
	}
	if err := <-done2; err != nil {
		t.Fatalf("server Write: %v", err)
	}
	if string(buf2[:n2]) != string(reply) {
		t.Fatalf("client received %q, want %q", buf2[:n2], reply)
	}
}

func TestDialRejectsWrongPeerKey(t *testing.T) {
	serverID, err := identity.GenerateIdentity()
	if err != nil {
		t.Fatalf("generate server identity: %v", err)
	}
	clientID, err := identity.GenerateIdentity()
	if err != nil {
		t.Fatalf("generate client identity: %v", err)
	}
	wrongID, err := identity.GenerateIdentity()
	if err != nil {
		t.Fatalf("generate wrong identity: %v", err)
	}

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	serverDone := make(chan error, 1)
	go func() {
		_, _, err := Accept(serverConn, serverID)
		if err != nil {
			// unblock the client's pending read on msg2 so Dial can return
			// its own error instead of hanging forever on the closed pipe.
			serverConn.Close()
		}
		serverDone <- err
	}()

	_, dialErr := Dial(clientConn, clientID, wrongID.Public)
	if dialErr == nil {
		t.Fatal("expected Dial to fail against the wrong peer key")
	}
	<-serverDone
}

func TestNetworkMagicDecodesTo32Bytes(t *testing.T) {
	if len(NetworkMagic) != 32 {
		t.Fatalf("NetworkMagic length = %d, want 32", len(NetworkMagic))
	}
}

func clientCurvePublic(id *identity.Identity) ([]byte, error) {
	pub := staticKeypair(id).Public
	return pub, nil
}
