package node

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/WebFirstLanguage/ssbnet/pkg/boxstream"
	"github.com/WebFirstLanguage/ssbnet/pkg/canonjson"
	"github.com/WebFirstLanguage/ssbnet/pkg/rpcapi"
	"github.com/WebFirstLanguage/ssbnet/pkg/transport"
	"github.com/WebFirstLanguage/ssbnet/pkg/wire"
)

// callTimeout bounds how long a single request waits for its first (or, for
// a streaming call, its next) response frame before giving up.
const callTimeout = 30 * time.Second

// Peer is one live, box-stream-authenticated connection: the carrier, the
// session it secures, the RPC muxer running over it, and the bookkeeping
// needed to route inbound frames back to whichever goroutine is waiting on
// them. Grounded on pkg/agent's per-connection bookkeeping, generalized from
// a single gossip link to a full duplex RPC peer.
type Peer struct {
	conn transport.Conn
	sess *boxstream.Session
	mux  *wire.Muxer

	caller *rpcapi.Caller

	mu       sync.Mutex
	remoteID string

	// writeMu serializes every frame write on this connection: the node's
	// own outbound calls and its responses to the peer's inbound requests
	// would otherwise race on the same underlying writer.
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[int32]chan wire.RecvMsg

	cancelMu sync.Mutex
	canceled map[int32]bool
}

func newPeer(conn transport.Conn, sess *boxstream.Session) *Peer {
	mux := wire.NewMuxer(sess)
	return &Peer{
		conn:    conn,
		sess:    sess,
		mux:     mux,
		caller:   rpcapi.NewCaller(mux),
		pending:  make(map[int32]chan wire.RecvMsg),
		canceled: make(map[int32]bool),
	}
}

// cancelStream records that the peer asked to stop a streaming response this
// node is producing for reqNo; the producing handler checks isCancelled
// between elements rather than being interrupted mid-send.
func (p *Peer) cancelStream(reqNo int32) {
	p.cancelMu.Lock()
	p.canceled[reqNo] = true
	p.cancelMu.Unlock()
}

func (p *Peer) isCancelled(reqNo int32) bool {
	p.cancelMu.Lock()
	defer p.cancelMu.Unlock()
	return p.canceled[reqNo]
}

// RemoteID returns the peer's signing identity once resolved (see
// Node.identifyPeer); it is empty until then.
func (p *Peer) RemoteID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remoteID
}

func (p *Peer) registerPending(reqNo int32) chan wire.RecvMsg {
	ch := make(chan wire.RecvMsg, 8)
	p.pendingMu.Lock()
	p.pending[reqNo] = ch
	p.pendingMu.Unlock()
	return ch
}

func (p *Peer) unregisterPending(reqNo int32) {
	p.pendingMu.Lock()
	delete(p.pending, reqNo)
	p.pendingMu.Unlock()
}

// deliver routes one received frame to whichever local call is awaiting
// reqNo, if any; it reports whether such a waiter existed. Frames for
// request numbers this peer didn't register (inbound requests, or
// responses arriving after the waiter gave up) are not delivered here.
func (p *Peer) deliver(reqNo int32, msg wire.RecvMsg) bool {
	p.pendingMu.Lock()
	ch, ok := p.pending[reqNo]
	p.pendingMu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- msg:
	default:
	}
	return true
}

// whoAmI issues ["whoami"] and waits for the single async reply.
func (p *Peer) whoAmI() (string, error) {
	p.writeMu.Lock()
	reqNo, err := p.caller.WhoAmI()
	if err != nil {
		p.writeMu.Unlock()
		return "", fmt.Errorf("peer: send whoami: %w", err)
	}
	ch := p.registerPending(reqNo)
	p.writeMu.Unlock()
	defer p.unregisterPending(reqNo)

	select {
	case msg := <-ch:
		switch msg.Kind {
		case wire.KindRpcResponse:
			var out rpcapi.WhoAmIOut
			if err := json.Unmarshal(msg.Bytes, &out); err != nil {
				return "", fmt.Errorf("peer: decode whoami response: %w", err)
			}
			return out.ID, nil
		case wire.KindErrorResponse:
			return "", fmt.Errorf("peer: whoami: %s", msg.Message)
		default:
			return "", fmt.Errorf("peer: whoami: unexpected response kind %d", msg.Kind)
		}
	case <-time.After(callTimeout):
		return "", fmt.Errorf("peer: whoami: timed out waiting for reply")
	}
}

// fetchHistory issues ["createHistoryStream"] for authorID starting just
// after fromSeq (fromSeq 0 requests the whole feed) and invokes onEntry for
// each raw feed-envelope body delivered, stopping at the stream's natural
// end. It does not request live tailing: replication here is a one-shot
// catch-up, with long-lived tailing left to a future connection-level
// concern spec.md scopes out.
func (p *Peer) fetchHistory(authorID string, fromSeq int64, onEntry func(raw []byte) error) error {
	in := rpcapi.NewCreateHistoryStreamIn(authorID)
	seq := fromSeq + 1
	in.Seq = &seq
	live := false
	in.Live = &live

	p.writeMu.Lock()
	reqNo, err := p.caller.CreateHistoryStream(in)
	if err != nil {
		p.writeMu.Unlock()
		return fmt.Errorf("peer: send createHistoryStream: %w", err)
	}
	ch := p.registerPending(reqNo)
	p.writeMu.Unlock()
	defer p.unregisterPending(reqNo)

	for {
		select {
		case msg := <-ch:
			switch msg.Kind {
			case wire.KindRpcResponse:
				if err := onEntry(msg.Bytes); err != nil {
					return err
				}
			case wire.KindCancelStreamResponse:
				return nil
			case wire.KindErrorResponse:
				return fmt.Errorf("peer: createHistoryStream: %s", msg.Message)
			}
		case <-time.After(callTimeout):
			return fmt.Errorf("peer: createHistoryStream: timed out waiting for next entry")
		}
	}
}

// --- server-side response helpers -----------------------------------------
//
// These wrap rpcapi.Caller's send helpers with writeMu so the dispatch
// goroutine handling one inbound request never interleaves a partial frame
// with this peer's own outbound calls.

func (p *Peer) resSendJSON(reqNo int32, v interface{}) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.caller.ResSendJSON(reqNo, v)
}

func (p *Peer) resSendStreamJSON(reqNo int32, v interface{}) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.caller.ResSendStreamJSON(reqNo, v)
}

// resSendStreamRaw sends one element of a streamed response whose body is
// already-serialized bytes, bypassing ResSendStreamJSON's json.Marshal: the
// feed envelopes this peer streams back for
// ["createHistoryStream"]/["createFeedStream"] are canonjson.Value-backed,
// with no exported fields and no MarshalJSON, so they are stored or rendered
// as canonjson text and written as a raw JSON body. ["get"] uses
// resSendAsyncRaw below for its single reply.
func (p *Peer) resSendStreamRaw(reqNo int32, body []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.mux.SendResponse(reqNo, wire.StyleSource, wire.BodyJSON, body)
}

func (p *Peer) resSendAsyncRaw(reqNo int32, body []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.mux.SendResponse(reqNo, wire.StyleAsync, wire.BodyJSON, body)
}

func (p *Peer) resSendStreamEOF(reqNo int32) error {
	p.cancelMu.Lock()
	delete(p.canceled, reqNo)
	p.cancelMu.Unlock()

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.mux.SendStreamEOF(reqNo)
}

func (p *Peer) resSendBlobChunks(reqNo int32, data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.caller.ResSendBlobChunks(reqNo, data)
}

func (p *Peer) resSendError(reqNo int32, style wire.CallStyle, message string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.caller.ResSendError(reqNo, style, message)
}

// valueToJSON renders a canonjson.Value as raw JSON bytes via Stringify, the
// one safe serialization path for a type with no exported fields or
// MarshalJSON method.
func valueToJSON(v canonjson.Value) ([]byte, error) {
	s, err := canonjson.Stringify(v)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}
