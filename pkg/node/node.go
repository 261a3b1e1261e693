// Package node is the orchestration glue binding every other package into a
// runnable peer: it owns the local identity's feed log, the derived
// friends/names views, the local blob cache, and the set of live peer
// connections, and drives the box-stream handshake and RPC dispatch for
// each one. It is grounded on pkg/agent/{agent,supervisor,network_adapter}.go
// — the same State enum, mutex-guarded struct, and ctx/cancel/done lifecycle
// shape, generalized from a DHT/SWIM/gossip agent to a box-stream peer.
package node

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/WebFirstLanguage/ssbnet/pkg/blobstore"
	"github.com/WebFirstLanguage/ssbnet/pkg/boxstream"
	"github.com/WebFirstLanguage/ssbnet/pkg/canonjson"
	"github.com/WebFirstLanguage/ssbnet/pkg/feed"
	"github.com/WebFirstLanguage/ssbnet/pkg/feedlog"
	"github.com/WebFirstLanguage/ssbnet/pkg/friends"
	"github.com/WebFirstLanguage/ssbnet/pkg/identity"
	"github.com/WebFirstLanguage/ssbnet/pkg/message"
	"github.com/WebFirstLanguage/ssbnet/pkg/names"
	"github.com/WebFirstLanguage/ssbnet/pkg/privatebox"
	"github.com/WebFirstLanguage/ssbnet/pkg/transport"
	"github.com/WebFirstLanguage/ssbnet/pkg/transport/tcp"
	"github.com/WebFirstLanguage/ssbnet/pkg/typedcontent"
)

// Error reports an orchestration-level failure.
type Error struct {
	Code   string
	Reason string
}

func (e *Error) Error() string { return fmt.Sprintf("node: %s: %s", e.Code, e.Reason) }

func newError(code, reason string) *Error { return &Error{Code: code, Reason: reason} }

// Named failure modes.
var (
	ErrUnknownFeed      = "UnknownFeed"
	ErrMessageNotFound  = "MessageNotFound"
	ErrBlobNotKnown     = "BlobNotKnown"
	ErrAlreadyRunning   = "AlreadyRunning"
	ErrAlreadyStopping  = "AlreadyStopping"
	ErrNotImplemented   = "NotImplemented"
)

// State mirrors pkg/agent.State's lifecycle enum.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateError
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// LogFunc is the logging hook pkg/node accepts instead of a logging
// framework dependency, per SPEC_FULL.md §10: "this repo's core packages
// remain logging-library-free".
type LogFunc func(format string, args ...interface{})

// Config configures a Node, mirroring pkg/agent.Agent / pkg/content.Config's
// plain-struct-with-defaults shape (no env/flag parsing library).
type Config struct {
	Transport   transport.Transport
	ListenAddr  string // empty disables listening
	StorageDir  string
	Logger      LogFunc
}

// DefaultConfig returns a Config with a plain TCP carrier, a local listen
// address, and a no-op logger, the way content.DefaultConfig supplies
// defaults for its own Config.
func DefaultConfig() *Config {
	return &Config{
		Transport:  tcp.New(),
		ListenAddr: "127.0.0.1:0",
		StorageDir: "./ssbnet-data",
		Logger:     func(string, ...interface{}) {},
	}
}

// Node is one running peer: its identity, its own and replicated feed logs,
// the views derived from them, and its live connections.
type Node struct {
	mu       sync.RWMutex
	state    State
	identity *identity.Identity
	cfg      *Config

	ownLog   *feedlog.Log
	lastMsg  *message.Message
	publishMu sync.Mutex

	logsMu sync.Mutex
	logs   map[string]*feedlog.Log // replicated feeds, keyed by author id

	indexMu     sync.RWMutex
	msgByID     map[string]message.Message
	lastByAuth  map[string]message.Message
	globalLog   []string // message ids in arrival order, backing createFeedStream

	friends *friends.Graph
	names   *names.Store

	blobs        *blobstore.Store
	wants        *blobstore.Wants
	manifestsMu  sync.RWMutex
	manifests    map[string]*blobstore.Manifest

	peersMu sync.Mutex
	peers   map[string]*Peer

	listener transport.Listener

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Node for id, opening (and creating if necessary) its own
// on-disk feed log under cfg.StorageDir and replaying it to rebuild the
// friends/names/message-id indices, the way the teacher's DHT/SWIM state is
// rebuilt from persisted records on agent construction.
func New(id *identity.Identity, cfg *Config) (*Node, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = func(string, ...interface{}) {}
	}
	if cfg.Transport == nil {
		cfg.Transport = tcp.New()
	}
	if cfg.StorageDir == "" {
		cfg.StorageDir = "./ssbnet-data"
	}
	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		return nil, fmt.Errorf("node: create storage dir: %w", err)
	}

	ownLog, err := feedlog.Open(authorLogPath(cfg.StorageDir, id.ID))
	if err != nil {
		return nil, fmt.Errorf("node: open own feed log: %w", err)
	}

	n := &Node{
		state:     StateStopped,
		identity:  id,
		cfg:       cfg,
		ownLog:    ownLog,
		logs:      make(map[string]*feedlog.Log),
		msgByID:   make(map[string]message.Message),
		lastByAuth: make(map[string]message.Message),
		friends:   friends.NewGraph(),
		names:     names.NewStore(),
		blobs:     blobstore.NewStore(),
		wants:     blobstore.NewWants(),
		manifests: make(map[string]*blobstore.Manifest),
		peers:     make(map[string]*Peer),
		done:      make(chan struct{}),
	}

	if err := n.reindexLog(ownLog); err != nil {
		ownLog.Close()
		return nil, fmt.Errorf("node: replay own feed log: %w", err)
	}
	return n, nil
}

// authorLogPath maps an author id to the on-disk feed log path, reusing
// feedlog.FilenameForAuthor's filesystem-safe substitution.
func authorLogPath(dir, authorID string) string {
	payload := strings.TrimSuffix(strings.TrimPrefix(authorID, "@"), ".ed25519")
	return filepath.Join(dir, feedlog.FilenameForAuthor(payload)+".ssbnetlog")
}

func (n *Node) logf(format string, args ...interface{}) {
	n.cfg.Logger(format, args...)
}

// State returns the node's current lifecycle state.
func (n *Node) State() State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

func (n *Node) setState(s State) {
	n.mu.Lock()
	n.state = s
	n.mu.Unlock()
}

// Identity returns the node's signing identity.
func (n *Node) Identity() *identity.Identity { return n.identity }

// Start brings the node up: if cfg.ListenAddr is non-empty it opens a
// listener on cfg.Transport and begins accepting peers, then runs the
// background housekeeping loop until Stop is called.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.state == StateRunning {
		n.mu.Unlock()
		return newError(ErrAlreadyRunning, "node is already running")
	}
	if n.state == StateStarting {
		n.mu.Unlock()
		return newError(ErrAlreadyRunning, "node is already starting")
	}
	n.state = StateStarting
	n.ctx, n.cancel = context.WithCancel(ctx)
	n.done = make(chan struct{})
	n.mu.Unlock()

	if n.cfg.ListenAddr != "" {
		listener, err := n.cfg.Transport.Listen(n.ctx, n.cfg.ListenAddr)
		if err != nil {
			n.setState(StateError)
			n.cancel()
			return fmt.Errorf("node: listen on %s: %w", n.cfg.ListenAddr, err)
		}
		n.mu.Lock()
		n.listener = listener
		n.mu.Unlock()
		go n.acceptLoop()
	}

	n.setState(StateRunning)
	go n.run()
	return nil
}

// Stop cancels the node's background work and waits for it to exit, closing
// every live peer connection and the on-disk logs.
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	if n.state == StateStopped {
		n.mu.Unlock()
		return newError(ErrAlreadyStopping, "node is already stopped")
	}
	if n.state == StateStopping {
		n.mu.Unlock()
		return newError(ErrAlreadyStopping, "node is already stopping")
	}
	n.state = StateStopping
	listener := n.listener
	cancel := n.cancel
	n.mu.Unlock()

	if listener != nil {
		listener.Close()
	}
	if cancel != nil {
		cancel()
	}

	select {
	case <-n.done:
	case <-ctx.Done():
		n.setState(StateError)
		return ctx.Err()
	}

	n.peersMu.Lock()
	for _, p := range n.peers {
		p.conn.Close()
	}
	n.peers = make(map[string]*Peer)
	n.peersMu.Unlock()

	n.logsMu.Lock()
	for _, l := range n.logs {
		l.Close()
	}
	n.logsMu.Unlock()
	n.ownLog.Close()

	n.setState(StateStopped)
	return nil
}

// run is the background housekeeping loop, mirroring pkg/agent.Agent.run's
// ctx.Done/time.After select shape.
func (n *Node) run() {
	defer close(n.done)
	n.logf("node %s started", n.identity.ID)
	for {
		select {
		case <-n.ctx.Done():
			n.logf("node %s stopping", n.identity.ID)
			return
		case <-time.After(30 * time.Second):
			n.logf("node %s heartbeat: %d peers", n.identity.ID, n.PeerCount())
		}
	}
}

// PeerCount returns the number of currently connected peers.
func (n *Node) PeerCount() int {
	n.peersMu.Lock()
	defer n.peersMu.Unlock()
	return len(n.peers)
}

func (n *Node) acceptLoop() {
	for {
		conn, err := n.listener.Accept(n.ctx)
		if err != nil {
			if n.ctx.Err() != nil {
				return
			}
			n.logf("node: accept: %v", err)
			continue
		}
		go n.handleAccepted(conn)
	}
}

func (n *Node) handleAccepted(conn transport.Conn) {
	sess, _, err := boxstream.Accept(conn, n.identity)
	if err != nil {
		n.logf("node: handshake from %s failed: %v", conn.RemoteAddr(), err)
		conn.Close()
		return
	}
	p := newPeer(conn, sess)
	// The receive loop must already be running for identifyPeer's whoami
	// reply to be delivered.
	go n.servePeer(p)
	n.identifyPeer(p)
	key := p.RemoteID()
	if key == "" {
		key = conn.RemoteAddr().String()
	}
	n.registerPeer(key, p)
}

// Connect dials addr with cfg.Transport and establishes a box-stream session
// against the peer known by peerPublic, registering and serving the
// resulting Peer until the connection closes or the node stops.
func (n *Node) Connect(ctx context.Context, addr string, peerPublic identity.PublicKey) (*Peer, error) {
	conn, err := n.cfg.Transport.Dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("node: dial %s: %w", addr, err)
	}
	sess, err := boxstream.Dial(conn, n.identity, peerPublic)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("node: handshake with %s: %w", addr, err)
	}
	p := newPeer(conn, sess)
	p.remoteID = identity.EncodePublicKey(peerPublic)
	n.registerPeer(p.remoteID, p)
	go n.servePeer(p)
	return p, nil
}

func (n *Node) registerPeer(key string, p *Peer) {
	n.peersMu.Lock()
	n.peers[key] = p
	n.peersMu.Unlock()
}

func (n *Node) dropPeer(p *Peer) {
	n.peersMu.Lock()
	for k, v := range n.peers {
		if v == p {
			delete(n.peers, k)
		}
	}
	n.peersMu.Unlock()
	p.conn.Close()
}

// identifyPeer asks a freshly accepted peer who it is, so an inbound
// connection (which box-stream authenticates but cannot name, since Noise IK
// verifies a Curve25519 key, not the Ed25519 id string naming it) ends up
// keyed by its real id like an outbound one. Failure here is not fatal: the
// peer stays reachable by its connection key.
func (n *Node) identifyPeer(p *Peer) {
	out, err := p.whoAmI()
	if err != nil {
		n.logf("node: identify peer %s: %v", p.conn.RemoteAddr(), err)
		return
	}
	p.mu.Lock()
	p.remoteID = out
	p.mu.Unlock()
}

// Publish signs content as the next entry in the node's own feed, appends it
// to the on-disk log, and folds it into the derived friends/names views.
func (n *Node) Publish(content canonjson.Value) (message.Message, error) {
	n.publishMu.Lock()
	defer n.publishMu.Unlock()

	msg, err := message.Sign(n.lastMsg, n.identity, content)
	if err != nil {
		return message.Message{}, fmt.Errorf("node: sign entry: %w", err)
	}
	f := feed.Wrap(msg, float64(time.Now().UnixMilli())/1000)
	body, err := f.Marshal()
	if err != nil {
		return message.Message{}, fmt.Errorf("node: marshal entry: %w", err)
	}
	if err := n.ownLog.Append(uint32(msg.Sequence()), body); err != nil {
		return message.Message{}, fmt.Errorf("node: append entry: %w", err)
	}

	m := msg
	n.lastMsg = &m
	n.indexMessage(msg)
	return msg, nil
}

// PublishTyped signs and appends one of pkg/typedcontent's tagged content
// shapes.
func (n *Node) PublishTyped(c typedcontent.Content) (message.Message, error) {
	return n.Publish(c.ToValue())
}

// PrivatePublish encrypts plaintext for recipients with pkg/privatebox and
// publishes the resulting box string as the entry's content, per spec §6's
// ["private","publish"] call.
func (n *Node) PrivatePublish(plaintext []byte, recipientIDs []string) (message.Message, error) {
	recipients := make([]identity.PublicKey, 0, len(recipientIDs))
	for _, r := range recipientIDs {
		pub, err := identity.DecodePublicKeyWithSuffix(r)
		if err != nil {
			return message.Message{}, fmt.Errorf("node: recipient %q: %w", r, err)
		}
		recipients = append(recipients, pub)
	}
	ciphertext, err := privatebox.Encrypt(plaintext, recipients)
	if err != nil {
		return message.Message{}, fmt.Errorf("node: encrypt private message: %w", err)
	}
	return n.Publish(canonjson.String(privatebox.EncodeBox(ciphertext)))
}

// PutBlob splits data into content-addressed chunks, registers the resulting
// manifest under its wire id, and returns it; the wire id is what
// ["blobs","get"] callers ask for.
func (n *Node) PutBlob(data []byte) (*blobstore.Manifest, error) {
	m, err := n.blobs.BuildManifest(data)
	if err != nil {
		return nil, err
	}
	n.manifestsMu.Lock()
	n.manifests[m.WireID] = m
	n.manifestsMu.Unlock()
	return m, nil
}

// indexMessage folds a verified or freshly signed message into the node's
// in-memory views: the message-id lookup backing ["get"], and the
// friends/names graphs derived from "contact"/"about" content.
func (n *Node) indexMessage(msg message.Message) {
	n.indexMu.Lock()
	if _, dup := n.msgByID[msg.ID()]; !dup {
		n.globalLog = append(n.globalLog, msg.ID())
	}
	n.msgByID[msg.ID()] = msg
	n.lastByAuth[msg.Author()] = msg
	n.indexMu.Unlock()

	c, err := typedcontent.Parse(msg.Content())
	if err != nil {
		return // not every message carries one of the typed shapes; that's fine
	}
	switch v := c.(type) {
	case typedcontent.Contact:
		n.friends.Apply(msg.Author(), v)
	case typedcontent.About:
		n.names.Apply(msg.Author(), v, uint64(msg.Sequence()))
	}
}

// Message looks up a previously indexed message (published locally or
// folded in via ReplicateFeed) by id.
func (n *Node) Message(id string) (message.Message, bool) {
	n.indexMu.RLock()
	defer n.indexMu.RUnlock()
	msg, ok := n.msgByID[id]
	return msg, ok
}

func (n *Node) reindexLog(log *feedlog.Log) error {
	it := log.Iter()
	for it.Next() {
		f, err := feed.Decode(it.Body())
		if err != nil {
			return err
		}
		n.indexMessage(f.Value)
	}
	return it.Err()
}

func (n *Node) lookupLog(authorID string) (*feedlog.Log, bool) {
	if authorID == n.identity.ID {
		return n.ownLog, true
	}
	n.logsMu.Lock()
	defer n.logsMu.Unlock()
	l, ok := n.logs[authorID]
	return l, ok
}

// ReplicateFeed fetches every entry of authorID's feed from p that the node
// doesn't already have, verifying and appending each one to a local replica
// log and folding it into the derived views. This is the *protocol* for
// requesting a feed (spec.md's in-scope half of replication); deciding which
// peer to ask for which feed and when is the out-of-scope scheduler spec.md
// names as a non-goal.
func (n *Node) ReplicateFeed(p *Peer, authorID string) error {
	n.logsMu.Lock()
	l, ok := n.logs[authorID]
	if !ok {
		var err error
		l, err = feedlog.Open(authorLogPath(n.cfg.StorageDir, authorID))
		if err != nil {
			n.logsMu.Unlock()
			return fmt.Errorf("node: open replica log for %s: %w", authorID, err)
		}
		n.logs[authorID] = l
	}
	n.logsMu.Unlock()

	startSeq := int64(l.LastSequence())

	return p.fetchHistory(authorID, startSeq, func(raw []byte) error {
		f, err := feed.Decode(raw)
		if err != nil {
			return fmt.Errorf("node: decode replicated entry: %w", err)
		}
		if f.Value.Author() != authorID {
			return newError(ErrUnknownFeed, fmt.Sprintf("expected author %s, got %s", authorID, f.Value.Author()))
		}
		if err := l.Append(uint32(f.Value.Sequence()), raw); err != nil {
			return fmt.Errorf("node: append replicated entry: %w", err)
		}
		n.indexMessage(f.Value)
		return nil
	})
}
