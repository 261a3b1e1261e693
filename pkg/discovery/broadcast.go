package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/WebFirstLanguage/ssbnet/pkg/identity"
)

// broadcastPort is the UDP port LAN discovery announces and listens on.
const broadcastPort = 8008

// BroadcasterConfig configures a Broadcaster.
type BroadcasterConfig struct {
	PubKey   identity.PublicKey
	Port     int           // the RPC port being announced; the UDP source port is ephemeral
	Interval time.Duration // how often to re-announce; defaults to 1 minute
}

// Broadcaster periodically announces this node's reachable addresses on
// every broadcast-capable local interface, mirroring
// internal/dht/presence.go's PresenceManager: a ctx/cancel/done-guarded
// refresh loop that (re-)publishes on an interval and can be stopped
// cleanly.
type Broadcaster struct {
	cfg BroadcasterConfig

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBroadcaster constructs a Broadcaster; it does nothing until Start.
func NewBroadcaster(cfg BroadcasterConfig) *Broadcaster {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Broadcaster{cfg: cfg}
}

// Start begins the periodic announce loop.
func (b *Broadcaster) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx != nil {
		return fmt.Errorf("discovery: broadcaster already running")
	}
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})
	go b.loop()
	return nil
}

// Stop cancels the announce loop and waits for it to exit.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	done := b.done
	b.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
}

func (b *Broadcaster) loop() {
	defer close(b.done)
	b.announceOnce()
	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.announceOnce()
		}
	}
}

func (b *Broadcaster) announceOnce() {
	for _, bcast := range localBroadcastAddrs() {
		conn, err := net.Dial("udp4", fmt.Sprintf("%s:%d", bcast, broadcastPort))
		if err != nil {
			continue
		}
		// The socket's local address is the interface's own IPv4 address,
		// the one a peer on that network can reach this node at.
		local, ok := conn.LocalAddr().(*net.UDPAddr)
		if !ok {
			conn.Close()
			continue
		}
		msg := EncodeAnnouncements([]Announcement{{IP: local.IP.String(), Port: b.cfg.Port, PubKey: b.cfg.PubKey}})
		conn.Write([]byte(msg))
		conn.Close()
	}
}

// localBroadcastAddrs returns the IPv4 broadcast address of every
// non-loopback interface with an assigned address, the way the original
// implementation's get_if_addrs scan does: a directed broadcast per
// interface rather than a single global 255.255.255.255 send, so the
// announcement actually reaches peers on networks where the OS blocks
// the limited-broadcast address.
func localBroadcastAddrs() []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var out []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil {
				continue
			}
			out = append(out, broadcastAddress(ip4, ipnet.Mask).String())
		}
	}
	return out
}

func broadcastAddress(ip net.IP, mask net.IPMask) net.IP {
	bcast := make(net.IP, len(ip))
	for i := range ip {
		bcast[i] = ip[i] | ^mask[i]
	}
	return bcast
}

// Listener receives and parses LAN broadcast announcements.
type Listener struct {
	conn *net.UDPConn
}

// Listen opens a UDP socket on the well-known discovery port.
func Listen() (*Listener, error) {
	addr := &net.UDPAddr{Port: broadcastPort}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("discovery: listen: %w", err)
	}
	return &Listener{conn: conn}, nil
}

// Close stops listening.
func (l *Listener) Close() error { return l.conn.Close() }

// Next blocks until one broadcast packet arrives and returns its parsed
// announcements.
func (l *Listener) Next() ([]Announcement, error) {
	buf := make([]byte, 2048)
	n, _, err := l.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, err
	}
	return ParseAnnouncements(string(buf[:n]))
}
