// Package discovery implements spec §6's two small wire formats for finding
// a peer without already knowing its address: a UDP LAN broadcast string
// announcing reachable addresses for a public key, and an invite code
// carrying a pub's address plus a one-time signing seed. Grounded on
// internal/dht/presence.go's periodic-refresh Start/Stop/loop shape and on
// original_source's discovery/{lan,network,pubs}.rs, which this module's
// wire formats are distilled from.
package discovery

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/WebFirstLanguage/ssbnet/pkg/identity"
)

// Error reports a malformed discovery string.
type Error struct {
	Code   string
	Reason string
}

func (e *Error) Error() string { return fmt.Sprintf("discovery: %s: %s", e.Code, e.Reason) }

func newError(code, reason string) *Error { return &Error{Code: code, Reason: reason} }

// Named failure modes.
var (
	ErrInvalidBroadcast = "InvalidBroadcast"
	ErrInvalidInvite    = "InvalidInvite"
)

// Announcement is one reachable (address, public key) pair as carried by a
// "net:<ipv4>:<port>~shs:<base64-pubkey>" segment.
type Announcement struct {
	IP     string
	Port   int
	PubKey identity.PublicKey
}

// EncodeAnnouncements joins one or more announcements into the
// semicolon-separated broadcast string spec §6 describes.
func EncodeAnnouncements(list []Announcement) string {
	parts := make([]string, len(list))
	for i, a := range list {
		pk := base64.StdEncoding.EncodeToString(a.PubKey)
		parts[i] = fmt.Sprintf("net:%s:%d~shs:%s", a.IP, a.Port, pk)
	}
	return strings.Join(parts, ";")
}

// ParseAnnouncements decodes a broadcast string into its announcements,
// skipping (rather than failing on) any segment that doesn't match the
// expected shape — a single malformed address among several valid ones
// shouldn't sink the whole packet.
func ParseAnnouncements(msg string) ([]Announcement, error) {
	var out []Announcement
	for _, segment := range strings.Split(msg, ";") {
		a, ok := parseAnnouncement(segment)
		if ok {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		return nil, newError(ErrInvalidBroadcast, msg)
	}
	return out, nil
}

func parseAnnouncement(segment string) (Announcement, bool) {
	netPart, shsPart, ok := strings.Cut(segment, "~")
	if !ok {
		return Announcement{}, false
	}
	fields := strings.SplitN(netPart, ":", 3)
	if len(fields) != 3 || fields[0] != "net" {
		return Announcement{}, false
	}
	port, err := strconv.Atoi(fields[2])
	if err != nil {
		return Announcement{}, false
	}
	pkB64, ok := strings.CutPrefix(shsPart, "shs:")
	if !ok {
		return Announcement{}, false
	}
	raw, err := base64.StdEncoding.DecodeString(pkB64)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return Announcement{}, false
	}
	return Announcement{IP: fields[1], Port: port, PubKey: identity.PublicKey(raw)}, true
}

// Invite is a parsed invite code: a pub's address plus the one-time seed
// identity it hands out to redeem it (spec §6, §4 ["invite","use"]).
type Invite struct {
	Host string
	Port int
	Pub  identity.PublicKey
	Seed identity.SecretKey
}

// ParseInviteCode parses "host:port:@<base64-pubkey>.ed25519~<base64-seed>".
// The seed half carries no suffix and is a raw 32-byte Ed25519 seed, not a
// full 64-byte encoded secret key — identity.DecodeSecretKey doesn't apply
// here, so the seed is expanded directly with ed25519.NewKeyFromSeed.
func ParseInviteCode(code string) (*Invite, error) {
	fields := strings.SplitN(code, ":", 3)
	if len(fields) != 3 {
		return nil, newError(ErrInvalidInvite, "expected host:port:keys")
	}
	host := fields[0]
	port, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, newError(ErrInvalidInvite, "bad port")
	}

	pubPart, seedPart, ok := strings.Cut(fields[2], "~")
	if !ok {
		return nil, newError(ErrInvalidInvite, "missing '~' separator")
	}

	pub, err := identity.DecodePublicKeyWithSuffix(pubPart)
	if err != nil {
		return nil, fmt.Errorf("discovery: invite public key: %w", err)
	}

	seed, err := base64.StdEncoding.DecodeString(seedPart)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, newError(ErrInvalidInvite, "bad seed")
	}

	return &Invite{
		Host: host,
		Port: port,
		Pub:  pub,
		Seed: identity.SecretKey(ed25519.NewKeyFromSeed(seed)),
	}, nil
}

// Addr returns the invite's dialable address.
func (inv *Invite) Addr() string {
	return net.JoinHostPort(inv.Host, strconv.Itoa(inv.Port))
}

// EncodeInviteCode renders an Invite back into its wire form, the inverse
// of ParseInviteCode. The seed is re-derived from inv.Seed's embedded seed
// bytes (the first half of an ed25519.PrivateKey).
func EncodeInviteCode(inv *Invite) string {
	seed := []byte(inv.Seed)[:ed25519.SeedSize]
	return fmt.Sprintf("%s:%d:%s~%s",
		inv.Host, inv.Port,
		identity.EncodePublicKey(inv.Pub),
		base64.StdEncoding.EncodeToString(seed))
}
