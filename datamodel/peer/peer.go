package peer

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Scheme is the canonical scheme of every normalized peer address. Peers are always
// reached over the node's HTTP transport, whatever scheme the caller supplied.
const Scheme = "http"

var ErrMalformedAddress = errors.New("malformed peer address")

// Address is a normalized peer endpoint of the form http://host:port.
// Two addresses refer to the same peer if and only if they are equal strings.
type Address string

func (a Address) String() string {
	return string(a)
}

// HostPort returns the host:port part of the address.
func (a Address) HostPort() string {
	return strings.TrimPrefix(string(a), Scheme+"://")
}

type Peer struct {
	Address Address   `cbor:"1,keyasint,omitempty"` // Normalized peer address
	AddedAt time.Time `cbor:"2,keyasint,omitempty"` // When the peer was added to the local registry
}

// PeerStore defines the interface for journaling the local peer set.
type PeerStore interface {
	// Put stores a peer record. Storing an address that is already present overwrites it.
	Put(*Peer) error

	// Enumerate returns all stored peer records.
	Enumerate() ([]*Peer, error)

	// Close releases the underlying storage.
	Close() error
}

// ParseAddress normalizes a peer address. It accepts "host:port", "http://host:port" and
// "https://host:port". The scheme is rewritten to http, the host is lowercased and IP
// literals are printed in canonical form. No name resolution takes place.
func ParseAddress(s string) (Address, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return "", fmt.Errorf("%w: empty address", ErrMalformedAddress)
	}

	if !strings.Contains(raw, "://") {
		raw = Scheme + "://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrMalformedAddress, s, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", fmt.Errorf("%w: %q: unsupported scheme %q", ErrMalformedAddress, s, u.Scheme)
	}

	if u.User != nil || u.RawQuery != "" || u.Fragment != "" || u.Opaque != "" || u.ForceQuery {
		return "", fmt.Errorf("%w: %q: unexpected url components", ErrMalformedAddress, s)
	}
	if u.Path != "" && u.Path != "/" {
		return "", fmt.Errorf("%w: %q: unexpected path %q", ErrMalformedAddress, s, u.Path)
	}

	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrMalformedAddress, s, err)
	}
	if host == "" {
		return "", fmt.Errorf("%w: %q: missing host", ErrMalformedAddress, s)
	}

	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil || p == 0 {
		return "", fmt.Errorf("%w: %q: invalid port %q", ErrMalformedAddress, s, port)
	}

	host = strings.ToLower(host)
	if ip, err := netip.ParseAddr(host); err == nil {
		host = ip.Unmap().String()
	} else if strings.ContainsAny(host, "%[]/ ") {
		return "", fmt.Errorf("%w: %q: invalid host %q", ErrMalformedAddress, s, host)
	}

	return Address(Scheme + "://" + net.JoinHostPort(host, strconv.FormatUint(p, 10))), nil
}

// MustParseAddress is ParseAddress for literals known to be valid.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}
