package node

import (
	"errors"
	"fmt"
	"peermesh/datamodel/peer"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	ErrMalformedAddress = peer.ErrMalformedAddress
	ErrSelfReference    = errors.New("peer address refers to the local node")
	ErrUnavailable      = errors.New("peer registry unavailable")
)

// AddResult tells an AddPeer caller whether the peer set changed.
type AddResult int

const (
	Added AddResult = iota
	AlreadyPresent
)

func (r AddResult) String() string {
	switch r {
	case Added:
		return "added"
	case AlreadyPresent:
		return "already_present"
	default:
		return fmt.Sprintf("AddResult(%d)", int(r))
	}
}

// NodeStatus is a point-in-time view of the registry.
type NodeStatus struct {
	NodeID  string
	Peers   []peer.Address // Sorted
	Running bool
}

// PeerRegistry owns the peer set of the local node. Membership only grows: peers are
// added through AddPeer and never removed.
type PeerRegistry struct {
	nodeID string
	self   map[peer.Address]struct{}
	store  peer.PeerStore // Optional journal

	mu      sync.RWMutex // protects following fields
	peers   map[peer.Address]*peer.Peer
	running bool
}

type Option func(*PeerRegistry) error

// WithStore journals every added peer to the store and restores the peer set from it.
func WithStore(store peer.PeerStore) Option {
	return func(r *PeerRegistry) error {
		r.store = store
		return nil
	}
}

// WithSelfAddresses makes AddPeer reject the given addresses with ErrSelfReference.
func WithSelfAddresses(addrs ...string) Option {
	return func(r *PeerRegistry) error {
		for _, a := range addrs {
			na, err := peer.ParseAddress(a)
			if err != nil {
				return fmt.Errorf("self address: %w", err)
			}
			r.self[na] = struct{}{}
		}
		return nil
	}
}

func NewPeerRegistry(nodeID string, opts ...Option) (*PeerRegistry, error) {
	r := &PeerRegistry{
		nodeID:  nodeID,
		self:    make(map[peer.Address]struct{}),
		peers:   make(map[peer.Address]*peer.Peer),
		running: true,
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	if r.store != nil {
		stored, err := r.store.Enumerate()
		if err != nil {
			return nil, fmt.Errorf("failed to restore peers: %w", err)
		}
		for _, p := range stored {
			addr, err := peer.ParseAddress(p.Address.String())
			if err != nil {
				log.Warnf("PeerRegistry: skipping journaled peer: %v", err)
				continue
			}
			if _, ok := r.self[addr]; ok {
				log.Warnf("PeerRegistry: skipping journaled peer %s: refers to the local node", addr)
				continue
			}
			p.Address = addr
			r.peers[addr] = p
		}
		log.Infof("PeerRegistry: restored %d of %d journaled peer(s)", len(r.peers), len(stored))
	}

	return r, nil
}

func (r *PeerRegistry) NodeID() string {
	return r.nodeID
}

// AddPeer normalizes address and inserts it into the peer set. The check and the insert
// happen under one write lock, so concurrent callers adding the same address observe
// exactly one Added. On error the peer set is left untouched.
func (r *PeerRegistry) AddPeer(address string) (AddResult, error) {
	addr, err := peer.ParseAddress(address)
	if err != nil {
		return 0, err
	}

	if _, ok := r.self[addr]; ok {
		return 0, fmt.Errorf("%w: %s", ErrSelfReference, addr)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return 0, ErrUnavailable
	}

	if _, ok := r.peers[addr]; ok {
		log.Debugf("PeerRegistry: %s already present", addr)
		return AlreadyPresent, nil
	}

	p := &peer.Peer{
		Address: addr,
		AddedAt: time.Now(),
	}

	// Journal first: a peer only becomes visible once it is durable
	if r.store != nil {
		if err := r.store.Put(p); err != nil {
			log.Errorf("PeerRegistry: failed to journal %s: %v", addr, err)
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	r.peers[addr] = p
	log.Infof("PeerRegistry: added peer %s (%d known)", addr, len(r.peers))

	return Added, nil
}

// Status returns a consistent snapshot of the peer set.
func (r *PeerRegistry) Status() (NodeStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.running {
		return NodeStatus{}, ErrUnavailable
	}

	peers := make([]peer.Address, 0, len(r.peers))
	for addr := range r.peers {
		peers = append(peers, addr)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })

	return NodeStatus{
		NodeID:  r.nodeID,
		Peers:   peers,
		Running: r.running,
	}, nil
}

func (r *PeerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Has reports whether address (in any accepted spelling) is a known peer.
func (r *PeerRegistry) Has(address string) bool {
	addr, err := peer.ParseAddress(address)
	if err != nil {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.peers[addr]
	return ok
}

// Close stops the registry. Subsequent calls fail with ErrUnavailable.
func (r *PeerRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}
	r.running = false

	if r.store != nil {
		return r.store.Close()
	}
	return nil
}

// ErrorCode maps registry errors to the codes used on the wire.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedAddress):
		return "malformed_address"
	case errors.Is(err, ErrSelfReference):
		return "self_reference"
	default:
		return "internal_unavailable"
	}
}

// ErrorFromCode is the inverse of ErrorCode.
func ErrorFromCode(code string, message string) error {
	var base error
	switch code {
	case "":
		return nil
	case "malformed_address":
		base = ErrMalformedAddress
	case "self_reference":
		base = ErrSelfReference
	default:
		base = ErrUnavailable
	}
	if message == "" {
		return base
	}
	return fmt.Errorf("%w: %s", base, message)
}
