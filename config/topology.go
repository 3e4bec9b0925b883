package config

import (
	"fmt"
	"os"
	"peermesh/datamodel/peer"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Topology maps node ids to the node's own address and the peers it should be linked to.
// Links are directional: a peer listed for node1 is added to node1's registry only.
type Topology struct {
	Nodes map[string]*TopologyNode `yaml:"nodes"`
}

type TopologyNode struct {
	Address     string   `yaml:"address"`
	Description string   `yaml:"description,omitempty"`
	Peers       []string `yaml:"peers"` // Node ids or literal addresses
}

func LoadTopology(filename string) (*Topology, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseTopology(data)
}

func ParseTopology(data []byte) (*Topology, error) {
	t := &Topology{}
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Topology) Save(filename string) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

// Validate normalizes node addresses and checks that every peer reference resolves.
func (t *Topology) Validate() error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("topology: no nodes defined")
	}

	for id, n := range t.Nodes {
		if n == nil {
			return fmt.Errorf("topology: node %q has no definition", id)
		}
		a, err := peer.ParseAddress(n.Address)
		if err != nil {
			return fmt.Errorf("topology: node %q: %w", id, err)
		}
		n.Address = a.String()
	}

	for _, id := range t.NodeIDs() {
		if _, err := t.PeersOf(id); err != nil {
			return err
		}
	}

	return nil
}

// NodeIDs returns the node ids in sorted order.
func (t *Topology) NodeIDs() []string {
	ids := make([]string, 0, len(t.Nodes))
	for id := range t.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PeersOf resolves the peer list of a node to normalized addresses, in declaration order.
func (t *Topology) PeersOf(id string) ([]peer.Address, error) {
	n, ok := t.Nodes[id]
	if !ok {
		return nil, fmt.Errorf("topology: unknown node %q (known: %s)", id, strings.Join(t.NodeIDs(), ", "))
	}

	self, err := peer.ParseAddress(n.Address)
	if err != nil {
		return nil, fmt.Errorf("topology: node %q: %w", id, err)
	}

	var out []peer.Address
	seen := make(map[peer.Address]struct{})
	for _, ref := range n.Peers {
		var addr peer.Address
		if target, ok := t.Nodes[ref]; ok {
			addr, err = peer.ParseAddress(target.Address)
		} else {
			addr, err = peer.ParseAddress(ref)
		}
		if err != nil {
			return nil, fmt.Errorf("topology: node %q: peer %q is neither a node id nor an address: %w", id, ref, err)
		}
		if addr == self {
			return nil, fmt.Errorf("topology: node %q lists itself as a peer", id)
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}

	return out, nil
}
