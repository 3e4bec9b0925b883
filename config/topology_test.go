package config

import (
	"path/filepath"
	"peermesh/datamodel/peer"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const threeNodes = `
nodes:
  node1:
    address: http://192.168.1.137:5001
    description: connects only to node2
    peers: [node2]
  node2:
    address: http://192.168.1.137:5002
    peers: [node1, node3]
  node3:
    address: 192.168.1.193:5003
    peers: [node2, "http://192.168.1.137:5002/"]
`

func TestParseTopologyThreeNodes(t *testing.T) {
	topo, err := ParseTopology([]byte(threeNodes))
	require.NoError(t, err)

	assert.Equal(t, []string{"node1", "node2", "node3"}, topo.NodeIDs())
	assert.Equal(t, "http://192.168.1.193:5003", topo.Nodes["node3"].Address)

	peers, err := topo.PeersOf("node2")
	require.NoError(t, err)
	assert.Equal(t, []peer.Address{"http://192.168.1.137:5001", "http://192.168.1.193:5003"}, peers)

	// Duplicate references collapse
	peers, err = topo.PeersOf("node3")
	require.NoError(t, err)
	assert.Equal(t, []peer.Address{"http://192.168.1.137:5002"}, peers)

	_, err = topo.PeersOf("node4")
	assert.ErrorContains(t, err, "unknown node")
}

func TestTopologyValidation(t *testing.T) {
	cases := map[string]string{
		"empty":        `nodes: {}`,
		"bad address":  "nodes:\n  a: {address: nope, peers: []}",
		"bad peer":     "nodes:\n  a: {address: 'h:1', peers: [ghost]}",
		"self link":    "nodes:\n  a: {address: 'h:1', peers: [a]}",
		"self literal": "nodes:\n  a: {address: 'h:1', peers: ['http://h:1']}",
		"not yaml":     "nodes: [",
	}

	for name, doc := range cases {
		_, err := ParseTopology([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestTopologySaveLoad(t *testing.T) {
	topo, err := ParseTopology([]byte(threeNodes))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "topology.yaml")
	require.NoError(t, topo.Save(path))

	loaded, err := LoadTopology(path)
	require.NoError(t, err)
	assert.Equal(t, topo.Nodes["node1"].Peers, loaded.Nodes["node1"].Peers)
	assert.Equal(t, topo.Nodes["node2"].Address, loaded.Nodes["node2"].Address)
}
