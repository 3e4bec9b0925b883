package leveldb

import (
	"path/filepath"
	"peermesh/datamodel/peer"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeerIndexPutEnumerate(t *testing.T) {
	idx, err := NewPeerIndex(filepath.Join(t.TempDir(), "peers"))
	require.NoError(t, err)
	defer idx.Close()

	a := peer.MustParseAddress("http://192.168.1.137:5001")
	b := peer.MustParseAddress("http://192.168.1.193:5003")

	require.NoError(t, idx.Put(&peer.Peer{Address: a, AddedAt: time.Now()}))
	require.NoError(t, idx.Put(&peer.Peer{Address: b, AddedAt: time.Now()}))
	require.NoError(t, idx.Put(&peer.Peer{Address: a, AddedAt: time.Now()}))

	peers, err := idx.Enumerate()
	require.NoError(t, err)
	require.Len(t, peers, 2)
	assert.Equal(t, a, peers[0].Address)
	assert.Equal(t, b, peers[1].Address)
}

func TestPeerIndexSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peers")

	idx, err := NewPeerIndex(path)
	require.NoError(t, err)
	require.NoError(t, idx.Put(&peer.Peer{Address: peer.MustParseAddress("10.0.0.2:5002")}))
	require.NoError(t, idx.Close())

	idx, err = NewPeerIndex(path)
	require.NoError(t, err)
	defer idx.Close()

	peers, err := idx.Enumerate()
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, peer.Address("http://10.0.0.2:5002"), peers[0].Address)
	assert.Equal(t, path, idx.Path())
}

func TestPeerIndexClosed(t *testing.T) {
	idx, err := NewPeerIndex(filepath.Join(t.TempDir(), "peers"))
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	assert.ErrorIs(t, idx.Put(&peer.Peer{Address: "http://10.0.0.1:1"}), ErrClosed)
	_, err = idx.Enumerate()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, idx.Close(), ErrClosed)
}
