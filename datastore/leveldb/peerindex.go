package leveldb

import (
	"bytes"
	"peermesh/datamodel/peer"

	"github.com/fxamacker/cbor/v2"
	"github.com/syndtr/goleveldb/leveldb/util"

	log "github.com/sirupsen/logrus"
)

const (
	keyPrefixPeer = "PER" // Peer record indexed by address. Followed by the normalized address
)

var _ peer.PeerStore = (*PeerIndex)(nil)

type PeerIndex struct {
	LevelDB
}

func keyFromAddress(addr peer.Address) []byte {
	return append([]byte(keyPrefixPeer), []byte(addr)...)
}

func NewPeerIndex(path string) (*PeerIndex, error) {
	// Init the underlying LevelDB object
	ldb, err := initLevelDb(path)
	if err != nil {
		return nil, err
	}

	return &PeerIndex{
		LevelDB: LevelDB{
			path: path,
			db:   ldb,
		},
	}, nil
}

func (l *PeerIndex) Put(p *peer.Peer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return ErrClosed
	}

	raw, err := cbor.Marshal(p)
	if err != nil {
		return err
	}

	return l.db.Put(keyFromAddress(p.Address), raw, nil)
}

func (l *PeerIndex) Enumerate() ([]*peer.Peer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return nil, ErrClosed
	}

	var results []*peer.Peer

	iter := l.db.NewIterator(util.BytesPrefix([]byte(keyPrefixPeer)), nil)
	defer iter.Release()

	for iter.Next() {
		p := &peer.Peer{}
		if err := cbor.Unmarshal(iter.Value(), p); err != nil {
			return nil, err
		}

		// The key and the record must agree
		if !bytes.Equal(iter.Key(), keyFromAddress(p.Address)) {
			log.Errorf("Enumerate: address mismatch: %s != %s", iter.Key(), p.Address)
			return nil, ErrCorrupted
		}

		results = append(results, p)
	}

	if err := iter.Error(); err != nil {
		return nil, err
	}

	return results, nil
}
