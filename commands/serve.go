package commands

import (
	"context"
	"fmt"
	"net"
	"peermesh/config"
	"peermesh/datastore/leveldb"
	"peermesh/net/crpc"
	"peermesh/swarm/node"
	"peermesh/web"

	log "github.com/sirupsen/logrus"
)

// RunServe runs a node until ctx is cancelled.
func RunServe(ctx context.Context, cfg *config.Config) error {
	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	// HTTP listener first: its address feeds the self-reference guard
	httpl, err := net.Listen("tcp", cfg.Network.HTTPListenAddress)
	if err != nil {
		return fmt.Errorf("failed to create HTTP listener: %w", err)
	}
	cleanup = append(cleanup, func() { httpl.Close() })

	var opts []node.Option
	if cfg.Registry.AllowSelf {
		log.Warnf("Self-reference guard disabled, the node may be added to its own peer set")
	} else {
		opts = append(opts, node.WithSelfAddresses(node.SelfAddresses(cfg, httpl.Addr())...))
	}

	if cfg.DataStore.PeerIndexPath != "" {
		idx, err := leveldb.NewPeerIndex(cfg.DataStore.PeerIndexPath)
		if err != nil {
			return fmt.Errorf("failed to open peer index: %w", err)
		}
		cleanup = append(cleanup, func() { idx.Close() })
		opts = append(opts, node.WithStore(idx))
	}

	registry, err := node.NewPeerRegistry(cfg.Node.NodeID, opts...)
	if err != nil {
		return fmt.Errorf("failed to create peer registry: %w", err)
	}

	var rsrv *crpc.Server
	if cfg.Network.RPCListenAddress != "" {
		rpcl, err := net.Listen("tcp", cfg.Network.RPCListenAddress)
		if err != nil {
			registry.Close()
			return fmt.Errorf("failed to create RPC listener: %w", err)
		}
		cleanup = append(cleanup, func() { rpcl.Close() })
		rsrv = crpc.NewServer(rpcl)
	}

	ws := web.NewServer(httpl, registry)

	n, err := node.New(cfg, registry, httpl.Addr(), rsrv, ws)
	if err != nil {
		registry.Close()
		return err
	}

	// From here on the servers own the listeners and the registry owns the store
	cleanup = nil

	return n.Run(ctx)
}
