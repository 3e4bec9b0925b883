package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"peermesh/config"
	"peermesh/datamodel/peer"
	"peermesh/helper/timer"
	"peermesh/net/crpc"
	"peermesh/net/netutil"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	log "github.com/sirupsen/logrus"
)

// Service is a transport that runs until its context is cancelled.
type Service interface {
	Serve(ctx context.Context) error
}

type Node struct {
	// Node ID
	NodeID    string
	Addresses []string

	// Membership
	Registry *PeerRegistry

	// Networking. RpcServer may be nil.
	RpcServer  *crpc.Server
	HTTPServer Service

	// RPC implementation
	RpcHandlers *Server

	statusLogInterval time.Duration
}

// SelfAddresses lists the addresses under which the node's HTTP listener is reachable,
// including the advertised address. These are the addresses a node must not add as a peer.
func SelfAddresses(cfg *config.Config, httpAddr net.Addr) []string {
	var addrs []string
	if cfg.Network.AdvertisedAddress != "" {
		addrs = append(addrs, cfg.Network.AdvertisedAddress)
	}
	return append(addrs, listenerAddresses(httpAddr, false)...)
}

// listenerAddresses returns the normalized addresses the HTTP listener is reachable on.
func listenerAddresses(httpAddr net.Addr, skipLoopback bool) []string {
	if httpAddr == nil {
		return nil
	}

	var addrs []string
	for _, hp := range netutil.ListenAddrs(httpAddr) {
		a, err := peer.ParseAddress(hp)
		if err != nil {
			log.Debugf("Skipping unusable listener address %s: %v", hp, err)
			continue
		}
		if skipLoopback {
			host, _, _ := net.SplitHostPort(a.HostPort())
			if ip := net.ParseIP(host); host == "localhost" || (ip != nil && ip.IsLoopback()) {
				continue
			}
		}
		addrs = append(addrs, a.String())
	}
	return addrs
}

func New(cfg *config.Config, registry *PeerRegistry, httpAddr net.Addr, rpcServer *crpc.Server, httpServer Service) (*Node, error) {
	if httpServer == nil {
		return nil, errors.New("node: no HTTP server")
	}

	node := &Node{
		NodeID:            cfg.Node.NodeID,
		Registry:          registry,
		HTTPServer:        httpServer,
		statusLogInterval: cfg.Registry.StatusLogInterval.Std(),
	}

	if cfg.Network.AdvertisedAddress != "" {
		node.Addresses = append(node.Addresses, cfg.Network.AdvertisedAddress)
	} else {
		// Advertise the non-loopback addresses the HTTP listener is reachable on
		node.Addresses = listenerAddresses(httpAddr, true)
	}

	if len(node.Addresses) == 0 {
		log.Warnf("No non-loopback addresses found, peers will have to use a loopback address")
	}

	if rpcServer != nil {
		node.RpcHandlers = &Server{node: node}
		node.RpcServer = rpcServer
		if err := node.RpcServer.RegisterName(RpcServiceName, node.RpcHandlers); err != nil {
			return nil, fmt.Errorf("failed to register RPC handlers: %w", err)
		}
	}

	log.Infof("I am %s, reachable on [%s]", node.NodeID, strings.Join(node.Addresses, ", "))

	return node, nil
}

// This is run via the RunWithTicker() helper
func (n *Node) logMembership(ctx context.Context) error {
	st, err := n.Registry.Status()
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"node":  st.NodeID,
		"peers": len(st.Peers),
	}).Infof("Membership: %v", st.Peers)
	return nil
}

// Run serves all transports until ctx is cancelled, then closes the registry.
func (n *Node) Run(ctx context.Context) error {
	wg, cctx := errgroup.WithContext(ctx)

	if n.RpcServer != nil {
		wg.Go(func() error {
			return n.RpcServer.Serve(cctx)
		})
	}

	wg.Go(func() error {
		return n.HTTPServer.Serve(cctx)
	})

	if n.statusLogInterval > 0 {
		wg.Go(func() error {
			interval := &timer.Interval{
				Duration: n.statusLogInterval,
				Jitter:   n.statusLogInterval / 10,
			}
			return timer.RunWithTicker(cctx, interval, n.logMembership)
		})
	}

	err := wg.Wait()

	if cerr := n.Registry.Close(); cerr != nil {
		log.Warnf("Failed to close peer registry: %v", cerr)
	}

	// Cancellation of the parent context is a clean shutdown
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}
