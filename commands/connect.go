package commands

import (
	"context"
	"errors"
	"fmt"
	"peermesh/config"
	"peermesh/helper/timer"
	"peermesh/swarm/client"
	"peermesh/swarm/protocol"
	"time"

	log "github.com/sirupsen/logrus"
)

type ConnectOptions struct {
	Topology *config.Topology
	NodeID   string
	Target   string // Overrides the node's topology address

	ReadyTimeout   time.Duration
	RequestTimeout time.Duration
	PollInterval   time.Duration
}

type PeerFailure struct {
	Address string
	Err     error
}

type ConnectReport struct {
	NodeID    string
	Target    string
	Succeeded []string
	Failed    []PeerFailure
	Status    *protocol.StatusResponse
}

// Connect waits for a node to come up and adds the peers the topology lists for it. Only
// the node's side of each link is touched: the peers' own registries are left alone.
func Connect(ctx context.Context, opts ConnectOptions) (*ConnectReport, error) {
	if opts.Topology == nil {
		return nil, errors.New("connect: no topology")
	}
	peers, err := opts.Topology.PeersOf(opts.NodeID)
	if err != nil {
		return nil, err
	}

	target := opts.Target
	if target == "" {
		target = opts.Topology.Nodes[opts.NodeID].Address
	}

	c, err := client.NewHTTPClient(target, opts.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect: target %q: %w", target, err)
	}
	defer c.Close()

	report := &ConnectReport{
		NodeID: opts.NodeID,
		Target: c.Target(),
	}

	if err := waitReady(ctx, c, opts); err != nil {
		return report, err
	}

	for _, p := range peers {
		res, err := c.AddPeer(ctx, p.String())
		if err != nil {
			log.Errorf("Failed to add %s to %s: %v", p, opts.NodeID, err)
			report.Failed = append(report.Failed, PeerFailure{Address: p.String(), Err: err})
			continue
		}
		log.Infof("Peer %s on %s: %s", p, opts.NodeID, res.Result)
		report.Succeeded = append(report.Succeeded, p.String())
	}

	st, err := c.Status(ctx)
	if err != nil {
		return report, fmt.Errorf("connect: final status of %s: %w", opts.NodeID, err)
	}
	report.Status = st

	if len(report.Failed) > 0 {
		return report, fmt.Errorf("connect: %d of %d peer(s) could not be added to %s", len(report.Failed), len(peers), opts.NodeID)
	}
	return report, nil
}

// waitReady polls the node's status endpoint until it answers or ReadyTimeout expires.
func waitReady(ctx context.Context, c *client.HTTPClient, opts ConnectOptions) error {
	rctx, cancel := context.WithTimeout(ctx, opts.ReadyTimeout)
	defer cancel()

	probe := func(ctx context.Context) error {
		if _, err := c.Status(ctx); err != nil {
			log.Debugf("Waiting for %s: %v", c.Target(), err)
			return nil
		}
		return timer.ErrStop
	}

	if errors.Is(probe(rctx), timer.ErrStop) {
		return nil
	}

	interval := &timer.Interval{
		Duration: opts.PollInterval,
		Jitter:   opts.PollInterval / 10,
	}
	if err := timer.RunWithTicker(rctx, interval, probe); err != nil {
		return fmt.Errorf("connect: %s not ready after %v: %w", c.Target(), opts.ReadyTimeout, err)
	}
	return nil
}

func RunConnect(ctx context.Context, cfg *config.Config, topologyFile, nodeID, target string) error {
	t, err := config.LoadTopology(topologyFile)
	if err != nil {
		return fmt.Errorf("failed to load topology: %w", err)
	}

	ids := []string{nodeID}
	if nodeID == "" {
		if target != "" {
			return errors.New("-target needs -node")
		}
		ids = t.NodeIDs()
	}

	var failed int
	for _, id := range ids {
		report, err := Connect(ctx, ConnectOptions{
			Topology:       t,
			NodeID:         id,
			Target:         target,
			ReadyTimeout:   cfg.Bootstrap.ReadyTimeout.Std(),
			RequestTimeout: cfg.Bootstrap.RequestTimeout.Std(),
			PollInterval:   cfg.Bootstrap.PollInterval.Std(),
		})
		if report != nil && report.Status != nil {
			log.WithFields(log.Fields{
				"node":       id,
				"added":      len(report.Succeeded),
				"failed":     len(report.Failed),
				"peer_count": report.Status.PeerCount,
			}).Infof("Peers of %s: %v", id, report.Status.Peers)
		}
		if err != nil {
			log.Errorf("%v", err)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d node(s) not fully connected", failed)
	}
	return nil
}
