package commands

import (
	"context"
	"fmt"
	"io"
	"net"
	"peermesh/config"
	"peermesh/swarm/client"

	"github.com/goccy/go-json"
)

// LocalTarget returns the address under which the node described by cfg can be reached
// from this host.
func LocalTarget(cfg *config.Config) string {
	if cfg.Network.AdvertisedAddress != "" {
		return cfg.Network.AdvertisedAddress
	}
	host, port, err := net.SplitHostPort(cfg.Network.HTTPListenAddress)
	if err != nil {
		return cfg.Network.HTTPListenAddress
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

// RunStatus prints a node's status as JSON. rpcAddress selects the RPC transport.
func RunStatus(ctx context.Context, cfg *config.Config, target, rpcAddress string, w io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.Bootstrap.RequestTimeout.Std())
	defer cancel()

	var c client.PeerClient
	if rpcAddress != "" {
		rc, err := client.Dial(ctx, rpcAddress)
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", rpcAddress, err)
		}
		c = rc
	} else {
		if target == "" {
			target = LocalTarget(cfg)
		}
		hc, err := client.NewHTTPClient(target, cfg.Bootstrap.RequestTimeout.Std())
		if err != nil {
			return err
		}
		c = hc
	}
	defer c.Close()

	st, err := c.Status(ctx)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
