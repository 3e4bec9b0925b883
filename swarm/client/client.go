package client

import (
	"context"
	"peermesh/net/crpc"
	"peermesh/swarm/node"
	"peermesh/swarm/protocol"
)

// PeerClient is the remote side of a node's peer registry.
type PeerClient interface {
	AddPeer(ctx context.Context, address string) (*protocol.AddPeerResponse, error)
	Status(ctx context.Context) (*protocol.StatusResponse, error)
	Close() error
}

// Client talks to a node over CBOR RPC.
type Client struct {
	client *crpc.Client
}

func Dial(ctx context.Context, address string) (*Client, error) {
	c, err := crpc.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return &Client{client: c}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) AddPeer(ctx context.Context, address string) (*protocol.AddPeerResponse, error) {
	req := &protocol.AddPeerRequest{PeerAddress: address}
	res := &protocol.AddPeerResponse{}
	if err := c.client.Call(ctx, node.RpcServiceName+".AddPeer", req, res); err != nil {
		return nil, node.ErrorFromRPC(err)
	}
	return res, nil
}

func (c *Client) Status(ctx context.Context) (*protocol.StatusResponse, error) {
	res := &protocol.StatusResponse{}
	if err := c.client.Call(ctx, node.RpcServiceName+".Status", &protocol.StatusRequest{}, res); err != nil {
		return nil, node.ErrorFromRPC(err)
	}
	return res, nil
}
