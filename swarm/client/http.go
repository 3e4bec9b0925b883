package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"peermesh/datamodel/peer"
	"peermesh/swarm/node"
	"peermesh/swarm/protocol"
	"time"

	"github.com/goccy/go-json"
)

const maxResponseSize = 1 << 20

// HTTPClient talks to a node's HTTP endpoint.
type HTTPClient struct {
	base string
	hc   *http.Client
}

// NewHTTPClient returns a client for the node listening on target, given in any
// spelling accepted for peer addresses.
func NewHTTPClient(target string, timeout time.Duration) (*HTTPClient, error) {
	addr, err := peer.ParseAddress(target)
	if err != nil {
		return nil, err
	}
	return &HTTPClient{
		base: addr.String(),
		hc:   &http.Client{Timeout: timeout},
	}, nil
}

func (c *HTTPClient) Target() string {
	return c.base
}

func (c *HTTPClient) Close() error {
	c.hc.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) AddPeer(ctx context.Context, address string) (*protocol.AddPeerResponse, error) {
	body, err := json.Marshal(&protocol.AddPeerRequest{PeerAddress: address})
	if err != nil {
		return nil, err
	}
	res := &protocol.AddPeerResponse{}
	if err := c.do(ctx, http.MethodPost, "/add_peer", body, res); err != nil {
		return nil, err
	}
	if res.Status != protocol.StatusPeerAdded {
		return nil, fmt.Errorf("%s/add_peer: unexpected status %q", c.base, res.Status)
	}
	return res, nil
}

func (c *HTTPClient) Status(ctx context.Context) (*protocol.StatusResponse, error) {
	res := &protocol.StatusResponse{}
	if err := c.do(ctx, http.MethodGet, "/status", nil, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *HTTPClient) Health(ctx context.Context) (*protocol.HealthResponse, error) {
	res := &protocol.HealthResponse{}
	if err := c.do(ctx, http.MethodGet, "/health", nil, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%s%s: reading response: %w", c.base, path, err)
	}

	if resp.StatusCode != http.StatusOK {
		var er protocol.ErrorResponse
		if json.Unmarshal(data, &er) == nil && er.Error != "" {
			return node.ErrorFromCode(er.Error, er.Message)
		}
		return fmt.Errorf("%s%s: %s", c.base, path, resp.Status)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s%s: decoding response: %w", c.base, path, err)
	}
	return nil
}
