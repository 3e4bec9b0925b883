package client

import (
	"context"
	"net"
	"net/http/httptest"
	"peermesh/config"
	"peermesh/net/crpc"
	"peermesh/swarm/node"
	"peermesh/web"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRegistry(t *testing.T) *node.PeerRegistry {
	t.Helper()
	r, err := node.NewPeerRegistry("node1", node.WithSelfAddresses("127.0.0.1:5000"))
	require.NoError(t, err)
	return r
}

type idleService struct{}

func (idleService) Serve(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func startRPC(t *testing.T, r *node.PeerRegistry) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := crpc.NewServer(l)
	cfg := config.NewEmptyConfig("")
	_, err = node.New(cfg, r, nil, srv, idleService{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return l.Addr().String()
}

func exercise(t *testing.T, c PeerClient, r *node.PeerRegistry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := c.AddPeer(ctx, "192.168.1.137:5002")
	require.NoError(t, err)
	assert.Equal(t, "peer_added", res.Status)
	assert.Equal(t, "added", res.Result)
	assert.Equal(t, "http://192.168.1.137:5002", res.PeerAddress)

	res, err = c.AddPeer(ctx, "http://192.168.1.137:5002/")
	require.NoError(t, err)
	assert.Equal(t, "peer_added", res.Status)
	assert.Equal(t, "already_present", res.Result)

	_, err = c.AddPeer(ctx, "not-a-valid-address")
	assert.ErrorIs(t, err, node.ErrMalformedAddress)

	_, err = c.AddPeer(ctx, "http://127.0.0.1:5000")
	assert.ErrorIs(t, err, node.ErrSelfReference)

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "node1", st.NodeID)
	assert.Equal(t, []string{"http://192.168.1.137:5002"}, st.Peers)
	assert.Equal(t, 1, st.PeerCount)

	require.NoError(t, r.Close())
	_, err = c.Status(ctx)
	assert.ErrorIs(t, err, node.ErrUnavailable)
}

func TestHTTPClient(t *testing.T) {
	r := newRegistry(t)
	ts := httptest.NewServer(web.NewServer(nil, r).Handler())
	defer ts.Close()

	c, err := NewHTTPClient(ts.URL, 5*time.Second)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, ts.URL, c.Target())

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "node1", h.NodeID)

	exercise(t, c, r)
}

func TestHTTPClientBadTarget(t *testing.T) {
	_, err := NewHTTPClient("http://host/with/path", time.Second)
	assert.ErrorIs(t, err, node.ErrMalformedAddress)
}

func TestRPCClient(t *testing.T) {
	r := newRegistry(t)
	addr := startRPC(t, r)

	c, err := Dial(context.Background(), addr)
	require.NoError(t, err)
	defer c.Close()

	exercise(t, c, r)
}
