package crpc

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type EchoArgs struct {
	Text  string `cbor:"1,keyasint,omitempty"`
	Delay time.Duration
}

type EchoReply struct {
	Text string `cbor:"1,keyasint,omitempty"`
}

type Echo struct{}

func (e *Echo) Say(args *EchoArgs, reply *EchoReply) error {
	time.Sleep(args.Delay)
	reply.Text = args.Text
	return nil
}

func (e *Echo) Fail(args *EchoArgs, reply *EchoReply) error {
	return errors.New("nope: " + args.Text)
}

func (e *Echo) Panic(args EchoArgs, reply *EchoReply) error {
	panic("boom")
}

func startServer(t *testing.T) (string, context.CancelFunc) {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(l)
	require.NoError(t, srv.Register(&Echo{}))
	require.NoError(t, srv.RegisterName("Alias", &Echo{}))
	require.Error(t, srv.Register(&Echo{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	return l.Addr().String(), cancel
}

func TestCallRoundTrip(t *testing.T) {
	addr, _ := startServer(t)

	c, err := Dial("tcp", addr)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()

	var reply EchoReply
	require.NoError(t, c.Call(ctx, "Echo.Say", &EchoArgs{Text: "hello"}, &reply))
	assert.Equal(t, "hello", reply.Text)

	require.NoError(t, c.Call(ctx, "Alias.Say", &EchoArgs{Text: "again"}, &reply))
	assert.Equal(t, "again", reply.Text)

	err = c.Call(ctx, "Echo.Fail", &EchoArgs{Text: "x"}, &reply)
	var se ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "nope: x", se.Error())

	err = c.Call(ctx, "Echo.Panic", EchoArgs{}, &reply)
	require.ErrorAs(t, err, &se)

	// The connection survives handler errors and panics
	require.NoError(t, c.Call(ctx, "Echo.Say", &EchoArgs{Text: "still here"}, &reply))
	assert.Equal(t, "still here", reply.Text)
}

func TestConcurrentCalls(t *testing.T) {
	addr, _ := startServer(t)

	c, err := Dial("tcp", addr)
	require.NoError(t, err)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			text := string(rune('a' + i%26))
			var reply EchoReply
			if assert.NoError(t, c.Call(context.Background(), "Echo.Say", &EchoArgs{Text: text}, &reply)) {
				assert.Equal(t, text, reply.Text)
			}
		}(i)
	}
	wg.Wait()
}

func TestUnknownMethod(t *testing.T) {
	addr, _ := startServer(t)

	c, err := Dial("tcp", addr)
	require.NoError(t, err)
	defer c.Close()

	var reply EchoReply
	err = c.Call(context.Background(), "Echo.Missing", &EchoArgs{}, &reply)
	var se ServerError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Error(), "Echo.Missing")
}

func TestCallContextCancelled(t *testing.T) {
	addr, _ := startServer(t)

	c, err := Dial("tcp", addr)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var reply EchoReply
	err = c.Call(ctx, "Echo.Say", &EchoArgs{Text: "slow", Delay: 200 * time.Millisecond}, &reply)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientClose(t *testing.T) {
	addr, _ := startServer(t)

	c, err := Dial("tcp", addr)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Close(), ErrShutdown)

	var reply EchoReply
	err = c.Call(context.Background(), "Echo.Say", &EchoArgs{Text: "x"}, &reply)
	assert.ErrorIs(t, err, ErrShutdown)
}
