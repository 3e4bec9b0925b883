package crpc

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/fxamacker/cbor/v2"

	log "github.com/sirupsen/logrus"
)

// ServerError is an error string returned by the remote handler.
type ServerError string

func (e ServerError) Error() string {
	return string(e)
}

var ErrShutdown = errors.New("connection is shut down")

// Call represents an active RPC.
type Call struct {
	ServiceMethod string     // The name of the service and method to call.
	Args          any        // The argument to the function (*struct).
	Reply         any        // The reply from the function (*struct).
	Error         error      // After completion, the error status.
	Done          chan *Call // Receives *Call when Go is complete.
}

type Client struct {
	conn io.ReadWriteCloser

	sending sync.Mutex // serializes request encoding
	enc     *cbor.Encoder

	mutex    sync.Mutex // protects following fields
	seq      uint64
	pending  map[uint64]*Call
	closing  bool // user has called Close
	shutdown bool // input loop has exited
}

func NewClient(conn io.ReadWriteCloser) *Client {
	client := &Client{
		conn:    conn,
		enc:     cbor.NewEncoder(conn),
		pending: make(map[uint64]*Call),
	}
	go client.input()
	return client
}

// Dial connects to an RPC server at the specified network address.
func Dial(network, address string) (*Client, error) {
	conn, err := net.Dial(network, address)
	if err != nil {
		return nil, err
	}
	return NewClient(conn), nil
}

// DialContext is Dial bounded by ctx.
func DialContext(ctx context.Context, network, address string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return NewClient(conn), nil
}

func (call *Call) done() {
	select {
	case call.Done <- call:
	default:
		// Done must be buffered, see Go()
		log.Debugf("crpc: discarding Call reply due to insufficient Done chan capacity")
	}
}

// send registers and encodes call. It reports false if the call was never registered.
func (client *Client) send(call *Call) (uint64, bool) {
	client.mutex.Lock()
	if client.closing || client.shutdown {
		client.mutex.Unlock()
		call.Error = ErrShutdown
		call.done()
		return 0, false
	}
	seq := client.seq
	client.seq++
	client.pending[seq] = call
	client.mutex.Unlock()

	client.sending.Lock()
	err := client.enc.Encode(&RequestHeader{Seq: seq, Method: call.ServiceMethod})
	if err == nil {
		err = client.enc.Encode(call.Args)
	}
	client.sending.Unlock()

	if err != nil {
		if c := client.forget(seq); c != nil {
			c.Error = err
			c.done()
		}
	}
	return seq, true
}

// forget removes a pending call and returns it, or nil if it already completed.
func (client *Client) forget(seq uint64) *Call {
	client.mutex.Lock()
	defer client.mutex.Unlock()
	call := client.pending[seq]
	delete(client.pending, seq)
	return call
}

func (client *Client) input() {
	var err error

	dec := cbor.NewDecoder(client.conn)
	for err == nil {
		var response ResponseHeader
		if err = dec.Decode(&response); err != nil {
			break
		}

		call := client.forget(response.Seq)

		switch {
		case call == nil:
			// Abandoned call (send failure or cancelled context). Drain the body if there is one.
			if response.Err == "" {
				var discard cbor.RawMessage
				err = dec.Decode(&discard)
			}
			log.Debugf("crpc: discarded reply for unknown sequence %d", response.Seq)

		case response.Err != "":
			call.Error = ServerError(response.Err)
			call.done()

		default:
			if derr := dec.Decode(call.Reply); derr != nil {
				call.Error = derr
				err = derr
			}
			call.done()
		}
	}

	client.mutex.Lock()
	defer client.mutex.Unlock()

	client.shutdown = true
	closed := client.closing || err == io.EOF || errors.Is(err, net.ErrClosed)
	if closed {
		log.Debugf("crpc: client connection closed: %v", err)
		err = ErrShutdown
	} else {
		log.Warnf("crpc: client input loop error: %v", err)
	}

	for _, call := range client.pending {
		call.Error = err
		call.done()
	}
	client.pending = make(map[uint64]*Call)
}

// Go invokes the function asynchronously. The done channel, if non-nil, must be buffered.
func (client *Client) Go(serviceMethod string, args any, reply any, done chan *Call) *Call {
	call, _, _ := client.goSeq(serviceMethod, args, reply, done)
	return call
}

func (client *Client) goSeq(serviceMethod string, args any, reply any, done chan *Call) (*Call, uint64, bool) {
	if done == nil {
		done = make(chan *Call, 1)
	}
	call := &Call{
		ServiceMethod: serviceMethod,
		Args:          args,
		Reply:         reply,
		Done:          done,
	}
	seq, ok := client.send(call)
	return call, seq, ok
}

// Call invokes the named function and waits for it to complete or for ctx to be done.
func (client *Client) Call(ctx context.Context, serviceMethod string, args any, reply any) error {
	call, seq, registered := client.goSeq(serviceMethod, args, reply, make(chan *Call, 1))
	select {
	case <-ctx.Done():
		if registered {
			client.forget(seq)
		}
		return ctx.Err()
	case resp := <-call.Done:
		return resp.Error
	}
}

// Close closes the connection. Pending calls fail with ErrShutdown.
func (client *Client) Close() error {
	client.mutex.Lock()
	if client.closing {
		client.mutex.Unlock()
		return ErrShutdown
	}
	client.closing = true
	client.mutex.Unlock()
	return client.conn.Close()
}
