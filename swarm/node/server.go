package node

import (
	"peermesh/swarm/protocol"

	log "github.com/sirupsen/logrus"
)

// RpcServiceName is the name under which Server is registered on the RPC server.
const RpcServiceName = "PeerService"

// Server exposes the registry over CBOR RPC. Registry errors are returned as
// "<code>: <message>" strings, see ErrorFromRPC.
type Server struct {
	node *Node
}

// RPC: AddPeer
func (s *Server) AddPeer(req *protocol.AddPeerRequest, res *protocol.AddPeerResponse) error {
	log.Debugf("Server.AddPeer %q", req.PeerAddress)

	result, err := s.node.Registry.AddPeer(req.PeerAddress)
	if err != nil {
		log.Warnf("Server.AddPeer %q: %v", req.PeerAddress, err)
		return rpcError(err)
	}

	*res = AddPeerResponse(req.PeerAddress, result)
	return nil
}

// RPC: Status
func (s *Server) Status(req *protocol.StatusRequest, res *protocol.StatusResponse) error {
	st, err := s.node.Registry.Status()
	if err != nil {
		return rpcError(err)
	}
	*res = StatusResponse(st)
	return nil
}

type wireError struct {
	code string
	err  error
}

func (e *wireError) Error() string {
	return e.code + ": " + e.err.Error()
}

func rpcError(err error) error {
	return &wireError{code: ErrorCode(err), err: err}
}
