package node

import (
	"peermesh/datamodel/peer"
	"peermesh/swarm/protocol"
	"strings"
)

// AddPeerResponse builds the success response for an AddPeer call. Both Added and
// AlreadyPresent carry the peer_added marker: either way the peer is now known.
func AddPeerResponse(address string, result AddResult) protocol.AddPeerResponse {
	res := protocol.AddPeerResponse{
		Status: protocol.StatusPeerAdded,
		OK:     true,
		Result: result.String(),
	}
	if a, err := peer.ParseAddress(address); err == nil {
		res.PeerAddress = a.String()
	}
	return res
}

// markerReplacer keeps the success marker out of failure bodies. Error messages quote the
// caller's input, and callers detect success by the marker's presence.
var markerReplacer = strings.NewReplacer(protocol.StatusPeerAdded, "peer-added")

// ErrorResponse builds the failure response for err.
func ErrorResponse(err error) protocol.ErrorResponse {
	return protocol.ErrorResponse{
		Status:  protocol.StatusError,
		OK:      false,
		Error:   ErrorCode(err),
		Message: markerReplacer.Replace(err.Error()),
	}
}

func StatusResponse(st NodeStatus) protocol.StatusResponse {
	peers := make([]string, 0, len(st.Peers))
	for _, p := range st.Peers {
		peers = append(peers, p.String())
	}
	return protocol.StatusResponse{
		NodeID:    st.NodeID,
		Peers:     peers,
		PeerCount: len(peers),
		Running:   st.Running,
	}
}

// ErrorFromRPC turns a "<code>: <message>" server error back into a registry error.
func ErrorFromRPC(err error) error {
	if err == nil {
		return nil
	}
	code, msg, ok := strings.Cut(err.Error(), ": ")
	if !ok {
		return err
	}
	switch code {
	case "malformed_address", "self_reference", "internal_unavailable":
		return ErrorFromCode(code, msg)
	}
	return err
}
