package protocol

const (
	StatusPeerAdded = "peer_added" // Marker checked by bootstrap scripts
	StatusError     = "error"
	StatusOK        = "ok"
)

type AddPeerRequest struct {
	PeerAddress string `json:"peer_address" cbor:"1,keyasint,omitempty"` // Address to add, any accepted spelling
}

type AddPeerResponse struct {
	Status      string `json:"status" cbor:"1,keyasint,omitempty"`                 // StatusPeerAdded or StatusError
	OK          bool   `json:"ok" cbor:"2,keyasint,omitempty"`                     // Typed success flag
	Result      string `json:"result,omitempty" cbor:"3,keyasint,omitempty"`       // "added" or "already_present"
	PeerAddress string `json:"peer_address,omitempty" cbor:"4,keyasint,omitempty"` // Normalized address
	Error       string `json:"error,omitempty" cbor:"5,keyasint,omitempty"`        // Error code
	Message     string `json:"message,omitempty" cbor:"6,keyasint,omitempty"`      // Human readable error
}

type StatusRequest struct{}

type StatusResponse struct {
	NodeID    string   `json:"node_id" cbor:"1,keyasint,omitempty"`
	Peers     []string `json:"peers" cbor:"2,keyasint"`
	PeerCount int      `json:"peer_count" cbor:"3,keyasint"`
	Running   bool     `json:"running" cbor:"4,keyasint"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
	NodeID string `json:"node_id"`
}
