// Package crpc implements a minimal RPC protocol over a stream connection.
// Every request is a CBOR RequestHeader followed by the CBOR-encoded argument; every
// response is a CBOR ResponseHeader followed, on success only, by the CBOR-encoded reply.
package crpc

type RequestHeader struct {
	Seq    uint64 `cbor:"1,keyasint,omitempty"`
	Method string `cbor:"2,keyasint,omitempty"` // "Service.Method"
}

type ResponseHeader struct {
	Seq uint64 `cbor:"1,keyasint,omitempty"`
	Err string `cbor:"2,keyasint,omitempty"`
}
