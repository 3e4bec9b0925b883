package peer

import (
	"errors"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddressNormalizes(t *testing.T) {
	cases := map[string]string{
		"http://192.168.1.137:5002":  "http://192.168.1.137:5002",
		"192.168.1.137:5002":         "http://192.168.1.137:5002",
		"HTTPS://Node2.Example:5002": "http://node2.example:5002",
		"http://localhost:5000/":     "http://localhost:5000",
		"  http://10.0.0.1:80  ":     "http://10.0.0.1:80",
		"http://[::0001]:5001":       "http://[::1]:5001",
		"[2001:DB8::1]:7000":         "http://[2001:db8::1]:7000",
		"http://[::ffff:10.1.2.3]:9": "http://10.1.2.3:9",
		"http://10.0.0.1:05002":      "http://10.0.0.1:5002",
	}

	for in, want := range cases {
		got, err := ParseAddress(in)
		require.NoError(t, err, in)
		assert.Equal(t, Address(want), got, in)
	}
}

func TestParseAddressRejectsMalformed(t *testing.T) {
	inputs := []string{
		"",
		"not-a-valid-address",
		"http://192.168.1.137",
		"http://:5002",
		"http://host:0",
		"http://host:65536",
		"http://host:port",
		"ftp://host:21",
		"http://host:80/path",
		"http://host:80?x=1",
		"http://host:80#frag",
		"http://user@host:80",
		"mailto:someone@example.com",
	}

	for _, in := range inputs {
		_, err := ParseAddress(in)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, ErrMalformedAddress), "%q: %v", in, err)
	}
}

func TestAddressHostPort(t *testing.T) {
	a := MustParseAddress("http://192.168.1.193:5003")
	assert.Equal(t, "192.168.1.193:5003", a.HostPort())
}

func TestPeerCBOR(t *testing.T) {
	p := &Peer{Address: MustParseAddress("10.0.0.7:5001")}

	enc, err := cbor.Marshal(p)
	require.NoError(t, err)

	var p2 Peer
	require.NoError(t, cbor.Unmarshal(enc, &p2))
	assert.Equal(t, p.Address, p2.Address)
}
