package stun

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer() *Server {
	s := &Server{Host1: "198.51.100.1", Host2: "198.51.100.2", Port1: 3478, Port2: 3479}
	hosts := [2]net.IP{net.IPv4(198, 51, 100, 1), net.IPv4(198, 51, 100, 2)}
	ports := [2]int{3478, 3479}
	for ci := 0; ci < 2; ci++ {
		for pi := 0; pi < 2; pi++ {
			s.conns[ci][pi] = &net.UDPConn{}
			s.addrs[ci][pi] = &net.UDPAddr{IP: hosts[ci], Port: ports[pi]}
		}
	}
	return s
}

func TestBuildResponsePlainRequest(t *testing.T) {
	s := newTestServer()
	from := &net.UDPAddr{IP: net.IPv4(203, 0, 113, 7), Port: 4021}

	req := NewBindingRequest()
	resp, oci, opi := s.buildResponse(0, 0, req, from)

	assert.Equal(t, 0, oci)
	assert.Equal(t, 0, opi)
	assert.Equal(t, TypeBindingResponse, resp.Type)
	assert.Equal(t, req.TransactionID, resp.TransactionID)

	mapped, ok := resp.MappedAddress()
	require.True(t, ok)
	assert.True(t, mapped.Equal(Endpoint{IP: from.IP, Port: from.Port}))

	changed, ok := resp.ChangedAddress()
	require.True(t, ok)
	assert.True(t, changed.Equal(Endpoint{IP: net.IPv4(198, 51, 100, 2), Port: 3479}),
		"changed address is the other ip and the other port")
}

func TestBuildResponseHonorsChangeRequest(t *testing.T) {
	for _, tc := range []struct {
		changeIP   bool
		changePort bool
		wantCi     int
		wantPi     int
	}{
		{false, false, 0, 0},
		{true, false, 1, 0},
		{false, true, 0, 1},
		{true, true, 1, 1},
	} {
		s := newTestServer()
		req := NewBindingRequest()
		req.AddChangeRequest(tc.changeIP, tc.changePort)

		_, oci, opi := s.buildResponse(0, 0, req, &net.UDPAddr{IP: net.IPv4(203, 0, 113, 7), Port: 4021})
		assert.Equal(t, tc.wantCi, oci)
		assert.Equal(t, tc.wantPi, opi)
	}
}

func TestBuildResponseFallsBackWhenSocketUnbound(t *testing.T) {
	s := newTestServer()
	s.conns[1][0] = nil
	s.conns[1][1] = nil

	req := NewBindingRequest()
	req.AddChangeRequest(true, true)

	_, oci, opi := s.buildResponse(0, 0, req, &net.UDPAddr{IP: net.IPv4(203, 0, 113, 7), Port: 4021})
	assert.Equal(t, 0, oci)
	assert.Equal(t, 0, opi)
}

func TestBuildResponseBasicModeOmitsChangedAddress(t *testing.T) {
	s := &Server{Host1: "198.51.100.1", Port1: 3478, Basic: true}
	s.conns[0][0] = &net.UDPConn{}
	s.addrs[0][0] = &net.UDPAddr{IP: net.IPv4(198, 51, 100, 1), Port: 3478}

	resp, _, _ := s.buildResponse(0, 0, NewBindingRequest(), &net.UDPAddr{IP: net.IPv4(203, 0, 113, 7), Port: 4021})
	_, ok := resp.ChangedAddress()
	assert.False(t, ok)
}

func TestClientServerLoopback(t *testing.T) {
	srv := &Server{Host1: "127.0.0.1", Port1: 0, Port2: 0}
	require.NoError(t, srv.Listen())
	defer srv.Stop()
	go srv.Serve()

	cln := &Client{
		ServerHost: "127.0.0.1",
		ServerPort: srv.addrs[0][0].Port,
		LocalAddr:  "127.0.0.1:0",
		Timeout:    time.Second,
	}

	res, err := cln.Discover()
	require.NoError(t, err)
	assert.Equal(t, NatOpenInternet, res.NatType, "loopback has no NAT and the server answers change requests")
	assert.Equal(t, "127.0.0.1", res.MappedHost)
	assert.Equal(t, res.LocalPort, res.MappedPort)
}
