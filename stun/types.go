package stun

import (
	"net"
	"strconv"

	"github.com/google/uuid"
)

// TransactionID is the 128-bit identifier correlating a response to its
// request.
type TransactionID [16]byte

// NewTransactionID returns a fresh random transaction ID.
func NewTransactionID() TransactionID {
	return TransactionID(uuid.New())
}

// Endpoint is an IPv4 transport address as carried in STUN address
// attributes.
type Endpoint struct {
	IP   net.IP
	Port int
}

func (e Endpoint) Equal(o Endpoint) bool {
	return e.Port == o.Port && e.IP.Equal(o.IP)
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.IP.String(), strconv.Itoa(e.Port))
}

func (e Endpoint) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: e.IP, Port: e.Port}
}
