package stun

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
)

// Transport is the datagram surface a discovery run probes through. A run
// assumes exclusive ownership of its transport; closing it unblocks an
// in-flight Receive with a transport error.
type Transport interface {
	LocalAddr() *net.UDPAddr
	SendTo(p []byte, raddr *net.UDPAddr) error
	// Receive blocks until a datagram arrives or timeout elapses. Timeout
	// is reported as a net.Error with Timeout() true, distinct from hard
	// socket failures.
	Receive(timeout time.Duration) ([]byte, error)
	Close() error
}

type udpTransport struct {
	conn *net.UDPConn
	buf  []byte
}

// BindUdp opens the UDP socket a discovery run probes through. laddr may be
// "ip:port" with port 0 for an ephemeral port.
func BindUdp(ctx context.Context, laddr string) (Transport, error) {
	conn, err := ListenUdp(ctx, laddr)
	if err != nil {
		return nil, errors.Wrapf(err, "bind udp socket on %s", laddr)
	}
	return &udpTransport{
		conn: conn,
		buf:  make([]byte, 2048),
	}, nil
}

func (t *udpTransport) LocalAddr() *net.UDPAddr {
	return t.conn.LocalAddr().(*net.UDPAddr)
}

func (t *udpTransport) SendTo(p []byte, raddr *net.UDPAddr) error {
	_, err := t.conn.WriteToUDP(p, raddr)
	return errors.Wrapf(err, "send to %s", raddr)
}

func (t *udpTransport) Receive(timeout time.Duration) ([]byte, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, errors.Wrap(err, "set read deadline")
	}
	n, _, err := t.conn.ReadFromUDP(t.buf)
	if err != nil {
		return nil, err
	}
	p := make([]byte, n)
	copy(p, t.buf[:n])
	return p, nil
}

func (t *udpTransport) Close() error {
	return t.conn.Close()
}
