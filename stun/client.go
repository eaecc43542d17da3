package stun

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Client struct {
	ServerHost string        // stun server host
	ServerPort int           // stun server port
	LocalAddr  string        // local address to bind, ip or ip:port
	Timeout    time.Duration // per-probe response timeout
	Retries    int           // extra attempts per probe after a silent timeout
	Debug      bool
	log        *logrus.Logger
}

// NatResult is the final output of a discovery run. MappedHost is empty
// when no public endpoint could be discovered (UDP blocked).
type NatResult struct {
	NatType    NatType
	MappedHost string
	MappedPort int
	LocalHost  string
	LocalPort  int
}

func NewClient(saddr, laddr string, timeout time.Duration) (*Client, error) {
	host, portStr, err := net.SplitHostPort(saddr)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}

	c := &Client{
		ServerHost: host,
		ServerPort: port,
		LocalAddr:  laddr,
		Timeout:    timeout,
	}
	if err := c.Init(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Client) Init() error {
	if c.ServerHost == "" {
		return fmt.Errorf("ServerHost is empty")
	}

	if c.ServerPort == 0 {
		c.ServerPort = 3478
	}

	if c.Timeout == 0 {
		c.Timeout = 3 * time.Second
	}

	if c.LocalAddr == "" || strings.HasPrefix(c.LocalAddr, ":") {
		ip, err := GetOutboundIP()
		if err != nil {
			return err
		}
		c.LocalAddr = ip + c.LocalAddr
	}

	if !strings.Contains(c.LocalAddr, ":") {
		c.LocalAddr += ":0"
	}

	if c.Debug {
		c.log = logrus.New()
		c.log.SetFormatter(&logrus.TextFormatter{
			DisableColors:   false,
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
		c.log.SetLevel(logrus.DebugLevel)
	}

	return nil
}

// Query runs a full discovery against host:port with default settings and
// returns the NAT classification plus the discovered public endpoint.
func Query(host string, port int) (*NatResult, error) {
	c, err := NewClient(net.JoinHostPort(host, strconv.Itoa(port)), "", 0)
	if err != nil {
		return nil, err
	}
	return c.Discover()
}

// Discover opens one UDP socket, runs the RFC 3489 probe sequence through
// it and classifies the NAT. It fails only when the socket cannot be bound,
// a send or receive fails at the OS level, or the server violates the
// protocol contract; silent servers classify as UDP blocked.
func (c *Client) Discover() (*NatResult, error) {
	t, err := BindUdp(context.Background(), c.LocalAddr)
	if err != nil {
		return nil, err
	}
	defer t.Close()

	if c.log != nil {
		c.log.WithFields(logrus.Fields{
			"localAddr": t.LocalAddr(),
		}).Debug("bind success")
	}

	return c.query(t)
}

func (c *Client) query(t Transport) (*NatResult, error) {
	saddr := net.JoinHostPort(c.ServerHost, strconv.Itoa(c.ServerPort))
	server, err := net.ResolveUDPAddr("udp4", saddr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve stun server %s", saddr)
	}

	local := t.LocalAddr()
	result := &NatResult{
		LocalHost: local.IP.String(),
		LocalPort: local.Port,
	}

	// Test I: plain binding request against the primary address.
	resp, err := c.probe(t, "test I", server, nil)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		result.NatType = NatUdpBlocked
		c.logResult(result)
		return result, nil
	}

	mapped, _ := resp.MappedAddress()
	changed, hasChanged := resp.ChangedAddress()
	result.MappedHost = mapped.IP.String()
	result.MappedPort = mapped.Port

	// Test II: ask the server to answer from its alternate IP and port.
	resp2, err := c.probe(t, "test II", server, func(m *Message) {
		m.AddChangeRequest(true, true)
	})
	if err != nil {
		return nil, err
	}

	localEP := Endpoint{IP: local.IP, Port: local.Port}
	if localEP.Equal(mapped) {
		// No address rewriting on the path.
		if resp2 != nil {
			result.NatType = NatOpenInternet
		} else {
			result.NatType = NatSymmetricUdpFirewall
		}
		c.logResult(result)
		return result, nil
	}

	if resp2 != nil {
		result.NatType = NatFullCone
		c.logResult(result)
		return result, nil
	}

	if !hasChanged {
		return nil, &ProtocolError{
			Server: saddr,
			Probe:  "test I",
			Reason: "response carried no changed-address",
		}
	}

	// Test I again, now against the server's alternate address.
	resp3, err := c.probe(t, "test I (changed address)", changed.UDPAddr(), nil)
	if err != nil {
		return nil, err
	}
	if resp3 == nil {
		return nil, &ProtocolError{
			Server: saddr,
			Probe:  "test I (changed address)",
			Reason: "no answer on alternate address " + changed.String(),
		}
	}

	mapped2, _ := resp3.MappedAddress()
	if !mapped2.Equal(mapped) {
		result.NatType = NatSymmetric
		c.logResult(result)
		return result, nil
	}

	// Test III: port change only, against the alternate address.
	resp4, err := c.probe(t, "test III", changed.UDPAddr(), func(m *Message) {
		m.AddChangeRequest(false, true)
	})
	if err != nil {
		return nil, err
	}
	if resp4 != nil {
		result.NatType = NatRestricted
	} else {
		result.NatType = NatPortRestricted
	}
	c.logResult(result)
	return result, nil
}

// probe runs one transaction, re-sending with a fresh attempt after silent
// timeouts up to c.Retries extra times. Exhausted retries still come back
// as a plain no-response, never an error.
func (c *Client) probe(t Transport, name string, raddr *net.UDPAddr, build func(*Message)) (*Message, error) {
	req := NewBindingRequest()
	if build != nil {
		build(req)
	}

	if c.log != nil {
		c.log.WithFields(logrus.Fields{
			"probe": name,
			"raddr": raddr,
			"tid":   fmt.Sprintf("%x", req.TransactionID),
		}).Debug("probe sent")
	}

	var resp *Message
	op := func() error {
		r, err := Execute(t, req, raddr, c.Timeout)
		if err != nil {
			return backoff.Permanent(err)
		}
		if r == nil {
			return errNoResponse
		}
		resp = r
		return nil
	}

	retries := c.Retries
	if retries < 0 {
		retries = 0
	}
	err := backoff.Retry(op, backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(retries)))
	if err != nil {
		if err == errNoResponse {
			if c.log != nil {
				c.log.WithFields(logrus.Fields{
					"probe": name,
					"raddr": raddr,
				}).Debug("probe timed out")
			}
			return nil, nil
		}
		return nil, errors.Wrapf(err, "%s against %s", name, raddr)
	}

	if c.log != nil {
		mapped, _ := resp.MappedAddress()
		c.log.WithFields(logrus.Fields{
			"probe":  name,
			"mapped": mapped,
		}).Debug("probe answered")
	}
	return resp, nil
}

func (c *Client) logResult(r *NatResult) {
	if c.log == nil {
		return
	}
	c.log.WithFields(logrus.Fields{
		"natType":    r.NatType,
		"mappedHost": r.MappedHost,
		"mappedPort": r.MappedPort,
	}).Debug("classification done")
}

func (r *NatResult) Print() {
	fmt.Println("NAT Type:", r.NatType)
	fmt.Println("Local IP:", r.LocalHost)
	fmt.Println("Local Port:", r.LocalPort)
	if r.MappedHost != "" {
		fmt.Println("External IP:", r.MappedHost)
		fmt.Println("External Port:", r.MappedPort)
	}
}
