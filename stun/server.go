package stun

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Server is an RFC 3489 Binding test server. A full deployment listens on
// two IPs and two ports so clients can exercise CHANGE-REQUEST probes; a
// single-homed server (Host2 empty or equal to Host1) still answers
// change-port probes, and Basic mode serves a single socket with no
// alternate address at all.
type Server struct {
	Host1  string
	Host2  string
	Port1  int
	Port2  int
	Basic bool
	conns [2][2]*net.UDPConn
	addrs [2][2]*net.UDPAddr
	uniq  []socketRef
}

type socketRef struct {
	ci   int
	pi   int
	conn *net.UDPConn
}

func (s *Server) Check() {
	if s.Host1 == "" {
		log.Fatal("Host1 is empty")
	}
	if s.Port1 == 0 {
		log.Fatal("Port1 is empty")
	}

	if !s.Basic {
		if s.Host2 == "" && s.Port2 == 0 {
			log.Fatal("Host2 and Port2 are empty")
		}
		if s.Port2 == 0 {
			log.Fatal("Port2 is empty")
		}
	}
}

// Listen binds the sockets. Aliased positions (second IP on a single-homed
// server) share the underlying socket so CHANGE-REQUEST flags still pick a
// live responder.
func (s *Server) Listen() error {
	hosts := [2]string{s.Host1, s.Host2}
	ports := [2]int{s.Port1, s.Port2}
	singleHomed := s.Host2 == "" || s.Host2 == s.Host1

	for ci := 0; ci < 2; ci++ {
		for pi := 0; pi < 2; pi++ {
			if s.Basic && (ci > 0 || pi > 0) {
				continue
			}
			if ci == 1 && singleHomed {
				s.conns[ci][pi] = s.conns[0][pi]
				s.addrs[ci][pi] = s.addrs[0][pi]
				continue
			}
			laddr := net.JoinHostPort(hosts[ci], strconv.Itoa(ports[pi]))
			conn, err := ListenUdp(context.Background(), laddr)
			if err != nil {
				s.Stop()
				return err
			}
			s.conns[ci][pi] = conn
			s.addrs[ci][pi] = conn.LocalAddr().(*net.UDPAddr)
			s.uniq = append(s.uniq, socketRef{ci: ci, pi: pi, conn: conn})
			log.Infof("listening on %s", conn.LocalAddr())
		}
	}
	return nil
}

// Serve reads datagrams on every bound socket until Stop.
func (s *Server) Serve() {
	var wg sync.WaitGroup
	for _, ref := range s.uniq {
		wg.Add(1)
		go func(ref socketRef) {
			defer wg.Done()
			s.serveLoop(ref.ci, ref.pi, ref.conn)
		}(ref)
	}
	wg.Wait()
}

func (s *Server) Start() {
	if err := s.Listen(); err != nil {
		log.Fatal(err)
	}
	s.Serve()
}

// Stop closes the sockets, which unblocks every serve loop.
func (s *Server) Stop() {
	for _, ref := range s.uniq {
		ref.conn.Close()
	}
}

func (s *Server) serveLoop(ci, pi int, conn *net.UDPConn) {
	buf := make([]byte, 2048)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			log.WithFields(log.Fields{
				"localAddr": conn.LocalAddr(),
				"error":     err,
			}).Debug("read failed, stopping")
			return
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		s.handlePacket(ci, pi, pkt, from)
	}
}

func (s *Server) handlePacket(ci, pi int, pkt []byte, from *net.UDPAddr) {
	req, err := Unmarshal(pkt)
	if err != nil {
		log.WithFields(log.Fields{
			"from":  from,
			"error": err,
		}).Debug("drop undecodable datagram")
		return
	}

	if req.Type != TypeBindingRequest {
		log.WithFields(log.Fields{
			"from": from,
			"type": fmt.Sprintf("0x%04x", req.Type),
		}).Debug("drop non-binding message")
		return
	}

	resp, oci, opi := s.buildResponse(ci, pi, req, from)
	out := s.conns[oci][opi]

	if _, err := out.WriteToUDP(resp.Marshal(), from); err != nil {
		log.WithFields(log.Fields{
			"client": from,
			"error":  err,
		}).Error("send binding response failed")
		return
	}
	log.WithFields(log.Fields{
		"client": from,
		"from":   out.LocalAddr(),
	}).Info("send binding response success")
}

// buildResponse assembles the Binding response for a request that arrived
// on socket (ci, pi) and picks the responding socket per the request's
// CHANGE-REQUEST flags. Flags pointing at an unbound socket fall back to
// the receiving one.
func (s *Server) buildResponse(ci, pi int, req *Message, from *net.UDPAddr) (resp *Message, oci, opi int) {
	oci, opi = ci, pi
	changeIP, changePort := req.ChangeRequest()
	if changeIP {
		oci ^= 1
	}
	if changePort {
		opi ^= 1
	}
	if s.conns[oci][opi] == nil {
		oci, opi = ci, pi
	}

	resp = &Message{
		Type:          TypeBindingResponse,
		TransactionID: req.TransactionID,
	}
	resp.AddAddress(AttrMappedAddress, Endpoint{IP: from.IP, Port: from.Port})
	if src := s.addrs[oci][opi]; src != nil {
		resp.AddAddress(AttrSourceAddress, Endpoint{IP: src.IP, Port: src.Port})
	}
	if alt := s.addrs[ci^1][pi^1]; alt != nil {
		resp.AddAddress(AttrChangedAddress, Endpoint{IP: alt.IP, Port: alt.Port})
	}
	return resp, oci, opi
}
