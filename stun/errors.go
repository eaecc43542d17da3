package stun

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrMalformedMessage reports a datagram that cannot be decoded as a valid
// STUN message. Inside a transaction a malformed datagram is discarded and
// the wait continues; the error never aborts a discovery run.
var ErrMalformedMessage = errors.New("malformed stun message")

// ProtocolError reports a server that answered the first binding request on
// its primary address but then violated the RFC 3489 contract. It is fatal
// to the discovery run.
type ProtocolError struct {
	Server string
	Probe  string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("stun server %s violated protocol on %s: %s", e.Server, e.Probe, e.Reason)
}
