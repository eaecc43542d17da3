package stun

import (
	"errors"
	"net"
	"time"
)

// errNoResponse marks a probe that stayed silent for its whole timeout. It
// never escapes the package: the classifier maps it onto the no-response
// branches of the decision tree.
var errNoResponse = errors.New("no response within timeout")

// Execute sends req to raddr over t and waits for the response carrying the
// same transaction ID. It returns (nil, nil) when no matching response
// arrived within timeout: absence of a response is protocol information,
// not a failure. Hard transport errors propagate.
//
// Datagrams that fail to decode, carry a foreign transaction ID, are not
// Binding responses, or lack a MAPPED-ADDRESS are discarded and the wait
// continues against the original deadline. The classifier can therefore
// rely on every returned message carrying a mapped address.
func Execute(t Transport, req *Message, raddr *net.UDPAddr, timeout time.Duration) (*Message, error) {
	if err := t.SendTo(req.Marshal(), raddr); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	for {
		remain := time.Until(deadline)
		if remain <= 0 {
			return nil, nil
		}

		p, err := t.Receive(remain)
		if err != nil {
			if isTimeout(err) {
				return nil, nil
			}
			return nil, err
		}

		resp, err := Unmarshal(p)
		if err != nil {
			continue
		}
		if resp.TransactionID != req.TransactionID {
			continue
		}
		if resp.Type != TypeBindingResponse {
			continue
		}
		if _, ok := resp.MappedAddress(); !ok {
			continue
		}
		return resp, nil
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
