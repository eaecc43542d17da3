package stun

import (
	"encoding/binary"
	"net"

	"github.com/pkg/errors"
)

// Message is one STUN wire message: a 20-byte header followed by TLV
// encoded attributes.
//
//	0                   1                   2                   3
//	0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|      STUN Message Type        |         Message Length        |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                         Transaction ID (128 bit)
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
type Message struct {
	Type          uint16
	TransactionID TransactionID
	Attributes    []Attribute
}

// Attribute is a single TLV attribute. Value holds the raw attribute bytes;
// typed accessors on Message decode the ones this package interprets.
type Attribute struct {
	Type  uint16
	Value []byte
}

// NewBindingRequest returns a Binding request with a fresh transaction ID
// and no attributes.
func NewBindingRequest() *Message {
	return &Message{
		Type:          TypeBindingRequest,
		TransactionID: NewTransactionID(),
	}
}

// AddChangeRequest appends a CHANGE-REQUEST attribute asking the server to
// answer from its alternate IP and/or port.
func (m *Message) AddChangeRequest(changeIP, changePort bool) {
	var flags uint32
	if changeIP {
		flags |= changeIPFlag
	}
	if changePort {
		flags |= changePortFlag
	}
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, flags)
	m.Attributes = append(m.Attributes, Attribute{Type: AttrChangeRequest, Value: v})
}

// AddAddress appends an address attribute of the given type. Only IPv4
// endpoints can be carried on the wire.
func (m *Message) AddAddress(typ uint16, ep Endpoint) error {
	ip4 := ep.IP.To4()
	if ip4 == nil {
		return errors.Errorf("address attribute 0x%04x: not an ipv4 address: %s", typ, ep.IP)
	}
	v := make([]byte, addressValLen)
	v[1] = familyIPv4
	binary.BigEndian.PutUint16(v[2:4], uint16(ep.Port))
	copy(v[4:8], ip4)
	m.Attributes = append(m.Attributes, Attribute{Type: typ, Value: v})
	return nil
}

// Marshal serializes the message: 2-byte type, 2-byte attribute-section
// length, 16-byte transaction ID, then each attribute in order as 2-byte
// type, 2-byte value length, value bytes. Big-endian throughout.
func (m *Message) Marshal() []byte {
	attrLen := 0
	for _, a := range m.Attributes {
		attrLen += 4 + len(a.Value)
	}

	buf := make([]byte, headerLen+attrLen)
	binary.BigEndian.PutUint16(buf[0:2], m.Type)
	binary.BigEndian.PutUint16(buf[2:4], uint16(attrLen))
	copy(buf[4:20], m.TransactionID[:])

	off := headerLen
	for _, a := range m.Attributes {
		binary.BigEndian.PutUint16(buf[off:off+2], a.Type)
		binary.BigEndian.PutUint16(buf[off+2:off+4], uint16(len(a.Value)))
		copy(buf[off+4:], a.Value)
		off += 4 + len(a.Value)
	}

	return buf
}

// Unmarshal parses a raw datagram into a Message. Attributes this package
// does not interpret are kept raw and skipped over; address attributes are
// validated here so a bad family or truncated value fails the whole decode
// instead of being misread later.
func Unmarshal(p []byte) (*Message, error) {
	if len(p) < headerLen {
		return nil, errors.Wrapf(ErrMalformedMessage, "short packet: %d bytes", len(p))
	}

	m := &Message{Type: binary.BigEndian.Uint16(p[0:2])}
	attrLen := int(binary.BigEndian.Uint16(p[2:4]))
	copy(m.TransactionID[:], p[4:20])

	if headerLen+attrLen > len(p) {
		return nil, errors.Wrapf(ErrMalformedMessage, "attribute section %d bytes, packet has %d", attrLen, len(p)-headerLen)
	}

	b := p[headerLen : headerLen+attrLen]
	for len(b) > 0 {
		if len(b) < 4 {
			return nil, errors.Wrap(ErrMalformedMessage, "truncated attribute header")
		}
		typ := binary.BigEndian.Uint16(b[0:2])
		vlen := int(binary.BigEndian.Uint16(b[2:4]))
		b = b[4:]
		if vlen > len(b) {
			return nil, errors.Wrapf(ErrMalformedMessage, "attribute 0x%04x: value %d bytes, %d remain", typ, vlen, len(b))
		}

		v := make([]byte, vlen)
		copy(v, b[:vlen])
		b = b[vlen:]

		if typ == AttrMappedAddress || typ == AttrChangedAddress {
			if _, err := parseAddress(v); err != nil {
				return nil, errors.Wrapf(err, "attribute 0x%04x", typ)
			}
		}
		m.Attributes = append(m.Attributes, Attribute{Type: typ, Value: v})
	}

	return m, nil
}

func parseAddress(v []byte) (Endpoint, error) {
	if len(v) != addressValLen {
		return Endpoint{}, errors.Wrapf(ErrMalformedMessage, "address value %d bytes", len(v))
	}
	if v[1] != familyIPv4 {
		return Endpoint{}, errors.Wrapf(ErrMalformedMessage, "unsupported address family 0x%02x", v[1])
	}
	return Endpoint{
		IP:   net.IPv4(v[4], v[5], v[6], v[7]),
		Port: int(binary.BigEndian.Uint16(v[2:4])),
	}, nil
}

func (m *Message) attr(typ uint16) (Attribute, bool) {
	for _, a := range m.Attributes {
		if a.Type == typ {
			return a, true
		}
	}
	return Attribute{}, false
}

func (m *Message) address(typ uint16) (Endpoint, bool) {
	a, ok := m.attr(typ)
	if !ok {
		return Endpoint{}, false
	}
	ep, err := parseAddress(a.Value)
	if err != nil {
		return Endpoint{}, false
	}
	return ep, true
}

// MappedAddress returns the MAPPED-ADDRESS attribute, the sender's address
// as observed by the server.
func (m *Message) MappedAddress() (Endpoint, bool) {
	return m.address(AttrMappedAddress)
}

// ChangedAddress returns the CHANGED-ADDRESS attribute, the server's
// alternate address and port.
func (m *Message) ChangedAddress() (Endpoint, bool) {
	return m.address(AttrChangedAddress)
}

// ChangeRequest returns the flags of a CHANGE-REQUEST attribute, or false
// flags when the attribute is absent or malformed.
func (m *Message) ChangeRequest() (changeIP, changePort bool) {
	a, ok := m.attr(AttrChangeRequest)
	if !ok || len(a.Value) != 4 {
		return false, false
	}
	flags := binary.BigEndian.Uint32(a.Value)
	return flags&changeIPFlag != 0, flags&changePortFlag != 0
}
