package stun

const Version = "1.0.0"

// NatType is the NAT classification produced by a discovery run, per the
// RFC 3489 decision tree.
type NatType int

const (
	NatUnknown NatType = iota
	NatOpenInternet
	NatFullCone
	NatRestricted
	NatPortRestricted
	NatSymmetric
	NatSymmetricUdpFirewall
	NatUdpBlocked
)

var natTypeNames = map[NatType]string{
	NatUnknown:              "Unknown",
	NatOpenInternet:         "Open Internet",
	NatFullCone:             "Full Cone",
	NatRestricted:           "Restricted Cone",
	NatPortRestricted:       "Port Restricted Cone",
	NatSymmetric:            "Symmetric NAT",
	NatSymmetricUdpFirewall: "Symmetric UDP Firewall",
	NatUdpBlocked:           "UDP Blocked",
}

func (t NatType) String() string {
	if s, ok := natTypeNames[t]; ok {
		return s
	}
	return "Unknown"
}

// Message types, RFC 3489 section 11.1.
const (
	TypeBindingRequest            uint16 = 0x0001
	TypeBindingResponse           uint16 = 0x0101
	TypeBindingErrorResponse      uint16 = 0x0111
	TypeSharedSecretRequest       uint16 = 0x0002
	TypeSharedSecretResponse      uint16 = 0x0102
	TypeSharedSecretErrorResponse uint16 = 0x0112
)

// Attribute types, RFC 3489 section 11.2.
const (
	AttrMappedAddress     uint16 = 0x0001
	AttrResponseAddress   uint16 = 0x0002
	AttrChangeRequest     uint16 = 0x0003
	AttrSourceAddress     uint16 = 0x0004
	AttrChangedAddress    uint16 = 0x0005
	AttrUsername          uint16 = 0x0006
	AttrPassword          uint16 = 0x0007
	AttrMessageIntegrity  uint16 = 0x0008
	AttrErrorCode         uint16 = 0x0009
	AttrUnknownAttributes uint16 = 0x000a
	AttrReflectedFrom     uint16 = 0x000b
)

const (
	headerLen      = 20
	addressValLen  = 8
	familyIPv4     = 0x01
	changeIPFlag   = 0x2
	changePortFlag = 0x4
)
