package stun

import (
	"encoding/binary"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalBindingRequestLayout(t *testing.T) {
	req := NewBindingRequest()
	req.AddChangeRequest(true, true)

	p := req.Marshal()
	require.Len(t, p, 28)

	assert.Equal(t, TypeBindingRequest, binary.BigEndian.Uint16(p[0:2]))
	assert.Equal(t, uint16(8), binary.BigEndian.Uint16(p[2:4]), "attribute section length excludes the header")
	assert.Equal(t, req.TransactionID[:], p[4:20])

	assert.Equal(t, AttrChangeRequest, binary.BigEndian.Uint16(p[20:22]))
	assert.Equal(t, uint16(4), binary.BigEndian.Uint16(p[22:24]))
	assert.Equal(t, uint32(changeIPFlag|changePortFlag), binary.BigEndian.Uint32(p[24:28]))
}

func TestChangeRequestFlagValues(t *testing.T) {
	for _, tc := range []struct {
		changeIP   bool
		changePort bool
		want       uint32
	}{
		{false, false, 0},
		{true, false, 2},
		{false, true, 4},
		{true, true, 6},
	} {
		m := NewBindingRequest()
		m.AddChangeRequest(tc.changeIP, tc.changePort)
		p := m.Marshal()
		assert.Equal(t, tc.want, binary.BigEndian.Uint32(p[24:28]))

		back, err := Unmarshal(p)
		require.NoError(t, err)
		gotIP, gotPort := back.ChangeRequest()
		assert.Equal(t, tc.changeIP, gotIP)
		assert.Equal(t, tc.changePort, gotPort)
	}
}

func TestRoundTrip(t *testing.T) {
	m := &Message{
		Type:          TypeBindingResponse,
		TransactionID: NewTransactionID(),
	}
	require.NoError(t, m.AddAddress(AttrMappedAddress, Endpoint{IP: net.IPv4(203, 0, 113, 7), Port: 4021}))
	require.NoError(t, m.AddAddress(AttrSourceAddress, Endpoint{IP: net.IPv4(198, 51, 100, 1), Port: 3478}))
	require.NoError(t, m.AddAddress(AttrChangedAddress, Endpoint{IP: net.IPv4(198, 51, 100, 2), Port: 3479}))

	back, err := Unmarshal(m.Marshal())
	require.NoError(t, err)
	assert.Equal(t, m, back)

	mapped, ok := back.MappedAddress()
	require.True(t, ok)
	assert.True(t, mapped.Equal(Endpoint{IP: net.IPv4(203, 0, 113, 7), Port: 4021}))

	changed, ok := back.ChangedAddress()
	require.True(t, ok)
	assert.True(t, changed.Equal(Endpoint{IP: net.IPv4(198, 51, 100, 2), Port: 3479}))
}

func TestRoundTripEmptyRequest(t *testing.T) {
	m := NewBindingRequest()
	back, err := Unmarshal(m.Marshal())
	require.NoError(t, err)
	assert.Equal(t, m, back)
	_, ok := back.MappedAddress()
	assert.False(t, ok)
}

func TestUnmarshalShortPacket(t *testing.T) {
	for _, n := range []int{0, 1, 19} {
		_, err := Unmarshal(make([]byte, n))
		assert.ErrorIs(t, err, ErrMalformedMessage)
	}
}

func TestUnmarshalAttributeSectionOverrun(t *testing.T) {
	p := NewBindingRequest().Marshal()
	// declared attribute length runs past the end of the buffer
	binary.BigEndian.PutUint16(p[2:4], 64)
	_, err := Unmarshal(p)
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestUnmarshalAttributeValueOverrun(t *testing.T) {
	m := NewBindingRequest()
	m.AddChangeRequest(true, false)
	p := m.Marshal()
	// attribute claims more value bytes than the section holds
	binary.BigEndian.PutUint16(p[22:24], 32)
	_, err := Unmarshal(p)
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestUnmarshalTruncatedAttributeHeader(t *testing.T) {
	p := NewBindingRequest().Marshal()
	p = append(p, 0x00, 0x01)
	binary.BigEndian.PutUint16(p[2:4], 2)
	_, err := Unmarshal(p)
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestUnmarshalRejectsNonIPv4Family(t *testing.T) {
	m := &Message{Type: TypeBindingResponse, TransactionID: NewTransactionID()}
	require.NoError(t, m.AddAddress(AttrMappedAddress, Endpoint{IP: net.IPv4(203, 0, 113, 7), Port: 4021}))
	p := m.Marshal()
	p[25] = 0x02 // family byte of the mapped address value

	_, err := Unmarshal(p)
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestUnmarshalSkipsUnknownAttributes(t *testing.T) {
	m := &Message{Type: TypeBindingResponse, TransactionID: NewTransactionID()}
	m.Attributes = append(m.Attributes, Attribute{Type: 0x8022, Value: []byte("test vector.")})
	require.NoError(t, m.AddAddress(AttrMappedAddress, Endpoint{IP: net.IPv4(203, 0, 113, 7), Port: 4021}))
	m.Attributes = append(m.Attributes, Attribute{Type: AttrReflectedFrom, Value: make([]byte, 8)})

	back, err := Unmarshal(m.Marshal())
	require.NoError(t, err)
	require.Len(t, back.Attributes, 3)

	mapped, ok := back.MappedAddress()
	require.True(t, ok)
	assert.Equal(t, 4021, mapped.Port)
}

func TestAddAddressRejectsIPv6(t *testing.T) {
	m := NewBindingRequest()
	err := m.AddAddress(AttrMappedAddress, Endpoint{IP: net.ParseIP("2001:db8::1"), Port: 1})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrMalformedMessage))
	assert.Empty(t, m.Attributes)
}

func TestTransactionIDsAreUnique(t *testing.T) {
	seen := map[TransactionID]bool{}
	for i := 0; i < 64; i++ {
		id := NewBindingRequest().TransactionID
		require.False(t, seen[id])
		seen[id] = true
	}
}
