package crtp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustPacket(t *testing.T, port Port, ch Channel, data ...byte) *Packet {
	pkt, err := NewPacket(port, ch, data)
	require.NoError(t, err)
	return pkt
}

func TestHeader(t *testing.T) {
	testCases := []struct {
		port   Port
		ch     Channel
		header byte
	}{
		{PortConsole, 0, 0x0c},
		{PortParam, 1, 0x2d},
		{PortCommander, 0, 0x3c},
		{PortLinkCtrl, 1, 0xfd},
		{PortPlatform, 2, 0xde},
	}
	for _, tc := range testCases {
		pkt := mustPacket(t, tc.port, tc.ch)
		require.Equalf(t, tc.header, pkt.Header(), "port %d channel %d", tc.port, tc.ch)
	}
}

func TestPacket(t *testing.T) {
	testCases := []struct {
		name   string
		packet *Packet
		expect []byte
	}{
		{"no data", mustPacket(t, PortConsole, 0), []byte{0x0c}},
		{"param", mustPacket(t, PortParam, 0, 1, 2), []byte{0x2c, 1, 2}},
		{"link echo", mustPacket(t, PortLinkCtrl, 0, 0xaa), []byte{0xfc, 0xaa}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expect, Encode(tc.packet))
			pkt, err := Decode(tc.expect)
			require.NoError(t, err)
			require.True(t, tc.packet.Equal(pkt))
		})
	}
}

func TestRoundTrip(t *testing.T) {
	payload := make([]byte, MaxPayload)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	for _, codec := range []Codec{{}, {Checksum: true}} {
		for port := Port(0); port <= MaxPort; port++ {
			for ch := Channel(0); ch <= MaxChannel; ch++ {
				for _, n := range []int{0, 1, 15, MaxPayload} {
					if n == 0 && port == PortLinkCtrl && ch == MaxChannel {
						continue
					}
					pkt := mustPacket(t, port, ch, payload[:n]...)
					decoded, err := codec.Decode(codec.Encode(pkt))
					require.NoError(t, err)
					require.Equal(t, port, decoded.Port())
					require.Equal(t, ch, decoded.Channel())
					require.Equal(t, payload[:n], decoded.Data())
				}
			}
		}
	}
}

func TestNewPacketValidation(t *testing.T) {
	_, err := NewPacket(0x10, 0, nil)
	require.Error(t, err)
	_, err = NewPacket(0, 4, nil)
	require.Error(t, err)
	_, err = NewPacket(0, 0, make([]byte, MaxPayload+1))
	require.Error(t, err)
}

func TestNewPacketRejectsNullFrame(t *testing.T) {
	_, err := NewPacket(PortLinkCtrl, MaxChannel, nil)
	require.Error(t, err)
	pkt, err := NewPacket(PortLinkCtrl, MaxChannel, []byte{0})
	require.NoError(t, err)
	require.False(t, IsEmptyFrame(Encode(pkt)))
	for ch := Channel(0); ch < MaxChannel; ch++ {
		pkt := mustPacket(t, PortLinkCtrl, ch)
		require.False(t, IsEmptyFrame(Encode(pkt)), "channel %d", ch)
	}
}

func TestPacketImmutable(t *testing.T) {
	data := []byte{1, 2, 3}
	pkt := mustPacket(t, PortParam, 0, data...)
	data[0] = 9
	require.Equal(t, []byte{1, 2, 3}, pkt.Data())
	pkt.Data()[1] = 9
	require.Equal(t, []byte{1, 2, 3}, pkt.Data())
}

func TestDecodeErrors(t *testing.T) {
	testCases := []struct {
		name   string
		codec  Codec
		frame  []byte
		reason DecodeReason
	}{
		{"empty", Codec{}, nil, ReasonShort},
		{"too long", Codec{}, make([]byte, MaxFrameSize+1), ReasonTooLong},
		{"checksum short", Codec{Checksum: true}, []byte{0x0c}, ReasonShort},
		{"checksum mismatch", Codec{Checksum: true}, []byte{0x2c, 1, 2, 0}, ReasonChecksum},
		{"checksum too long", Codec{Checksum: true}, append(make([]byte, MaxFrameSize+1), 0), ReasonTooLong},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.codec.Decode(tc.frame)
			require.Error(t, err)
			decErr, ok := err.(*DecodeError)
			require.True(t, ok)
			require.Equal(t, tc.reason, decErr.Reason)
		})
	}
}

func TestChecksum(t *testing.T) {
	pkt := mustPacket(t, PortParam, 0, 1, 2)
	require.Equal(t, []byte{0x2c, 1, 2, 0x2f}, Codec{Checksum: true}.Encode(pkt))
}

func TestIsEmptyFrame(t *testing.T) {
	require.True(t, IsEmptyFrame([]byte{0xf3}))
	require.True(t, IsEmptyFrame([]byte{0xf7}))
	require.True(t, IsEmptyFrame(NullFrame()))
	require.False(t, IsEmptyFrame([]byte{0xf3, 0}))
	require.False(t, IsEmptyFrame([]byte{0x0c}))
	require.False(t, IsEmptyFrame(nil))
}
