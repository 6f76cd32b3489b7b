package crtp

import (
	"bytes"
	"fmt"
)

// Port selects the logical subsystem a packet belongs to.
type Port byte

// Channel selects a sub-stream within a port.
type Channel byte

// Well-known ports.
const (
	PortConsole         Port = 0x00
	PortParam           Port = 0x02
	PortCommander       Port = 0x03
	PortMem             Port = 0x04
	PortLog             Port = 0x05
	PortLocalization    Port = 0x06
	PortGenericSetpoint Port = 0x07
	PortPlatform        Port = 0x0D
	PortLinkCtrl        Port = 0x0F
)

const (
	// MaxPort is the largest port number encodable in a header.
	MaxPort Port = 0x0F
	// MaxChannel is the largest channel number encodable in a header.
	MaxChannel Channel = 0x03
	// MaxPayload is the maximum number of payload bytes in one packet.
	MaxPayload = 30
	// MaxFrameSize is the size of the largest encoded frame without checksum.
	MaxFrameSize = MaxPayload + 1

	linkBits byte = 0x03 << 2
)

// Header bytes the firmware sends when its queue is empty.
const (
	headerEmpty1 byte = 0xF3
	headerEmpty2 byte = 0xF7
	headerNull   byte = 0xFF
)

// Packet is a decoded CRTP packet. It is immutable once constructed.
type Packet struct {
	port    Port
	channel Channel
	data    []byte
}

// NewPacket creates a packet, copying data.
// An empty packet on PortLinkCtrl channel 3 is rejected: its frame is the
// null header which every peer discards as a keep-alive.
func NewPacket(port Port, channel Channel, data []byte) (*Packet, error) {
	if port > MaxPort {
		return nil, fmt.Errorf("crtp: port %d out of range", port)
	}
	if channel > MaxChannel {
		return nil, fmt.Errorf("crtp: channel %d out of range", channel)
	}
	if len(data) > MaxPayload {
		return nil, fmt.Errorf("crtp: payload of %d bytes exceeds %d", len(data), MaxPayload)
	}
	if len(data) == 0 && byte(port)<<4|linkBits|byte(channel) == headerNull {
		return nil, fmt.Errorf("crtp: empty packet on port %d channel %d is the null frame", port, channel)
	}
	p := &Packet{port: port, channel: channel, data: make([]byte, len(data))}
	copy(p.data, data)
	return p, nil
}

// Port returns the port.
func (p *Packet) Port() Port { return p.port }

// Channel returns the channel.
func (p *Packet) Channel() Channel { return p.channel }

// Len returns the payload length.
func (p *Packet) Len() int { return len(p.data) }

// Data returns a copy of the payload.
func (p *Packet) Data() []byte {
	d := make([]byte, len(p.data))
	copy(d, p.data)
	return d
}

// Header returns the encoded header byte.
func (p *Packet) Header() byte {
	return byte(p.port&MaxPort)<<4 | linkBits | byte(p.channel&MaxChannel)
}

// Equal reports whether two packets carry the same header fields and payload.
func (p *Packet) Equal(o *Packet) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.port == o.port && p.channel == o.channel && bytes.Equal(p.data, o.data)
}

// String implements fmt.Stringer.
func (p *Packet) String() string {
	return fmt.Sprintf("<%d:%d> % x", p.port, p.channel, p.data)
}

// Codec encodes and decodes frames for a transport.
type Codec struct {
	// Checksum appends an 8-bit additive checksum over header and payload.
	Checksum bool
}

// Encode encodes the packet with the plain codec.
func Encode(p *Packet) []byte {
	return Codec{}.Encode(p)
}

// Decode decodes a frame with the plain codec.
func Decode(b []byte) (*Packet, error) {
	return Codec{}.Decode(b)
}

// Encode returns the header byte followed by the payload, plus the
// checksum byte if enabled.
func (c Codec) Encode(p *Packet) []byte {
	size := len(p.data) + 1
	if c.Checksum {
		size++
	}
	b := make([]byte, size)
	b[0] = p.Header()
	copy(b[1:], p.data)
	if c.Checksum {
		b[size-1] = checksum(b[:size-1])
	}
	return b
}

// Decode parses a frame. It never retains b.
func (c Codec) Decode(b []byte) (*Packet, error) {
	if len(b) < 1 {
		return nil, &DecodeError{Reason: ReasonShort, Size: len(b)}
	}
	if c.Checksum {
		if len(b) < 2 {
			return nil, &DecodeError{Reason: ReasonShort, Size: len(b)}
		}
		if sum := checksum(b[:len(b)-1]); sum != b[len(b)-1] {
			return nil, &DecodeError{Reason: ReasonChecksum, Size: len(b)}
		}
		b = b[:len(b)-1]
	}
	if len(b)-1 > MaxPayload {
		return nil, &DecodeError{Reason: ReasonTooLong, Size: len(b)}
	}
	p := &Packet{
		port:    Port(b[0] >> 4),
		channel: Channel(b[0] & byte(MaxChannel)),
		data:    make([]byte, len(b)-1),
	}
	copy(p.data, b[1:])
	return p, nil
}

// IsEmptyFrame reports whether the frame is a keep-alive the firmware sends
// when it has nothing queued. Such frames carry no packet.
func IsEmptyFrame(b []byte) bool {
	if len(b) != 1 {
		return false
	}
	switch b[0] {
	case headerEmpty1, headerEmpty2, headerNull:
		return true
	}
	return false
}

// NullFrame is the frame sent to poll a peer without carrying data.
func NullFrame() []byte {
	return []byte{headerNull}
}

func checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}
