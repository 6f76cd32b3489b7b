package radio

import (
	"fmt"

	"github.com/robotalks/crtplink/pkg/link"
)

// USB identifiers of the Crazyradio dongle.
const (
	VendorID  = 0x1915
	ProductID = 0x7777
)

// Vendor control requests.
const (
	reqSetRadioChannel = 0x01
	reqSetRadioAddress = 0x02
	reqSetDataRate     = 0x03
	reqSetRadioPower   = 0x04
	reqSetRadioARD     = 0x05
	reqSetRadioARC     = 0x06
	reqAckEnable       = 0x10
	reqSetContCarrier  = 0x20
)

// Power is the transmit power level.
type Power int

// Power levels.
const (
	PowerM18DBm Power = iota
	PowerM12DBm
	PowerM6DBm
	Power0DBm
)

// Ack is the dongle's status after sending a frame. Data carries the
// frame the receiver piggybacked on the acknowledgment.
type Ack struct {
	Received      bool
	PowerDetector bool
	Retries       int
	Data          []byte
}

// ParseAck parses the status packet read back after a send.
func ParseAck(b []byte) *Ack {
	ack := &Ack{}
	if len(b) == 0 {
		return ack
	}
	ack.Received = b[0]&0x01 != 0
	ack.PowerDetector = b[0]&0x02 != 0
	ack.Retries = int(b[0] >> 4)
	ack.Data = append([]byte(nil), b[1:]...)
	return ack
}

// Dongle is an opened radio dongle.
type Dongle interface {
	SetChannel(ch int) error
	SetDataRate(rate link.DataRate) error
	SetAddress(addr link.Address) error
	// SetARC sets the number of hardware retransmissions.
	SetARC(n int) error
	// SetARDBytes sets the retransmit delay by ack payload length.
	SetARDBytes(n int) error
	SetPower(p Power) error
	// SendPacket sends a raw frame and returns the acknowledgment.
	SendPacket(frame []byte) (*Ack, error)
	// Version is the firmware version of the dongle.
	Version() string
	Close() error
}

// Finder enumerates dongles.
type Finder interface {
	// Count returns the number of plugged dongles.
	Count() (int, error)
	// Open opens the dongle at index, in enumeration order.
	Open(index int) (Dongle, error)
}

// DefaultFinder is the Finder used by drivers created from descriptors.
var DefaultFinder Finder = usbFinder{}

func checkChannel(ch int) error {
	if ch < 0 || ch > link.MaxRadioChannel {
		return fmt.Errorf("radio channel %d out of range", ch)
	}
	return nil
}
