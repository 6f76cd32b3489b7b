//go:build !cgo

package radio

import "github.com/robotalks/crtplink/pkg/link"

// usbFinder finds nothing, libusb requires cgo.
type usbFinder struct{}

func (usbFinder) Count() (int, error) {
	return 0, nil
}

func (usbFinder) Open(index int) (Dongle, error) {
	return nil, link.ErrDeviceNotFound
}
