//go:build cgo

package radio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/google/gousb"

	"github.com/robotalks/crtplink/pkg/link"
)

const (
	usbTimeout    = time.Second
	ctrlVendorOut = gousb.ControlOut | gousb.ControlVendor | gousb.ControlDevice
	dataEndpoint  = 1
)

type usbFinder struct{}

func isDongle(desc *gousb.DeviceDesc) bool {
	return desc.Vendor == gousb.ID(VendorID) && desc.Product == gousb.ID(ProductID)
}

// Count implements Finder.
func (usbFinder) Count() (int, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()
	devs, err := ctx.OpenDevices(isDongle)
	for _, dev := range devs {
		dev.Close()
	}
	if err != nil && len(devs) == 0 {
		return 0, usbError(err)
	}
	return len(devs), nil
}

// Open implements Finder.
func (usbFinder) Open(index int) (Dongle, error) {
	ctx := gousb.NewContext()
	devs, err := ctx.OpenDevices(isDongle)
	var dev *gousb.Device
	for n, d := range devs {
		if n == index {
			dev = d
		} else {
			d.Close()
		}
	}
	if dev == nil {
		ctx.Close()
		if err != nil {
			return nil, usbError(err)
		}
		return nil, link.ErrDeviceNotFound
	}
	d := &usbDongle{ctx: ctx, dev: dev}
	if err = d.init(); err != nil {
		d.Close()
		return nil, usbError(err)
	}
	return d, nil
}

type usbDongle struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	intf *gousb.Interface
	done func()
	out  *gousb.OutEndpoint
	in   *gousb.InEndpoint
	buf  [64]byte
}

func (d *usbDongle) init() (err error) {
	if err = d.dev.SetAutoDetach(true); err != nil {
		return
	}
	if d.intf, d.done, err = d.dev.DefaultInterface(); err != nil {
		return
	}
	if d.out, err = d.intf.OutEndpoint(dataEndpoint); err != nil {
		return
	}
	if d.in, err = d.intf.InEndpoint(dataEndpoint); err != nil {
		return
	}
	if err = d.control(reqSetContCarrier, 0, nil); err != nil {
		return
	}
	if err = d.SetPower(Power0DBm); err != nil {
		return
	}
	if err = d.SetARC(3); err != nil {
		return
	}
	if err = d.SetARDBytes(32); err != nil {
		return
	}
	err = d.control(reqAckEnable, 1, nil)
	return
}

func (d *usbDongle) control(req uint8, val uint16, data []byte) error {
	_, err := d.dev.Control(ctrlVendorOut, req, val, 0, data)
	return err
}

func (d *usbDongle) SetChannel(ch int) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	return d.control(reqSetRadioChannel, uint16(ch), nil)
}

func (d *usbDongle) SetDataRate(rate link.DataRate) error {
	if !rate.IsValid() {
		return fmt.Errorf("invalid data rate %v", rate)
	}
	return d.control(reqSetDataRate, uint16(rate), nil)
}

func (d *usbDongle) SetAddress(addr link.Address) error {
	return d.control(reqSetRadioAddress, 0, addr.Bytes())
}

func (d *usbDongle) SetARC(n int) error {
	return d.control(reqSetRadioARC, uint16(n), nil)
}

func (d *usbDongle) SetARDBytes(n int) error {
	return d.control(reqSetRadioARD, uint16(0x80|n), nil)
}

func (d *usbDongle) SetPower(p Power) error {
	return d.control(reqSetRadioPower, uint16(p), nil)
}

func (d *usbDongle) SendPacket(frame []byte) (*Ack, error) {
	ctx, cancel := context.WithTimeout(context.Background(), usbTimeout)
	defer cancel()
	if _, err := d.out.WriteContext(ctx, frame); err != nil {
		return nil, usbError(err)
	}
	n, err := d.in.ReadContext(ctx, d.buf[:])
	if err != nil {
		return nil, usbError(err)
	}
	return ParseAck(d.buf[:n]), nil
}

func (d *usbDongle) Version() string {
	return d.dev.Desc.Device.String()
}

func (d *usbDongle) Close() error {
	if d.done != nil {
		d.done()
		d.done = nil
	}
	var err error
	if d.dev != nil {
		err = d.dev.Close()
		d.dev = nil
	}
	if d.ctx != nil {
		if closeErr := d.ctx.Close(); err == nil {
			err = closeErr
		}
		d.ctx = nil
	}
	return err
}

// usbError maps libusb failures to link errors. gousb doesn't always wrap
// the libusb error, so the message is matched as well.
func usbError(err error) error {
	for usbErr, linkErr := range map[gousb.Error]error{
		gousb.ErrorBusy:     link.ErrDeviceBusy,
		gousb.ErrorAccess:   link.ErrPermission,
		gousb.ErrorNoDevice: link.ErrDeviceNotFound,
		gousb.ErrorNotFound: link.ErrDeviceNotFound,
	} {
		if errors.Is(err, usbErr) || strings.Contains(err.Error(), usbErr.Error()) {
			glog.V(2).Infof("usb: %v", err)
			return fmt.Errorf("%w: %v", linkErr, err)
		}
	}
	return err
}
