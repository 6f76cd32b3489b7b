// Package debug implements a loopback driver: every packet sent on a link
// is received back on the same link.
package debug

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/crtplink/pkg/crtp"
	"github.com/robotalks/crtplink/pkg/framework"
	"github.com/robotalks/crtplink/pkg/link"
)

// DriverName is the name of the driver.
const DriverName = "debug"

// Channel and DataRate are reported by Scan, they mean nothing to the
// loopback.
const (
	Channel  = 80
	DataRate = link.DataRate2M
)

func init() {
	link.RegisterDriver(link.Descriptor{
		Name:    DriverName,
		Role:    link.RoleAux,
		Schemes: []string{link.SchemeDebug},
		New: func(*link.Config) (link.Driver, error) {
			return NewDriver(), nil
		},
		Present: func(conf *link.Config) bool { return conf.EnableDebugDriver },
	})
}

// Driver creates loopback links.
type Driver struct {
	lock  sync.Mutex
	links map[link.Address]*debugLink
}

// NewDriver creates a Driver.
func NewDriver() *Driver {
	return &Driver{links: make(map[link.Address]*debugLink)}
}

// Name implements link.Driver.
func (d *Driver) Name() string {
	return DriverName
}

// Scan implements link.Driver. A loopback answers on any address.
func (d *Driver) Scan(ctx context.Context, addr *link.Address) ([]link.URI, error) {
	uri := link.URI{
		Scheme:   link.SchemeDebug,
		Channel:  Channel,
		DataRate: DataRate,
		Address:  link.DefaultAddress,
	}
	if addr != nil {
		uri.Address = *addr
	}
	return []link.URI{uri}, nil
}

// Connect implements link.Driver.
func (d *Driver) Connect(ctx context.Context, uri link.URI, r link.Receiver) (link.Link, error) {
	if uri.Scheme != link.SchemeDebug {
		return nil, link.NewConnectError(uri, fmt.Errorf("scheme %q not supported", uri.Scheme))
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.links[uri.Address] != nil {
		return nil, link.NewConnectError(uri, link.ErrDeviceBusy)
	}
	l := &debugLink{
		driver: d,
		uri:    uri,
		r:      r,
		notify: make(chan struct{}, 1),
		runner: framework.NewRunner(),
	}
	d.links[uri.Address] = l
	l.runner.Go(framework.NamedRun("debug-loop:"+uri.Address.String(), l))
	return l, nil
}

// Inject delivers a raw frame to the link connected at addr as if the
// peer sent it.
func (d *Driver) Inject(addr link.Address, frame []byte) error {
	d.lock.Lock()
	l := d.links[addr]
	d.lock.Unlock()
	if l == nil {
		return link.ErrDeviceNotFound
	}
	return l.push(frame)
}

func (d *Driver) release(l *debugLink) {
	d.lock.Lock()
	if d.links[l.uri.Address] == l {
		delete(d.links, l.uri.Address)
	}
	d.lock.Unlock()
}

type debugLink struct {
	driver *Driver
	uri    link.URI
	r      link.Receiver
	notify chan struct{}
	runner *framework.Runner

	lock      sync.Mutex
	frames    ringBuffer
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// Send implements link.Link.
func (l *debugLink) Send(ctx context.Context, pkt *crtp.Packet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.push(crtp.Encode(pkt))
}

func (l *debugLink) push(frame []byte) error {
	l.lock.Lock()
	if l.closed {
		l.lock.Unlock()
		return link.ErrClosed
	}
	if l.frames.push(append([]byte(nil), frame...)) {
		glog.V(2).Infof("debug %s: loopback full, oldest frame dropped", l.uri)
	}
	l.lock.Unlock()
	select {
	case l.notify <- struct{}{}:
	default:
	}
	return nil
}

// Status implements link.Statuser.
func (l *debugLink) Status() string {
	return "Debug loopback driver"
}

// Run implements framework.Runnable.
func (l *debugLink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.notify:
		}
		for {
			l.lock.Lock()
			frame, ok := l.frames.pop()
			l.lock.Unlock()
			if !ok {
				break
			}
			if crtp.IsEmptyFrame(frame) {
				continue
			}
			pkt, err := crtp.Decode(frame)
			if err != nil {
				l.r.FrameDropped(err)
				continue
			}
			l.r.PacketReceived(pkt)
		}
	}
}

// Close implements link.Link.
func (l *debugLink) Close() error {
	l.closeOnce.Do(func() {
		l.lock.Lock()
		l.closed = true
		l.lock.Unlock()
		l.closeErr = l.runner.StopAndWait()
		l.driver.release(l)
		glog.V(2).Infof("debug %s: closed", l.uri)
	})
	return l.closeErr
}

const ringCapacity = 64

// ringBuffer keeps the latest ringCapacity frames.
type ringBuffer struct {
	data       [ringCapacity][]byte
	head, tail int
	count      int
}

// push appends a frame and reports whether the oldest was overwritten.
func (rb *ringBuffer) push(frame []byte) bool {
	full := rb.count == ringCapacity
	if full {
		rb.head = (rb.head + 1) % ringCapacity
		rb.count--
	}
	rb.data[rb.tail] = frame
	rb.tail = (rb.tail + 1) % ringCapacity
	rb.count++
	return full
}

func (rb *ringBuffer) pop() ([]byte, bool) {
	if rb.count == 0 {
		return nil, false
	}
	frame := rb.data[rb.head]
	rb.data[rb.head] = nil
	rb.head = (rb.head + 1) % ringCapacity
	rb.count--
	return frame, true
}
