// Package radio implements the driver of the Crazyradio USB dongle.
package radio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/crtplink/pkg/crtp"
	"github.com/robotalks/crtplink/pkg/framework"
	"github.com/robotalks/crtplink/pkg/link"
)

// DriverName is the name of the driver.
const DriverName = "radio"

const (
	// HardwareRetries is the retransmission count (ARC) of the dongle.
	HardwareRetries = 3
	// SendAttempts is how many times a packet is handed to the dongle
	// before reporting ErrNoAck.
	SendAttempts = 3
	// MaxLostAcks is the number of consecutive unacknowledged frames after
	// which the link is considered lost.
	MaxLostAcks = 100

	ardBytes = 32
	// idle polls slow down after this many empty acks.
	emptyAcksBeforeRelax = 10
)

// relaxInterval is how long the poll loop waits for outgoing packets once
// the peer had nothing to send for a while.
var relaxInterval = 10 * time.Millisecond

// ErrTooManyLostAcks is reported when the peer stops acknowledging.
var ErrTooManyLostAcks = errors.New("too many lost acks")

func init() {
	link.RegisterDriver(link.Descriptor{
		Name:    DriverName,
		Role:    link.RoleRadio,
		Schemes: []string{link.SchemeRadio},
		New: func(*link.Config) (link.Driver, error) {
			return NewDriver(DefaultFinder), nil
		},
		Present: func(*link.Config) bool {
			n, err := DefaultFinder.Count()
			if err != nil {
				glog.Warningf("radio: enumerate dongles failed: %v", err)
			}
			return n > 0
		},
	})
}

// Driver connects through Crazyradio dongles.
type Driver struct {
	finder Finder

	lock    sync.Mutex
	claimed map[int]bool
}

// NewDriver creates a Driver using finder to open dongles.
func NewDriver(finder Finder) *Driver {
	return &Driver{finder: finder, claimed: make(map[int]bool)}
}

// Name implements link.Driver.
func (d *Driver) Name() string {
	return DriverName
}

// Scan implements link.Driver. It sweeps every data rate and channel on
// each free dongle and reports channels where a peer acknowledges.
func (d *Driver) Scan(ctx context.Context, addr *link.Address) ([]link.URI, error) {
	count, err := d.finder.Count()
	if err != nil {
		return nil, err
	}
	target := link.DefaultAddress
	if addr != nil {
		target = *addr
	}
	var found []link.URI
	for index := 0; index < count; index++ {
		if !d.claim(index) {
			glog.V(2).Infof("radio: dongle %d in use, skipped", index)
			continue
		}
		uris, err := d.scanDongle(ctx, index, target)
		d.release(index)
		found = append(found, uris...)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return found, ctxErr
			}
			glog.Warningf("radio: scan dongle %d failed: %v", index, err)
		}
	}
	return found, nil
}

func (d *Driver) scanDongle(ctx context.Context, index int, addr link.Address) ([]link.URI, error) {
	dongle, err := d.finder.Open(index)
	if err != nil {
		return nil, err
	}
	defer dongle.Close()
	if err = dongle.SetAddress(addr); err != nil {
		return nil, err
	}
	if err = dongle.SetARC(1); err != nil {
		return nil, err
	}
	var found []link.URI
	for _, rate := range link.DataRates() {
		if err = dongle.SetDataRate(rate); err != nil {
			return found, err
		}
		for ch := 0; ch <= link.MaxRadioChannel; ch++ {
			if err = ctx.Err(); err != nil {
				return found, err
			}
			if err = dongle.SetChannel(ch); err != nil {
				return found, err
			}
			ack, err := dongle.SendPacket(crtp.NullFrame())
			if err != nil {
				return found, err
			}
			if ack.Received {
				found = append(found, link.URI{
					Scheme:    link.SchemeRadio,
					Interface: index,
					Channel:   ch,
					DataRate:  rate,
					Address:   addr,
				})
			}
		}
	}
	return found, nil
}

// Connect implements link.Driver.
func (d *Driver) Connect(ctx context.Context, uri link.URI, r link.Receiver) (link.Link, error) {
	if uri.Scheme != link.SchemeRadio {
		return nil, link.NewConnectError(uri, fmt.Errorf("scheme %q not supported", uri.Scheme))
	}
	if !d.claim(uri.Interface) {
		return nil, link.NewConnectError(uri, link.ErrDeviceBusy)
	}
	dongle, err := d.open(uri)
	if err != nil {
		d.release(uri.Interface)
		return nil, link.NewConnectError(uri, err)
	}
	l := &radioLink{
		driver:  d,
		uri:     uri,
		dongle:  dongle,
		version: dongle.Version(),
		r:       r,
		sendCh:  make(chan *sendRequest),
		stopped: make(chan struct{}),
		runner:  framework.NewRunner(),
	}
	l.runner.Go(framework.NamedRun(fmt.Sprintf("radio-poll:%d", uri.Interface), l))
	return l, nil
}

func (d *Driver) open(uri link.URI) (Dongle, error) {
	dongle, err := d.finder.Open(uri.Interface)
	if err != nil {
		return nil, err
	}
	err = dongle.SetDataRate(uri.DataRate)
	if err == nil {
		err = dongle.SetChannel(uri.Channel)
	}
	if err == nil {
		err = dongle.SetAddress(uri.Address)
	}
	if err == nil {
		err = dongle.SetARC(HardwareRetries)
	}
	if err == nil {
		err = dongle.SetARDBytes(ardBytes)
	}
	if err != nil {
		dongle.Close()
		return nil, err
	}
	return dongle, nil
}

func (d *Driver) claim(index int) bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.claimed[index] {
		return false
	}
	d.claimed[index] = true
	return true
}

func (d *Driver) release(index int) {
	d.lock.Lock()
	delete(d.claimed, index)
	d.lock.Unlock()
}

type sendRequest struct {
	frame []byte
	done  chan error
}

// radioLink owns the dongle through a single poll goroutine: it sends
// queued packets, otherwise null frames to fetch what the peer has.
type radioLink struct {
	driver  *Driver
	uri     link.URI
	dongle  Dongle
	version string
	r       link.Receiver
	sendCh  chan *sendRequest
	stopped chan struct{}
	runner  *framework.Runner

	lostAcks  int
	emptyAcks int
	closeOnce sync.Once
	closeErr  error
}

// Send implements link.Link.
func (l *radioLink) Send(ctx context.Context, pkt *crtp.Packet) error {
	req := &sendRequest{frame: crtp.Encode(pkt), done: make(chan error, 1)}
	select {
	case l.sendCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		return link.ErrClosed
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		select {
		case err := <-req.done:
			return err
		default:
			return link.ErrClosed
		}
	}
}

// Status implements link.Statuser.
func (l *radioLink) Status() string {
	return fmt.Sprintf("Crazyradio version %s", l.version)
}

// Run implements framework.Runnable.
func (l *radioLink) Run(ctx context.Context) error {
	defer close(l.stopped)
	for {
		var req *sendRequest
		if l.emptyAcks < emptyAcksBeforeRelax {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case req = <-l.sendCh:
			default:
			}
		} else {
			timer := time.NewTimer(relaxInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case req = <-l.sendCh:
			case <-timer.C:
			}
			timer.Stop()
		}

		var err error
		if req != nil {
			err = l.send(req)
		} else {
			err = l.poll()
		}
		if err != nil {
			l.r.LinkLost(err)
			return nil
		}
	}
}

// send delivers a user frame with software retries. The returned error
// is fatal to the link, the caller gets its own result through req.done.
func (l *radioLink) send(req *sendRequest) error {
	for attempt := 0; attempt < SendAttempts; attempt++ {
		ack, err := l.dongle.SendPacket(req.frame)
		if err != nil {
			req.done <- err
			return err
		}
		if ack.Received {
			req.done <- nil
			l.handleAck(ack)
			return nil
		}
		if err = l.ackLost(); err != nil {
			req.done <- link.ErrNoAck
			return err
		}
	}
	req.done <- link.ErrNoAck
	return nil
}

func (l *radioLink) poll() error {
	ack, err := l.dongle.SendPacket(crtp.NullFrame())
	if err != nil {
		return err
	}
	if !ack.Received {
		return l.ackLost()
	}
	l.handleAck(ack)
	return nil
}

func (l *radioLink) ackLost() error {
	l.lostAcks++
	if l.lostAcks >= MaxLostAcks {
		return ErrTooManyLostAcks
	}
	return nil
}

func (l *radioLink) handleAck(ack *Ack) {
	l.lostAcks = 0
	if len(ack.Data) == 0 || crtp.IsEmptyFrame(ack.Data) {
		if l.emptyAcks < emptyAcksBeforeRelax {
			l.emptyAcks++
		}
		return
	}
	l.emptyAcks = 0
	pkt, err := crtp.Decode(ack.Data)
	if err != nil {
		l.r.FrameDropped(err)
		return
	}
	l.r.PacketReceived(pkt)
}

// Close implements link.Link.
func (l *radioLink) Close() error {
	l.closeOnce.Do(func() {
		var errs framework.AggregatedError
		errs.Add(l.runner.StopAndWait(), l.dongle.Close())
		l.closeErr = errs.Aggregate()
		l.driver.release(l.uri.Interface)
		glog.V(2).Infof("radio %s: closed", l.uri)
	})
	return l.closeErr
}
