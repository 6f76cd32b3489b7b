// Package sim implements the simulated driver which exchanges packets with
// a simulator process through shared memory instead of a radio.
package sim

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
	"github.com/robotalks/crtplink/pkg/shm"
)

// DriverName is the name of the driver.
const DriverName = "sim"

// checkInterval is how long the receiver stays idle before checking the
// simulator is still there.
var checkInterval = time.Second

func init() {
	link.RegisterDriver(link.Descriptor{
		Name:    DriverName,
		Role:    link.RoleSimulated,
		Schemes: []string{link.SchemeSim, link.SchemeRadio},
		New: func(conf *link.Config) (link.Driver, error) {
			return NewDriver(conf.Namespace()), nil
		},
		Present: func(*link.Config) bool { return shm.Available() },
	})
}

// Driver connects to simulated peers of the address table.
type Driver struct {
	Namespace string

	lock    sync.Mutex
	claimed map[link.Address]bool
}

// NewDriver creates a Driver using shared memory names under ns.
func NewDriver(ns string) *Driver {
	return &Driver{Namespace: ns, claimed: make(map[link.Address]bool)}
}

// Name implements link.Driver.
func (d *Driver) Name() string {
	return DriverName
}

// Scan implements link.Driver. The table is returned without probing.
func (d *Driver) Scan(ctx context.Context, addr *link.Address) ([]link.URI, error) {
	if addr == nil {
		return Entries(), nil
	}
	if u, ok := Lookup(*addr); ok {
		return []link.URI{u}, nil
	}
	return nil, nil
}

// Connect implements link.Driver.
func (d *Driver) Connect(ctx context.Context, uri link.URI, r link.Receiver) (link.Link, error) {
	if _, ok := Lookup(uri.Address); !ok {
		return nil, link.NewConnectError(uri, link.ErrDeviceNotFound)
	}
	if !d.claim(uri.Address) {
		return nil, link.NewConnectError(uri, link.ErrDeviceBusy)
	}
	l, err := d.open(uri, r)
	if err != nil {
		d.release(uri.Address)
		return nil, link.NewConnectError(uri, err)
	}
	glog.V(2).Infof("sim %s: connected to %s", uri, RegionName(d.Namespace, uri.Address, "*"))
	return l, nil
}

func (d *Driver) open(uri link.URI, r link.Receiver) (*simLink, error) {
	up, err := openChannel(RegionName(d.Namespace, uri.Address, Up))
	if err != nil {
		return nil, err
	}
	down, err := openChannel(RegionName(d.Namespace, uri.Address, Down))
	if err != nil {
		up.close()
		return nil, err
	}
	l := &simLink{
		driver: d,
		uri:    uri,
		up:     up,
		down:   down,
		r:      r,
		done:   make(chan struct{}),
		runner: framework.NewRunner(),
	}
	l.runner.Go(framework.NamedRun("sim-recv:"+uri.Address.String(), l))
	return l, nil
}

func (d *Driver) claim(addr link.Address) bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.claimed[addr] {
		return false
	}
	d.claimed[addr] = true
	return true
}

func (d *Driver) release(addr link.Address) {
	d.lock.Lock()
	delete(d.claimed, addr)
	d.lock.Unlock()
}

type simLink struct {
	driver *Driver
	uri    link.URI
	up     *channel
	down   *channel
	r      link.Receiver
	done   chan struct{}
	runner *framework.Runner

	// held for reading by senders, for writing by Close.
	lock      sync.RWMutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// Send implements link.Link.
func (l *simLink) Send(ctx context.Context, pkt *crtp.Packet) error {
	l.lock.RLock()
	defer l.lock.RUnlock()
	if l.closed {
		return link.ErrClosed
	}
	err := l.up.write(ctx, l.done, pkt)
	if errors.Is(err, context.DeadlineExceeded) && !l.up.exists() {
		return &link.SendError{Err: link.ErrSimulatorNotRunning}
	}
	return err
}

// Status implements link.Statuser.
func (l *simLink) Status() string {
	return fmt.Sprintf("Simulation link driver (%s)", RegionName(l.driver.Namespace, l.uri.Address, "*"))
}

// Run implements framework.Runnable. It is the receive activity.
func (l *simLink) Run(ctx context.Context) error {
	idleSince := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		pkt, err := l.down.read(pollSlice)
		switch {
		case err == nil:
			idleSince = time.Now()
			if pkt != nil {
				l.r.PacketReceived(pkt)
			}
		case err == shm.ErrTimeout:
			if time.Since(idleSince) < checkInterval {
				continue
			}
			if !l.up.exists() || !l.down.exists() {
				l.r.LinkLost(link.ErrSimulatorNotRunning)
				return nil
			}
			idleSince = time.Now()
		default:
			var decErr *crtp.DecodeError
			if errors.As(err, &decErr) {
				idleSince = time.Now()
				l.r.FrameDropped(err)
				continue
			}
			glog.Errorf("sim %s: receive failed: %v", l.uri, err)
			l.r.LinkLost(err)
			return nil
		}
	}
}

// Close implements link.Link.
func (l *simLink) Close() error {
	l.closeOnce.Do(func() {
		l.runner.Stop()
		close(l.done)
		l.lock.Lock()
		l.closed = true
		l.lock.Unlock()
		var errs framework.AggregatedError
		errs.Add(l.runner.Wait(), l.up.close(), l.down.close())
		l.closeErr = errs.Aggregate()
		l.driver.release(l.uri.Address)
		glog.V(2).Infof("sim %s: closed", l.uri)
	})
	return l.closeErr
}
