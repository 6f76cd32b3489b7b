package link

import (
	"context"
	"errors"
	"sync"

	"github.com/robotalks/crtplink/pkg/crtp"
)

type fakeDriver struct {
	name       string
	uris       []URI
	scanErr    error
	connectErr error

	lock  sync.Mutex
	links []*fakeLink
}

func (d *fakeDriver) Name() string { return d.name }

func (d *fakeDriver) Scan(ctx context.Context, addr *Address) ([]URI, error) {
	if d.scanErr != nil {
		return nil, d.scanErr
	}
	var uris []URI
	for _, u := range d.uris {
		if addr == nil || u.Address == *addr {
			uris = append(uris, u)
		}
	}
	return uris, nil
}

func (d *fakeDriver) Connect(ctx context.Context, uri URI, r Receiver) (Link, error) {
	if d.connectErr != nil {
		return nil, d.connectErr
	}
	l := &fakeLink{r: r}
	d.lock.Lock()
	d.links = append(d.links, l)
	d.lock.Unlock()
	return l, nil
}

func (d *fakeDriver) lastLink() *fakeLink {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.links[len(d.links)-1]
}

type fakeLink struct {
	r Receiver
	// sendFn overrides Send when set.
	sendFn func(context.Context, *crtp.Packet) error

	lock   sync.Mutex
	sent   []*crtp.Packet
	closes int
}

func (l *fakeLink) Send(ctx context.Context, pkt *crtp.Packet) error {
	if l.sendFn != nil {
		return l.sendFn(ctx, pkt)
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.closes > 0 {
		return errors.New("closed")
	}
	l.sent = append(l.sent, pkt)
	return nil
}

func (l *fakeLink) Close() error {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.closes++
	return nil
}

func (l *fakeLink) Status() string { return "fake" }

func (l *fakeLink) closeCount() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.closes
}

func fakeDescriptor(name string, role Role, present bool, drv *fakeDriver, schemes ...string) Descriptor {
	return Descriptor{
		Name:    name,
		Role:    role,
		Schemes: schemes,
		New:     func(*Config) (Driver, error) { return drv, nil },
		Present: func(*Config) bool { return present },
	}
}
