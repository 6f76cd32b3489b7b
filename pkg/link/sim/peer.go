package sim

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/crtplink/pkg/crtp"
	"github.com/robotalks/crtplink/pkg/framework"
	"github.com/robotalks/crtplink/pkg/link"
	"github.com/robotalks/crtplink/pkg/shm"
)

// Peer is the simulator side of one table address. It creates the shared
// memory objects links connect to, receives what links send up and sends
// packets down.
type Peer struct {
	addr link.Address
	up   *channel
	down *channel
	done chan struct{}

	// held for reading while the objects are in use.
	lock      sync.RWMutex
	closeOnce sync.Once
	closeErr  error
}

// CreatePeer creates the shared memory objects of addr under ns,
// replacing stale ones.
func CreatePeer(ns string, addr link.Address) (*Peer, error) {
	if _, ok := Lookup(addr); !ok {
		return nil, link.ErrDeviceNotFound
	}
	up, err := createChannel(RegionName(ns, addr, Up))
	if err != nil {
		return nil, err
	}
	down, err := createChannel(RegionName(ns, addr, Down))
	if err != nil {
		up.close()
		removeChannel(up.name)
		return nil, err
	}
	glog.V(2).Infof("sim peer %s created", addr)
	return &Peer{addr: addr, up: up, down: down, done: make(chan struct{})}, nil
}

// Address returns the address served by the peer.
func (p *Peer) Address() link.Address {
	return p.addr
}

// Send writes a packet down to the link, waiting until the previous one
// is consumed or ctx is done.
func (p *Peer) Send(ctx context.Context, pkt *crtp.Packet) error {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.down.write(ctx, p.done, pkt)
}

// Receive waits for a packet sent up by the link. A zero timeout polls and
// a negative one waits until a packet arrives or the peer is closed.
// It returns (nil, nil) on timeout.
func (p *Peer) Receive(timeout time.Duration) (*crtp.Packet, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		select {
		case <-p.done:
			return nil, link.ErrClosed
		default:
		}
		wait := pollSlice
		if timeout == 0 {
			wait = 0
		} else if timeout > 0 {
			if wait = time.Until(deadline); wait <= 0 {
				return nil, nil
			}
			if wait > pollSlice {
				wait = pollSlice
			}
		}
		pkt, err := p.up.read(wait)
		switch {
		case err == shm.ErrTimeout:
			if timeout == 0 {
				return nil, nil
			}
		case err != nil:
			return nil, err
		case pkt != nil:
			return pkt, nil
		}
	}
}

// Close unmaps and removes the shared memory objects. Connected links
// find the simulator gone afterwards.
func (p *Peer) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		p.lock.Lock()
		defer p.lock.Unlock()
		var errs framework.AggregatedError
		errs.Add(
			p.up.close(), p.down.close(),
			removeChannel(p.up.name), removeChannel(p.down.name),
		)
		p.closeErr = errs.Aggregate()
		glog.V(2).Infof("sim peer %s closed", p.addr)
	})
	return p.closeErr
}
