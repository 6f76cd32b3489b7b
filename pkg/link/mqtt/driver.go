// Package mqtt implements a driver reaching remote endpoints through an
// MQTT broker. Frames are carried with checksums, one frame per message.
package mqtt

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/crtplink/pkg/crtp"
	"github.com/robotalks/crtplink/pkg/link"
)

// DriverName is the name of the driver.
const DriverName = "mqtt"

// DefaultDiscoverTimeout is how long Scan collects retained meta messages.
const DefaultDiscoverTimeout = 500 * time.Millisecond

var codec = crtp.Codec{Checksum: true}

// dialFunc connects to the broker.
type dialFunc func(ctx context.Context, brokerURL, idSuffix string, onLost func(error)) (transport, error)

func dialBroker(ctx context.Context, brokerURL, idSuffix string, onLost func(error)) (transport, error) {
	return Dial(ctx, brokerURL, idSuffix, onLost)
}

func init() {
	link.RegisterDriver(link.Descriptor{
		Name:    DriverName,
		Role:    link.RoleAux,
		Schemes: []string{link.SchemeMQTT},
		New: func(conf *link.Config) (link.Driver, error) {
			return NewDriver(conf.MQTTBrokerURL), nil
		},
		Present: func(conf *link.Config) bool { return conf.MQTTBrokerURL != "" },
	})
}

// Driver connects to endpoints announced on the broker.
type Driver struct {
	BrokerURL       string
	DiscoverTimeout time.Duration

	dial    dialFunc
	lock    sync.Mutex
	claimed map[link.Address]bool
}

// NewDriver creates a Driver for the broker at brokerURL.
func NewDriver(brokerURL string) *Driver {
	return &Driver{
		BrokerURL:       brokerURL,
		DiscoverTimeout: DefaultDiscoverTimeout,
		dial:            dialBroker,
		claimed:         make(map[link.Address]bool),
	}
}

// Name implements link.Driver.
func (d *Driver) Name() string {
	return DriverName
}

// Scan implements link.Driver. It collects the retained meta messages of
// endpoints for DiscoverTimeout.
func (d *Driver) Scan(ctx context.Context, addr *link.Address) ([]link.URI, error) {
	conn, err := d.dial(ctx, d.BrokerURL, "scan", nil)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	topic := TopicRoot + "/+/" + SuffixMeta
	if addr != nil {
		topic = Topic(*addr, SuffixMeta)
	}
	var lock sync.Mutex
	found := make(map[link.Address]link.URI)
	sub, err := conn.Subscribe(ctx, topic, func(topic string, payload []byte) {
		a, _, ok := ParseTopic(topic)
		if !ok {
			return
		}
		meta, err := ParseMeta(payload)
		if err != nil {
			glog.V(2).Infof("mqtt: invalid meta on %q: %v", topic, err)
			return
		}
		uri, ok := meta.URI(a)
		if !ok {
			glog.V(2).Infof("mqtt: invalid meta on %q: %+v", topic, meta)
			return
		}
		lock.Lock()
		found[a] = uri
		lock.Unlock()
	})
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	timer := time.NewTimer(d.DiscoverTimeout)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	lock.Lock()
	defer lock.Unlock()
	uris := make([]link.URI, 0, len(found))
	for _, uri := range found {
		uris = append(uris, uri)
	}
	sort.Slice(uris, func(i, j int) bool { return uris[i].Address < uris[j].Address })
	return uris, nil
}

// Connect implements link.Driver.
func (d *Driver) Connect(ctx context.Context, uri link.URI, r link.Receiver) (link.Link, error) {
	if uri.Scheme != link.SchemeMQTT {
		return nil, link.NewConnectError(uri, fmt.Errorf("scheme %q not supported", uri.Scheme))
	}
	if !d.claim(uri.Address) {
		return nil, link.NewConnectError(uri, link.ErrDeviceBusy)
	}
	l := &mqttLink{driver: d, uri: uri, r: r}
	conn, err := d.dial(ctx, d.BrokerURL, uri.Address.String(), l.connectionLost)
	if err == nil {
		l.conn = conn
		l.sub, err = conn.Subscribe(ctx, Topic(uri.Address, SuffixDown), l.frameReceived)
		if err != nil {
			conn.Close()
		}
	}
	if err != nil {
		d.release(uri.Address)
		return nil, link.NewConnectError(uri, err)
	}
	glog.V(2).Infof("mqtt %s: connected", uri)
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

type mqttLink struct {
	driver *Driver
	uri    link.URI
	conn   transport
	sub    io.Closer
	r      link.Receiver

	// serializes Receiver calls, no more calls after closed or lost.
	lock      sync.Mutex
	closed    bool
	lost      bool
	closeOnce sync.Once
	closeErr  error
}

// Send implements link.Link.
func (l *mqttLink) Send(ctx context.Context, pkt *crtp.Packet) error {
	l.lock.Lock()
	closed, lost := l.closed, l.lost
	l.lock.Unlock()
	switch {
	case closed:
		return link.ErrClosed
	case lost:
		return &link.LinkLostError{}
	}
	return l.conn.Publish(ctx, Topic(l.uri.Address, SuffixUp), codec.Encode(pkt), false)
}

// Status implements link.Statuser.
func (l *mqttLink) Status() string {
	return fmt.Sprintf("MQTT link driver (%s)", Topic(l.uri.Address, "*"))
}

func (l *mqttLink) frameReceived(topic string, payload []byte) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.closed || l.lost {
		return
	}
	pkt, err := codec.Decode(payload)
	if err != nil {
		l.r.FrameDropped(err)
		return
	}
	l.r.PacketReceived(pkt)
}

func (l *mqttLink) connectionLost(err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.closed || l.lost {
		return
	}
	l.lost = true
	l.r.LinkLost(err)
}

// Close implements link.Link.
func (l *mqttLink) Close() error {
	l.closeOnce.Do(func() {
		l.lock.Lock()
		l.closed = true
		l.lock.Unlock()
		l.sub.Close()
		l.closeErr = l.conn.Close()
		l.driver.release(l.uri.Address)
		glog.V(2).Infof("mqtt %s: closed", l.uri)
	})
	return l.closeErr
}
