package mqtt

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/crtplink/pkg/crtp"
	"github.com/robotalks/crtplink/pkg/link"
)

// Endpoint is the remote side of a link: it announces itself, receives
// what links send and sends frames back.
type Endpoint struct {
	Address link.Address

	conn    transport
	sub     io.Closer
	packets chan *crtp.Packet
}

// NewEndpoint connects to the broker and announces an endpoint at addr.
func NewEndpoint(ctx context.Context, brokerURL string, addr link.Address, meta Meta) (*Endpoint, error) {
	conn, err := Dial(ctx, brokerURL, "endpoint:"+addr.String(), nil)
	if err != nil {
		return nil, err
	}
	return newEndpoint(ctx, conn, addr, meta)
}

func newEndpoint(ctx context.Context, conn transport, addr link.Address, meta Meta) (*Endpoint, error) {
	e := &Endpoint{
		Address: addr,
		conn:    conn,
		packets: make(chan *crtp.Packet, link.DefaultQueueCapacity),
	}
	payload, err := json.Marshal(&meta)
	if err == nil {
		e.sub, err = conn.Subscribe(ctx, Topic(addr, SuffixUp), e.frameReceived)
	}
	if err == nil {
		if err = conn.Publish(ctx, Topic(addr, SuffixMeta), payload, true); err != nil {
			e.sub.Close()
		}
	}
	if err != nil {
		conn.Close()
		return nil, err
	}
	return e, nil
}

func (e *Endpoint) frameReceived(topic string, payload []byte) {
	pkt, err := codec.Decode(payload)
	if err != nil {
		glog.V(2).Infof("endpoint %s: %v", e.Address, err)
		return
	}
	select {
	case e.packets <- pkt:
	default:
		glog.Warningf("endpoint %s: packet dropped", e.Address)
	}
}

// Receive waits for a packet. It returns nil without error on timeout.
func (e *Endpoint) Receive(timeout time.Duration) (*crtp.Packet, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case pkt := <-e.packets:
		return pkt, nil
	case <-timer.C:
		return nil, nil
	}
}

// Send sends pkt to the connected link.
func (e *Endpoint) Send(ctx context.Context, pkt *crtp.Packet) error {
	return e.conn.Publish(ctx, Topic(e.Address, SuffixDown), codec.Encode(pkt), false)
}

// Close withdraws the announcement and disconnects.
func (e *Endpoint) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.conn.Publish(ctx, Topic(e.Address, SuffixMeta), nil, true); err != nil {
		glog.Warningf("endpoint %s: withdraw failed: %v", e.Address, err)
	}
	e.sub.Close()
	return e.conn.Close()
}
