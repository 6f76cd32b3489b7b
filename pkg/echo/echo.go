// Package echo implements peers which send every received packet back.
package echo

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/crtplink/pkg/crtp"
)

// Endpoint is the peer side of a link.
type Endpoint interface {
	// Receive returns nil without error on timeout.
	Receive(timeout time.Duration) (*crtp.Packet, error)
	Send(ctx context.Context, pkt *crtp.Packet) error
}

// PollInterval bounds each Receive so Run notices cancellation.
var PollInterval = 100 * time.Millisecond

// Echo sends back what Endpoint receives.
type Echo struct {
	name     string
	endpoint Endpoint
}

// New creates an Echo.
func New(name string, endpoint Endpoint) *Echo {
	return &Echo{name: name, endpoint: endpoint}
}

// Name implements framework.Named.
func (e *Echo) Name() string {
	return e.name
}

// Run implements framework.Runnable.
func (e *Echo) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		pkt, err := e.endpoint.Receive(PollInterval)
		if err != nil {
			return err
		}
		if pkt == nil {
			continue
		}
		glog.V(4).Infof("%s ECHO %s", e.name, pkt)
		if err = e.endpoint.Send(ctx, pkt); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			glog.Warningf("%s: echo failed: %v", e.name, err)
		}
	}
}
