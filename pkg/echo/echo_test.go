package echo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/crtplink/pkg/crtp"
	"github.com/robotalks/crtplink/pkg/framework"
)

type chanEndpoint struct {
	in   chan *crtp.Packet
	out  chan *crtp.Packet
	fail error
}

func (e *chanEndpoint) Receive(timeout time.Duration) (*crtp.Packet, error) {
	select {
	case pkt, ok := <-e.in:
		if !ok {
			return nil, e.fail
		}
		return pkt, nil
	case <-time.After(timeout):
		return nil, nil
	}
}

func (e *chanEndpoint) Send(ctx context.Context, pkt *crtp.Packet) error {
	e.out <- pkt
	return nil
}

func TestEcho(t *testing.T) {
	ep := &chanEndpoint{in: make(chan *crtp.Packet, 1), out: make(chan *crtp.Packet, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	runner := framework.NewRunnerWith(ctx).Go(New("echo", ep))

	pkt, err := crtp.NewPacket(crtp.PortConsole, 0, []byte("hi"))
	require.NoError(t, err)
	ep.in <- pkt
	select {
	case got := <-ep.out:
		require.True(t, pkt.Equal(got))
	case <-time.After(time.Second):
		t.Fatal("no echo")
	}
	cancel()
	require.NoError(t, runner.Wait())
}

func TestEchoStopsOnError(t *testing.T) {
	failure := errors.New("gone")
	ep := &chanEndpoint{in: make(chan *crtp.Packet), fail: failure}
	close(ep.in)
	err := New("echo", ep).Run(context.Background())
	require.Equal(t, failure, err)
}
