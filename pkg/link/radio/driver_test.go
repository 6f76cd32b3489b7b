package radio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/crtplink/pkg/crtp"
	"github.com/robotalks/crtplink/pkg/link"
)

type rateChannel struct {
	rate link.DataRate
	ch   int
}

type fakeDongle struct {
	lock     sync.Mutex
	channel  int
	rate     link.DataRate
	addr     link.Address
	arc      int
	peers    map[rateChannel]bool
	downlink [][]byte
	sent     [][]byte
	// dropUser doesn't acknowledge frames other than null frames.
	dropUser bool
	failErr  error
	closes   int
}

func newFakeDongle(peers ...rateChannel) *fakeDongle {
	d := &fakeDongle{peers: make(map[rateChannel]bool)}
	for _, p := range peers {
		d.peers[p] = true
	}
	return d
}

func (d *fakeDongle) SetChannel(ch int) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.channel = ch
	return checkChannel(ch)
}

func (d *fakeDongle) SetDataRate(rate link.DataRate) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.rate = rate
	return nil
}

func (d *fakeDongle) SetAddress(addr link.Address) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.addr = addr
	return nil
}

func (d *fakeDongle) SetARC(n int) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.arc = n
	return nil
}

func (d *fakeDongle) SetARDBytes(n int) error { return nil }
func (d *fakeDongle) SetPower(p Power) error  { return nil }
func (d *fakeDongle) Version() string         { return "0.53" }

func (d *fakeDongle) SendPacket(frame []byte) (*Ack, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.failErr != nil {
		return nil, d.failErr
	}
	if !crtp.IsEmptyFrame(frame) {
		d.sent = append(d.sent, append([]byte(nil), frame...))
		if d.dropUser {
			return &Ack{}, nil
		}
	}
	if !d.peers[rateChannel{d.rate, d.channel}] {
		return &Ack{}, nil
	}
	ack := &Ack{Received: true}
	if len(d.downlink) > 0 {
		ack.Data, d.downlink = d.downlink[0], d.downlink[1:]
	}
	return ack, nil
}

func (d *fakeDongle) Close() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.closes++
	return nil
}

func (d *fakeDongle) inject(frames ...[]byte) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.downlink = append(d.downlink, frames...)
}

func (d *fakeDongle) setFail(err error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.failErr = err
}

func (d *fakeDongle) setDropUser(drop bool) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.dropUser = drop
}

func (d *fakeDongle) sentFrames() [][]byte {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([][]byte(nil), d.sent...)
}

type fakeFinder []*fakeDongle

func (f fakeFinder) Count() (int, error) {
	return len(f), nil
}

func (f fakeFinder) Open(index int) (Dongle, error) {
	if index < 0 || index >= len(f) {
		return nil, link.ErrDeviceNotFound
	}
	return f[index], nil
}

func testSession(t *testing.T, dongles ...*fakeDongle) (*link.Registry, *link.Session) {
	saved := DefaultFinder
	DefaultFinder = fakeFinder(dongles)
	t.Cleanup(func() { DefaultFinder = saved })

	conf := link.NewConfig()
	conf.SimOnly = false
	conf.SendTimeout = time.Second
	reg, err := link.NewRegistry(conf)
	require.NoError(t, err)
	require.Equal(t, []string{DriverName}, reg.Drivers())
	s, err := reg.Open(context.Background(), "radio://0/80/2M/E7E7E7E7E7")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return reg, s
}

func TestParseAck(t *testing.T) {
	ack := ParseAck([]byte{0x33, 0x0c, 1})
	require.True(t, ack.Received)
	require.True(t, ack.PowerDetector)
	require.Equal(t, 3, ack.Retries)
	require.Equal(t, []byte{0x0c, 1}, ack.Data)

	ack = ParseAck([]byte{0x10})
	require.False(t, ack.Received)
	require.Empty(t, ack.Data)

	require.False(t, ParseAck(nil).Received)
}

func TestScan(t *testing.T) {
	dongle := newFakeDongle(rateChannel{link.DataRate2M, 80}, rateChannel{link.DataRate250K, 10})
	d := NewDriver(fakeFinder{dongle})
	uris, err := d.Scan(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, uris, 2)
	require.Equal(t, "radio://0/10/250K/E7E7E7E7E7", uris[0].String())
	require.Equal(t, "radio://0/80/2M/E7E7E7E7E7", uris[1].String())
	require.Equal(t, 1, dongle.closes)

	addr := link.Address(0xE7E7E7E701)
	uris, err = d.Scan(context.Background(), &addr)
	require.NoError(t, err)
	require.Len(t, uris, 2)
	require.Equal(t, addr, uris[0].Address)
	require.Equal(t, addr, dongle.addr)
}

func TestScanCanceled(t *testing.T) {
	d := NewDriver(fakeFinder{newFakeDongle()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Scan(ctx, nil)
	require.Equal(t, context.Canceled, err)
}

func TestConnectSendReceive(t *testing.T) {
	dongle := newFakeDongle(rateChannel{link.DataRate2M, 80})
	_, s := testSession(t, dongle)
	require.True(t, s.IsConnected())
	require.Equal(t, "radio://0/80/2M/E7E7E7E7E7 connected (radio): Crazyradio version 0.53", s.Status())

	pkt, err := crtp.NewPacket(crtp.PortCommander, 0, []byte{1, 2})
	require.NoError(t, err)
	require.NoError(t, s.SendPacket(pkt))
	require.Equal(t, [][]byte{{0x3c, 1, 2}}, dongle.sentFrames())

	dongle.inject([]byte{0xf3}, []byte{0x0c, 'o', 'k'})
	got, err := s.ReceivePacket(time.Second)
	require.NoError(t, err)
	require.Equal(t, crtp.PortConsole, got.Port())
	require.Equal(t, []byte("ok"), got.Data())
	require.EqualValues(t, 1, s.Stats().Received)
}

func TestMalformedAckDropped(t *testing.T) {
	dongle := newFakeDongle(rateChannel{link.DataRate2M, 80})
	_, s := testSession(t, dongle)
	dongle.inject(make([]byte, crtp.MaxFrameSize+1), []byte{0x0c, 1})
	got, err := s.ReceivePacket(time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte{1}, got.Data())
	require.EqualValues(t, 1, s.Stats().Dropped)
	require.True(t, s.IsConnected())
}

func TestSendNoAck(t *testing.T) {
	dongle := newFakeDongle(rateChannel{link.DataRate2M, 80})
	dongle.dropUser = true
	_, s := testSession(t, dongle)
	pkt, err := crtp.NewPacket(crtp.PortParam, 0, []byte{1})
	require.NoError(t, err)
	err = s.SendPacket(pkt)
	var se *link.SendError
	require.True(t, errors.As(err, &se))
	require.True(t, errors.Is(err, link.ErrNoAck))
	require.Len(t, dongle.sentFrames(), SendAttempts)
	require.True(t, s.IsConnected())

	dongle.setDropUser(false)
	require.NoError(t, s.SendPacket(pkt))
}

func TestLinkLostAfterLostAcks(t *testing.T) {
	// no peer on the channel
	dongle := newFakeDongle()
	_, s := testSession(t, dongle)
	_, err := s.ReceivePacket(2 * time.Second)
	require.True(t, errors.Is(err, link.ErrLinkLost))
	require.True(t, errors.Is(err, ErrTooManyLostAcks))
	require.Equal(t, link.StateLinkLost, s.State())
}

func TestLinkLostOnUSBError(t *testing.T) {
	dongle := newFakeDongle(rateChannel{link.DataRate2M, 80})
	_, s := testSession(t, dongle)
	unplugged := errors.New("unplugged")
	dongle.setFail(unplugged)
	_, err := s.ReceivePacket(2 * time.Second)
	require.True(t, errors.Is(err, link.ErrLinkLost))
	require.True(t, errors.Is(err, unplugged))

	pkt, _ := crtp.NewPacket(crtp.PortParam, 0, nil)
	require.True(t, errors.Is(s.SendPacket(pkt), link.ErrLinkLost))
}

func TestConnectBusyAndRelease(t *testing.T) {
	dongle := newFakeDongle(rateChannel{link.DataRate2M, 80})
	reg, s := testSession(t, dongle)
	_, err := reg.Open(context.Background(), "radio://0/80/2M/E7E7E7E7E7")
	require.True(t, errors.Is(err, link.ErrDeviceBusy))

	uris, err := reg.ScanInterfaces(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, uris)

	require.NoError(t, s.Close())
	require.Equal(t, 1, dongle.closes)
	s, err = reg.Open(context.Background(), "radio://0/80/2M/E7E7E7E7E7")
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestConnectMissingDongle(t *testing.T) {
	_, s := testSession(t, newFakeDongle(rateChannel{link.DataRate2M, 80}))
	defer s.Close()
	d := NewDriver(fakeFinder{})
	_, err := d.Connect(context.Background(), link.MustParseURI("radio://1/80/2M/E7E7E7E7E7"), s)
	var ce *link.ConnectError
	require.True(t, errors.As(err, &ce))
	require.True(t, errors.Is(err, link.ErrDeviceNotFound))
}
