package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/crtplink/pkg/crtp"
)

// State is the state of a Session.
type State int32

// Session states.
const (
	StateConnecting State = iota
	StateConnected
	StateLinkLost
	StateClosed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateLinkLost:
		return "link-lost"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Session is the caller's handle of one open link.
// All methods are safe for concurrent use.
type Session struct {
	uri         URI
	driver      string
	sendTimeout time.Duration
	queue       *Queue
	metrics     *DriverMetrics
	stats       statsCounter

	lock    sync.Mutex
	state   State
	link    Link
	lostErr error
}

func newSession(uri URI, driver string, conf *Config, metrics *DriverMetrics) *Session {
	s := &Session{
		uri:         uri,
		driver:      driver,
		sendTimeout: conf.sendTimeout(),
		queue:       NewQueue(conf.queueCapacity()),
		metrics:     metrics,
	}
	s.queue.OnOverflow = s.queueOverflow
	return s
}

// attach completes connecting. A link lost while connecting is preserved.
func (s *Session) attach(l Link) {
	s.lock.Lock()
	s.link = l
	if s.state == StateConnecting {
		s.state = StateConnected
	}
	s.lock.Unlock()
}

func (s *Session) abort() {
	s.lock.Lock()
	s.state = StateClosed
	s.lock.Unlock()
	s.queue.Close()
	s.queue.Drain()
}

// URI returns the URI the session is connected to.
func (s *Session) URI() URI {
	return s.uri
}

// Driver returns the name of the driver serving the session.
func (s *Session) Driver() string {
	return s.driver
}

// State returns the current state.
func (s *Session) State() State {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state
}

// IsConnected reports whether the link is usable.
func (s *Session) IsConnected() bool {
	return s.State() == StateConnected
}

// Stats returns a snapshot of session counters.
func (s *Session) Stats() Stats {
	return s.stats.snapshot()
}

// Status describes the session and its link.
func (s *Session) Status() string {
	s.lock.Lock()
	state, l := s.state, s.link
	s.lock.Unlock()
	status := fmt.Sprintf("%s %s (%s)", s.uri, state, s.driver)
	if st, ok := l.(Statuser); ok {
		status += ": " + st.Status()
	}
	return status
}

// SendPacket sends a packet bounded by the configured send timeout.
func (s *Session) SendPacket(pkt *crtp.Packet) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
	defer cancel()
	return s.SendPacketContext(ctx, pkt)
}

// SendPacketContext sends a packet bounded by ctx and the configured
// send timeout, whichever expires first.
func (s *Session) SendPacketContext(ctx context.Context, pkt *crtp.Packet) error {
	l, err := s.usableLink()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()
	if err = l.Send(ctx, pkt); err != nil {
		if stErr := s.stateErr(); stErr != nil {
			return stErr
		}
		return sendErr(err)
	}
	atomic.AddUint64(&s.stats.sent, 1)
	s.metrics.FramesSent.Inc()
	glog.V(4).Infof("%s SND %s", s.uri, pkt)
	return nil
}

// ReceivePacket waits for a packet up to timeout. A zero timeout polls,
// a negative one waits indefinitely. It returns (nil, nil) on timeout.
// After the link is lost, already received packets are returned before
// the LinkLostError.
func (s *Session) ReceivePacket(timeout time.Duration) (*crtp.Packet, error) {
	if s.State() == StateClosed {
		return nil, ErrClosed
	}
	pkt, err := s.queue.Pop(timeout)
	switch err {
	case nil:
		return pkt, nil
	case ErrQueueEmpty:
		return nil, nil
	}
	if err = s.stateErr(); err != nil {
		return nil, err
	}
	return nil, ErrClosed
}

// Close closes the link and discards queued packets.
// Calling Close more than once is a no-op.
func (s *Session) Close() error {
	s.lock.Lock()
	if s.state == StateClosed {
		s.lock.Unlock()
		return nil
	}
	s.state = StateClosed
	l := s.link
	s.lock.Unlock()

	s.queue.Close()
	var err error
	if l != nil {
		err = l.Close()
	}
	if n := s.queue.Drain(); n > 0 {
		glog.V(2).Infof("%s discarded %d packets", s.uri, n)
	}
	glog.Infof("%s closed", s.uri)
	return err
}

// PacketReceived implements Receiver.
func (s *Session) PacketReceived(pkt *crtp.Packet) {
	if err := s.queue.Push(pkt); err != nil {
		return
	}
	atomic.AddUint64(&s.stats.received, 1)
	s.metrics.FramesReceived.Inc()
	glog.V(4).Infof("%s RCV %s", s.uri, pkt)
}

// FrameDropped implements Receiver.
func (s *Session) FrameDropped(err error) {
	atomic.AddUint64(&s.stats.dropped, 1)
	s.metrics.FramesDropped.Inc()
	glog.V(2).Infof("%s frame dropped: %v", s.uri, err)
}

// LinkLost implements Receiver.
func (s *Session) LinkLost(err error) {
	s.lock.Lock()
	if s.state == StateLinkLost || s.state == StateClosed {
		s.lock.Unlock()
		return
	}
	s.state = StateLinkLost
	s.lostErr = &LinkLostError{Err: err}
	s.lock.Unlock()

	s.metrics.LinkLost.Inc()
	glog.Warningf("%s link lost: %v", s.uri, err)
	s.queue.Close()
}

func (s *Session) queueOverflow() {
	atomic.AddUint64(&s.stats.overflowed, 1)
	s.metrics.QueueOverflow.Inc()
}

func (s *Session) usableLink() (Link, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	switch s.state {
	case StateConnected:
		return s.link, nil
	case StateLinkLost:
		return nil, s.lostErr
	}
	return nil, ErrClosed
}

// stateErr returns the error representing a terminal state, or nil.
func (s *Session) stateErr() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	switch s.state {
	case StateLinkLost:
		return s.lostErr
	case StateClosed:
		return ErrClosed
	}
	return nil
}

func sendErr(err error) error {
	var se *SendError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = ErrSendTimeout
	}
	return &SendError{Err: err}
}
