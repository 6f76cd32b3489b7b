package link

import (
	"sync"
	"time"

	"github.com/robotalks/crtplink/pkg/crtp"
)

// Queue is a bounded FIFO of received packets.
// When full, Push drops the oldest packet so the producer never blocks.
type Queue struct {
	// OnOverflow is called (without lock) each time a packet is dropped.
	OnOverflow func()

	lock     sync.Mutex
	items    []*crtp.Packet
	head     int
	count    int
	closed   bool
	overflow uint64
	// closed and replaced whenever a packet arrives or the queue closes.
	signal chan struct{}
}

// NewQueue creates a Queue holding at most capacity packets.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{
		items:  make([]*crtp.Packet, capacity),
		signal: make(chan struct{}),
	}
}

// Cap returns the capacity.
func (q *Queue) Cap() int {
	return len(q.items)
}

// Len returns the number of queued packets.
func (q *Queue) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.count
}

// Overflows returns the number of dropped packets.
func (q *Queue) Overflows() uint64 {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.overflow
}

// Push appends a packet. It returns ErrQueueClosed after Close.
func (q *Queue) Push(pkt *crtp.Packet) error {
	var dropped bool
	q.lock.Lock()
	if q.closed {
		q.lock.Unlock()
		return ErrQueueClosed
	}
	capacity := len(q.items)
	if q.count == capacity {
		q.items[q.head] = nil
		q.head = (q.head + 1) % capacity
		q.count--
		q.overflow++
		dropped = true
	}
	q.items[(q.head+q.count)%capacity] = pkt
	q.count++
	q.notifyLocked()
	q.lock.Unlock()

	if dropped {
		if fn := q.OnOverflow; fn != nil {
			fn()
		}
	}
	return nil
}

// Pop removes the oldest packet.
// A zero timeout doesn't wait, a negative one waits until a packet arrives
// or the queue is closed. It returns ErrQueueEmpty on timeout, and
// ErrQueueClosed once the queue is closed and empty.
func (q *Queue) Pop(timeout time.Duration) (*crtp.Packet, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	for {
		q.lock.Lock()
		if q.count > 0 {
			pkt := q.items[q.head]
			q.items[q.head] = nil
			q.head = (q.head + 1) % len(q.items)
			q.count--
			q.lock.Unlock()
			return pkt, nil
		}
		if q.closed {
			q.lock.Unlock()
			return nil, ErrQueueClosed
		}
		signal := q.signal
		q.lock.Unlock()

		if timeout == 0 {
			return nil, ErrQueueEmpty
		}
		select {
		case <-signal:
		case <-expired:
			return nil, ErrQueueEmpty
		}
	}
}

// Close wakes up all waiting consumers. Queued packets remain available.
func (q *Queue) Close() {
	q.lock.Lock()
	if !q.closed {
		q.closed = true
		q.notifyLocked()
	}
	q.lock.Unlock()
}

// Drain discards all queued packets and returns how many were discarded.
func (q *Queue) Drain() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	n := q.count
	for i := range q.items {
		q.items[i] = nil
	}
	q.head, q.count = 0, 0
	return n
}

func (q *Queue) notifyLocked() {
	close(q.signal)
	q.signal = make(chan struct{})
}
