package sim

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robotalks/crtplink/pkg/crtp"
	"github.com/robotalks/crtplink/pkg/framework"
	"github.com/robotalks/crtplink/pkg/link"
	"github.com/robotalks/crtplink/pkg/shm"
)

// A slot carries one frame: [length][header][payload padded to 30 bytes],
// where length is the payload length.
const SlotSize = 2 + crtp.MaxPayload

// Direction names of the two regions of an address.
const (
	// Up carries frames from the link to the simulator.
	Up = "up"
	// Down carries frames from the simulator to the link.
	Down = "down"
)

// pollSlice bounds each semaphore wait so waiters notice cancellation.
var pollSlice = 50 * time.Millisecond

// RegionName returns the shared memory name of one direction of addr.
func RegionName(ns string, addr link.Address, dir string) string {
	return fmt.Sprintf("%s.%s.%s", ns, addr, dir)
}

// ReadyName is the semaphore posted when a slot is filled.
func ReadyName(region string) string {
	return region + ".ready"
}

// FreeName is the semaphore posted when a slot is consumed.
func FreeName(region string) string {
	return region + ".free"
}

// EncodeSlot writes pkt into slot.
func EncodeSlot(slot []byte, pkt *crtp.Packet) {
	frame := crtp.Encode(pkt)
	slot[0] = byte(len(frame) - 1)
	n := copy(slot[1:SlotSize], frame)
	for i := 1 + n; i < SlotSize; i++ {
		slot[i] = 0
	}
}

// DecodeSlot reads a packet from slot. It returns a nil packet for a
// keep-alive frame.
func DecodeSlot(slot []byte) (*crtp.Packet, error) {
	size := int(slot[0])
	if size > crtp.MaxPayload {
		return nil, &crtp.DecodeError{Reason: crtp.ReasonTooLong, Size: size + 1}
	}
	frame := slot[1 : 2+size]
	if crtp.IsEmptyFrame(frame) {
		return nil, nil
	}
	return crtp.Decode(frame)
}

// channel is one direction: a slot guarded by a ready/free semaphore
// pair. A writer waits for free, fills the slot and posts ready. A reader
// waits for ready, consumes the slot and posts free.
type channel struct {
	name   string
	region *shm.Region
	ready  *shm.Semaphore
	free   *shm.Semaphore
}

// openChannel opens the objects created by the simulator.
func openChannel(name string) (*channel, error) {
	c := &channel{name: name}
	var err error
	if c.region, err = shm.OpenRegion(name, SlotSize); err == nil {
		if c.ready, err = shm.OpenSemaphore(ReadyName(name)); err == nil {
			c.free, err = shm.OpenSemaphore(FreeName(name))
		}
	}
	if err != nil {
		c.close()
		if os.IsNotExist(err) {
			return nil, link.ErrSimulatorNotRunning
		}
		return nil, err
	}
	return c, nil
}

// createChannel replaces stale objects and creates an empty channel.
// Semaphores are created before the region, as others use the region to
// tell whether the channel exists.
func createChannel(name string) (*channel, error) {
	removeChannel(name)
	c := &channel{name: name}
	var err error
	if c.ready, err = shm.CreateSemaphore(ReadyName(name), 0); err == nil {
		if c.free, err = shm.CreateSemaphore(FreeName(name), 1); err == nil {
			c.region, err = shm.CreateRegion(name, SlotSize)
		}
	}
	if err != nil {
		c.close()
		removeChannel(name)
		return nil, err
	}
	return c, nil
}

func removeChannel(name string) error {
	var errs framework.AggregatedError
	return errs.Add(
		shm.UnlinkRegion(name),
		shm.UnlinkSemaphore(ReadyName(name)),
		shm.UnlinkSemaphore(FreeName(name)),
	).Aggregate()
}

func (c *channel) exists() bool {
	return c.region.Exists()
}

// write waits for the slot to be free, until ctx is done or done is closed.
func (c *channel) write(ctx context.Context, done <-chan struct{}, pkt *crtp.Packet) error {
	if err := waitSem(ctx, done, c.free); err != nil {
		return err
	}
	EncodeSlot(c.region.Bytes(), pkt)
	return c.ready.Post()
}

// read waits up to timeout for a filled slot. The slot is released even
// if it doesn't decode.
func (c *channel) read(timeout time.Duration) (*crtp.Packet, error) {
	if err := c.ready.Wait(timeout); err != nil {
		return nil, err
	}
	pkt, err := DecodeSlot(c.region.Bytes())
	if postErr := c.free.Post(); postErr != nil {
		return nil, postErr
	}
	return pkt, err
}

func (c *channel) close() error {
	var errs framework.AggregatedError
	if c.region != nil {
		errs.Add(c.region.Close())
	}
	if c.ready != nil {
		errs.Add(c.ready.Close())
	}
	if c.free != nil {
		errs.Add(c.free.Close())
	}
	return errs.Aggregate()
}

func waitSem(ctx context.Context, done <-chan struct{}, sem *shm.Semaphore) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return link.ErrClosed
		default:
		}
		wait := pollSlice
		if deadline, ok := ctx.Deadline(); ok {
			if remains := time.Until(deadline); remains < wait {
				wait = remains
			}
		}
		if wait <= 0 {
			return context.DeadlineExceeded
		}
		if err := sem.Wait(wait); err != shm.ErrTimeout {
			return err
		}
	}
}
