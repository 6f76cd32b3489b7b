package link

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/robotalks/crtplink/pkg/crtp"
)

// Driver owns one kind of physical or virtual channel.
type Driver interface {
	// Name identifies the driver in logs and metrics.
	Name() string
	// Scan probes reachable endpoints, optionally filtered by address.
	// It never affects open links.
	Scan(ctx context.Context, addr *Address) ([]URI, error)
	// Connect opens the channel named by uri and starts the background
	// receive activity which reports to r.
	Connect(ctx context.Context, uri URI, r Receiver) (Link, error)
}

// Link is an open channel created by Driver.Connect.
type Link interface {
	// Send hands one packet to the channel. It returns once the channel
	// accepted (or acknowledged) the frame, or ctx expires.
	Send(ctx context.Context, pkt *crtp.Packet) error
	// Close stops the background activity, waits for it and releases
	// the channel.
	Close() error
}

// Statuser is optionally implemented by a Link to describe itself.
type Statuser interface {
	Status() string
}

// Receiver consumes what a Link's background activity produces.
// Calls may come from any goroutine but never concurrently for one Link.
type Receiver interface {
	PacketReceived(*crtp.Packet)
	// FrameDropped reports a malformed frame which was discarded.
	FrameDropped(error)
	// LinkLost reports the channel is no longer usable.
	// No more calls follow.
	LinkLost(error)
}

// Role determines how a driver participates in driver selection.
type Role int

// Roles.
const (
	// RoleRadio drivers talk to real radio hardware.
	RoleRadio Role = iota
	// RoleSimulated drivers stand in for the radio family.
	RoleSimulated
	// RoleAux drivers are enabled independently.
	RoleAux
)

// String implements fmt.Stringer.
func (r Role) String() string {
	switch r {
	case RoleRadio:
		return "radio"
	case RoleSimulated:
		return "simulated"
	case RoleAux:
		return "aux"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// Descriptor describes a driver type.
type Descriptor struct {
	Name    string
	Role    Role
	Schemes []string
	// New instantiates the driver.
	New func(*Config) (Driver, error)
	// Present reports whether the driver is usable, e.g. hardware is
	// plugged in or it's enabled by configuration. nil means always.
	Present func(*Config) bool
}

// Handles reports whether the descriptor claims the scheme.
func (d *Descriptor) Handles(scheme string) bool {
	for _, s := range d.Schemes {
		if s == scheme {
			return true
		}
	}
	return false
}

func (d *Descriptor) present(conf *Config) bool {
	return d.Present == nil || d.Present(conf)
}

var (
	descriptors     = make(map[string]*Descriptor)
	descriptorsLock sync.RWMutex
)

// RegisterDriver registers a driver descriptor. It's intended to be
// called from init.
func RegisterDriver(desc Descriptor) {
	if desc.Name == "" || desc.New == nil {
		panic("link: invalid driver descriptor")
	}
	descriptorsLock.Lock()
	defer descriptorsLock.Unlock()
	if _, exist := descriptors[desc.Name]; exist {
		panic("link: driver " + desc.Name + " registered twice")
	}
	descriptors[desc.Name] = &desc
}

// Descriptors returns registered descriptors ordered by role then name.
func Descriptors() []Descriptor {
	descriptorsLock.RLock()
	list := make([]Descriptor, 0, len(descriptors))
	for _, desc := range descriptors {
		list = append(list, *desc)
	}
	descriptorsLock.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		if list[i].Role != list[j].Role {
			return list[i].Role < list[j].Role
		}
		return list[i].Name < list[j].Name
	})
	return list
}
