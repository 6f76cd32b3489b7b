package link

import (
	"errors"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds driver level counters.
type Metrics struct {
	FramesSent     *prometheus.CounterVec
	FramesReceived *prometheus.CounterVec
	FramesDropped  *prometheus.CounterVec
	QueueOverflow  *prometheus.CounterVec
	LinkLost       *prometheus.CounterVec
}

// NewMetrics creates counters and registers them on reg if not nil.
// Counters already registered on reg are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		FramesSent:     counterVec(reg, "crtp_frames_sent_total", "Frames handed to the channel."),
		FramesReceived: counterVec(reg, "crtp_frames_received_total", "Packets decoded from the channel."),
		FramesDropped:  counterVec(reg, "crtp_frames_dropped_total", "Malformed frames discarded."),
		QueueOverflow:  counterVec(reg, "crtp_queue_overflow_total", "Packets dropped because the receive queue was full."),
		LinkLost:       counterVec(reg, "crtp_link_lost_total", "Links lost due to transport failures."),
	}
}

func counterVec(reg prometheus.Registerer, name, help string) *prometheus.CounterVec {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, []string{"driver"})
	if reg == nil {
		return vec
	}
	if err := reg.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
		panic(err)
	}
	return vec
}

// DriverMetrics are counters curried for one driver.
type DriverMetrics struct {
	FramesSent     prometheus.Counter
	FramesReceived prometheus.Counter
	FramesDropped  prometheus.Counter
	QueueOverflow  prometheus.Counter
	LinkLost       prometheus.Counter
}

// For returns counters for the named driver.
func (m *Metrics) For(driver string) *DriverMetrics {
	labels := prometheus.Labels{"driver": driver}
	return &DriverMetrics{
		FramesSent:     m.FramesSent.With(labels),
		FramesReceived: m.FramesReceived.With(labels),
		FramesDropped:  m.FramesDropped.With(labels),
		QueueOverflow:  m.QueueOverflow.With(labels),
		LinkLost:       m.LinkLost.With(labels),
	}
}

// Stats are per session counters.
type Stats struct {
	Sent       uint64
	Received   uint64
	Dropped    uint64
	Overflowed uint64
}

type statsCounter struct {
	sent       uint64
	received   uint64
	dropped    uint64
	overflowed uint64
}

func (c *statsCounter) snapshot() Stats {
	return Stats{
		Sent:       atomic.LoadUint64(&c.sent),
		Received:   atomic.LoadUint64(&c.received),
		Dropped:    atomic.LoadUint64(&c.dropped),
		Overflowed: atomic.LoadUint64(&c.overflowed),
	}
}
