package link

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config provides options for driver selection and sessions.
type Config struct {
	// SimOnly forces the simulated driver for the radio family
	// even when radio hardware is present.
	SimOnly bool
	// QueueCapacity is the receive queue size of a session.
	QueueCapacity int
	// SendTimeout bounds a single SendPacket.
	SendTimeout time.Duration
	// MQTTBrokerURL enables the MQTT driver when not empty.
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string
	// EnableDebugDriver enables the loopback driver.
	EnableDebugDriver bool
	// SimNamespace prefixes shared memory names of the simulated driver.
	SimNamespace string
	// Metrics registers driver counters when not nil.
	Metrics prometheus.Registerer
}

const (
	// DefaultQueueCapacity is the default receive queue size.
	DefaultQueueCapacity = 100
	// DefaultSendTimeout is the default timeout of SendPacket.
	DefaultSendTimeout = 500 * time.Millisecond
	// DefaultSimNamespace is the default shared memory prefix.
	DefaultSimNamespace = "crtpsim"
)

var defaultConfig = Config{
	QueueCapacity: DefaultQueueCapacity,
	SendTimeout:   DefaultSendTimeout,
	SimNamespace:  DefaultSimNamespace,
}

func init() {
	if val := os.Getenv("CRTP_SIM_ONLY"); val != "" {
		defaultConfig.SimOnly, _ = strconv.ParseBool(val)
	}
	if val := os.Getenv("CRTP_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
	if val := os.Getenv("CRTP_SIM_NAMESPACE"); val != "" {
		defaultConfig.SimNamespace = val
	}
	if val := os.Getenv("CRTP_DEBUG_DRIVER"); val != "" {
		defaultConfig.EnableDebugDriver, _ = strconv.ParseBool(val)
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.BoolVar(&defaultConfig.SimOnly, "sim-only", defaultConfig.SimOnly, "Use the simulated driver only.")
	flag.IntVar(&defaultConfig.QueueCapacity, "queue-cap", defaultConfig.QueueCapacity, "Receive queue capacity.")
	flag.DurationVar(&defaultConfig.SendTimeout, "send-timeout", defaultConfig.SendTimeout, "Timeout of sending a packet.")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt-url", defaultConfig.MQTTBrokerURL, "MQTT broker URL of remote links.")
	flag.BoolVar(&defaultConfig.EnableDebugDriver, "debug-driver", defaultConfig.EnableDebugDriver, "Enable the loopback debug driver.")
	flag.StringVar(&defaultConfig.SimNamespace, "sim-ns", defaultConfig.SimNamespace, "Shared memory namespace of the simulator.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

func (c *Config) queueCapacity() int {
	if c.QueueCapacity > 0 {
		return c.QueueCapacity
	}
	return DefaultQueueCapacity
}

func (c *Config) sendTimeout() time.Duration {
	if c.SendTimeout > 0 {
		return c.SendTimeout
	}
	return DefaultSendTimeout
}

// Namespace returns the simulator namespace, falling back to the default.
func (c *Config) Namespace() string {
	if c.SimNamespace != "" {
		return c.SimNamespace
	}
	return DefaultSimNamespace
}
