package mqtt

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/denisbrodbeck/machineid"
	"github.com/google/uuid"

	"github.com/robotalks/crtplink/pkg/link"
)

// TopicRoot is the first level of all topics.
const TopicRoot = "crtp"

// Topic suffixes. A remote endpoint publishes its Meta retained, receives
// frames on up and sends frames on down.
const (
	SuffixMeta = "meta"
	SuffixUp   = "up"
	SuffixDown = "down"
)

// Topic returns the topic of addr with suffix.
func Topic(addr link.Address, suffix string) string {
	return TopicRoot + "/" + addr.String() + "/" + suffix
}

// ParseTopic extracts the address and suffix from a topic.
func ParseTopic(topic string) (link.Address, string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != TopicRoot {
		return 0, "", false
	}
	addr, err := link.ParseAddress(parts[1])
	if err != nil {
		return 0, "", false
	}
	return addr, parts[2], true
}

// Meta describes a remote endpoint.
type Meta struct {
	Channel     int    `json:"channel"`
	DataRate    string `json:"datarate"`
	Description string `json:"description,omitempty"`
}

// ParseMeta decodes a meta payload.
func ParseMeta(payload []byte) (*Meta, error) {
	var m Meta
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// URI builds the mqtt URI of the endpoint at addr.
func (m *Meta) URI(addr link.Address) (link.URI, bool) {
	rate, ok := link.ParseDataRate(m.DataRate)
	if !ok || m.Channel < 0 || m.Channel > link.MaxRadioChannel {
		return link.URI{}, false
	}
	return link.URI{
		Scheme:   link.SchemeMQTT,
		Channel:  m.Channel,
		DataRate: rate,
		Address:  addr,
	}, true
}

var (
	machineID     string
	machineIDOnce sync.Once
)

// ClientID is the default client id prefix, derived from the machine id.
func ClientID() string {
	machineIDOnce.Do(func() {
		id, err := machineid.ID()
		if err != nil || id == "" {
			id = strings.ReplaceAll(uuid.NewString(), "-", "")
		}
		if len(id) > 12 {
			id = id[:12]
		}
		machineID = id
	})
	return "crtp:" + machineID
}
