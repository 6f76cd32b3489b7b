// Package all registers all drivers.
package all

import (
	// radio dongles.
	_ "github.com/robotalks/crtplink/pkg/link/radio"
	// simulator over shared memory.
	_ "github.com/robotalks/crtplink/pkg/link/sim"
	// remote endpoints over MQTT.
	_ "github.com/robotalks/crtplink/pkg/link/mqtt"
	// loopback.
	_ "github.com/robotalks/crtplink/pkg/link/debug"
)
