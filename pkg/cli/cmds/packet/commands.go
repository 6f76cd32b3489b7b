package packet

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/crtplink/pkg/cli/sh"
	"github.com/robotalks/crtplink/pkg/crtp"
)

const defaultRecvTimeout = time.Second

// ParsePacket parses PORT CHANNEL [HEX...] into a packet. Hex bytes may be
// given as one string or separately.
func ParsePacket(args []string) (*crtp.Packet, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("PORT and CHANNEL required")
	}
	port, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		return nil, fmt.Errorf("Invalid PORT: %v", err)
	}
	ch, err := strconv.ParseUint(args[1], 0, 8)
	if err != nil {
		return nil, fmt.Errorf("Invalid CHANNEL: %v", err)
	}
	data, err := hex.DecodeString(strings.Join(args[2:], ""))
	if err != nil {
		return nil, fmt.Errorf("Invalid DATA: %v", err)
	}
	return crtp.NewPacket(crtp.Port(port), crtp.Channel(ch), data)
}

func parseTimeout(args []string) (time.Duration, error) {
	if len(args) == 0 {
		return defaultRecvTimeout, nil
	}
	timeout, err := time.ParseDuration(args[0])
	if err != nil {
		return 0, fmt.Errorf("Invalid TIMEOUT: %v", err)
	}
	return timeout, nil
}

// remaining returns the time left before deadline, or false once it
// passed. ReceivePacket treats a negative timeout as forever.
func remaining(deadline time.Time) (time.Duration, bool) {
	remains := time.Until(deadline)
	if remains <= 0 {
		return 0, false
	}
	return remains, true
}

var (
	// SendCmd sends a packet.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"s"},
		Help:    "PORT CHANNEL [HEX...]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			pkt, err := ParsePacket(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			if err = sh.ShellFrom(c).Session.SendPacket(pkt); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// RecvCmd receives one packet.
	RecvCmd = ishell.Cmd{
		Name:    "recv",
		Aliases: []string{"r"},
		Help:    "[TIMEOUT]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			timeout, err := parseTimeout(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			pkt, err := s.Session.ReceivePacket(timeout)
			if err != nil {
				c.Err(err)
				return
			}
			if pkt == nil {
				c.Println("No packet")
				return
			}
			if s.OutputJSON {
				sh.PrintJSON(c, map[string]interface{}{
					"port":    pkt.Port(),
					"channel": pkt.Channel(),
					"data":    hex.EncodeToString(pkt.Data()),
				})
				return
			}
			c.Println(pkt.String())
		}),
	}

	// ConsoleCmd prints console output for a while.
	ConsoleCmd = ishell.Cmd{
		Name:    "console",
		Aliases: []string{"con"},
		Help:    "[DURATION]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			duration, err := parseTimeout(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			deadline := time.Now().Add(duration)
			for {
				remains, ok := remaining(deadline)
				if !ok {
					break
				}
				pkt, err := s.Session.ReceivePacket(remains)
				if err != nil {
					c.Err(err)
					return
				}
				if pkt != nil && pkt.Port() == crtp.PortConsole {
					c.Print(string(pkt.Data()))
				}
			}
		}),
	}
)

func init() {
	sh.AddCmds(&SendCmd, &RecvCmd, &ConsoleCmd)
}
