package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/crtplink/pkg/link"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	// ConnectURI is connected before running commands when not empty.
	ConnectURI string

	Shell    *ishell.Shell
	Registry *link.Registry
	Session  *link.Session
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
	scanTimeout       = 30 * time.Second
)

var (
	// flags

	evalOnly   bool
	outputJSON bool
	connectURI string

	// commands
	commands = []*ishell.Cmd{
		&ScanCmd,
		&ConnectCmd,
		&DisconnectCmd,
		&StatusCmd,
		&DriversCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	flag.StringVar(&connectURI, "uri", connectURI, "Link URI to connect at start.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(reg *link.Registry) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		ConnectURI:  connectURI,

		Shell:    ishell.New(),
		Registry: reg,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Session == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// PrintJSON prints v in JSON.
func PrintJSON(c *ishell.Context, v interface{}) error {
	out, err := json.Marshal(v)
	if err != nil {
		c.Err(err)
		return err
	}
	c.Println(string(out))
	return nil
}

// Scan scans all drivers.
func (s *Shell) Scan(addr *link.Address) ([]link.URI, error) {
	ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
	defer cancel()
	return s.Registry.ScanInterfaces(ctx, addr)
}

// SelectURI scans and asks for a choice.
func (s *Shell) SelectURI(addr *link.Address) (string, error) {
	uris, err := s.Scan(addr)
	if err != nil {
		return "", err
	}
	if len(uris) == 0 {
		return "", nil
	}
	var index int
	if len(uris) > 1 {
		if !s.Interactive {
			return "", fmt.Errorf("more than 1 links found in non-interactive mode")
		}
		items := make([]string, len(uris))
		for n, uri := range uris {
			items[n] = uri.String()
		}
		index = s.Shell.MultiChoice(items, "Which one to connect?")
	}
	return uris[index].String(), nil
}

// Connect opens a session, replacing the current one.
func (s *Shell) Connect(uri string) error {
	session, err := s.Registry.Open(context.Background(), uri)
	if err != nil {
		return err
	}
	s.Disconnect()
	s.Session = session
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", session.URI()))
	return nil
}

// Disconnect closes current session.
func (s *Shell) Disconnect() {
	if s.Session != nil {
		s.Session.Close()
		s.Session = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	defer s.Disconnect()
	if s.ConnectURI != "" {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.ConnectURI)
		}
		if err := s.Connect(s.ConnectURI); err != nil {
			log.Fatalf("connect %q failed: %v", s.ConnectURI, err)
		}
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

func parseAddrArg(c *ishell.Context) (*link.Address, error) {
	if len(c.Args) == 0 {
		return nil, nil
	}
	addr, err := link.ParseAddress(c.Args[0])
	if err != nil {
		return nil, fmt.Errorf("Invalid ADDR: %v", err)
	}
	return &addr, nil
}

var (
	// ScanCmd scans links.
	ScanCmd = ishell.Cmd{
		Name:    "scan",
		Aliases: []string{"list", "l"},
		Help:    "[ADDR]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			addr, err := parseAddrArg(c)
			if err != nil {
				c.Err(err)
				return
			}
			uris, err := s.Scan(addr)
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				items := make([]string, len(uris))
				for n, uri := range uris {
					items[n] = uri.String()
				}
				PrintJSON(c, items)
				return
			}
			if len(uris) == 0 {
				c.Println("No links found")
				return
			}
			for _, uri := range uris {
				c.Println(uri.String())
			}
		},
	}

	// ConnectCmd connects a link.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[URI|ADDR]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			var uri string
			if len(c.Args) > 0 {
				if _, err := link.ParseURI(c.Args[0]); err == nil {
					uri = c.Args[0]
				}
			}
			if uri == "" {
				addr, err := parseAddrArg(c)
				if err != nil {
					c.Err(err)
					return
				}
				if uri, err = s.SelectURI(addr); err != nil {
					c.Err(err)
					return
				}
				if uri == "" {
					c.Err(fmt.Errorf("no link found"))
					return
				}
			}
			if err := s.Connect(uri); err != nil {
				c.Err(err)
				return
			}
		},
	}

	// DisconnectCmd disconnects current link.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// StatusCmd shows the current link.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Help:    "",
		Func: MustBeConnected(func(c *ishell.Context) {
			s := ShellFrom(c)
			stats := s.Session.Stats()
			if s.OutputJSON {
				PrintJSON(c, map[string]interface{}{
					"uri":    s.Session.URI().String(),
					"state":  s.Session.State().String(),
					"driver": s.Session.Driver(),
					"stats":  stats,
				})
				return
			}
			c.Println(s.Session.Status())
			c.Printf("sent %d, received %d, dropped %d, overflowed %d\n",
				stats.Sent, stats.Received, stats.Dropped, stats.Overflowed)
		}),
	}

	// DriversCmd lists active drivers.
	DriversCmd = ishell.Cmd{
		Name: "drivers",
		Help: "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if s.OutputJSON {
				PrintJSON(c, s.Registry.Drivers())
				return
			}
			for _, name := range s.Registry.Drivers() {
				c.Println(name)
			}
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	reg, err := link.NewRegistry(link.Default())
	if err != nil {
		log.Fatalln(err)
	}
	defer reg.Close()
	New(reg).Run(flag.Args()...)
}
