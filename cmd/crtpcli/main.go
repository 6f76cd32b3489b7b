package main

import (
	"github.com/robotalks/crtplink/pkg/cli/sh"
	"github.com/robotalks/crtplink/pkg/link"

	_ "github.com/robotalks/crtplink/pkg/cli/cmds/packet"
	_ "github.com/robotalks/crtplink/pkg/link/all"
)

func init() {
	link.SetupFlags()
}

func main() {
	sh.Main()
}
