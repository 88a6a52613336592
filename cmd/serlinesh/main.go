package main

import (
	"github.com/robotalks/serline/pkg/cli/sh"
	"github.com/robotalks/serline/pkg/config"

	_ "github.com/robotalks/serline/pkg/cli/cmds/all"
)

//go-build: CGO_ENABLED=0

func init() {
	config.SetupFlags()
}

func main() {
	sh.Main()
}
