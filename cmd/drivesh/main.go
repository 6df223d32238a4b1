package main

import (
	"github.com/robotalks/drivelink/pkg/cli/sh"

	_ "github.com/robotalks/drivelink/pkg/cli/cmds/drive"
)

//go-build: CGO_ENABLED=0

func main() {
	sh.Main()
}
