package main

import (
	"os"

	"github.com/josephlewis42/pipesh/cmd"
	"github.com/moby/sys/reexec"
)

func main() {
	// Pipeline stages re-execute this binary before exec'ing the program.
	if reexec.Init() {
		return
	}

	os.Exit(cmd.Execute())
}
