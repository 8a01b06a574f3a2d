package main

import (
	"os"

	"github.com/wonny/meridian/cmd/meridian/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
