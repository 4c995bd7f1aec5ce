package main

import (
	"os"

	"github.com/dcpp-hub/adchub/cmd/adchubd/cmd"
)

func main() {
	if err := cmd.Root.Execute(); err != nil {
		os.Exit(1)
	}
}
