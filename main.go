package main

import (
	"os"

	"github.com/aionlabs/aion/cli"
)

func main() {
	if err := cli.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
