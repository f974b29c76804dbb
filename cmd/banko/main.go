package main

import (
	"fmt"
	"os"

	"github.com/omerasipi/Es-Selam-Banko/internal/cli"
)

const version = "0.3.0"

func main() {
	if err := cli.NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
