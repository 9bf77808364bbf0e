// Package main is the entry point for the inkwell command.
package main

import (
	"os"

	"github.com/dshills/inkwell/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
