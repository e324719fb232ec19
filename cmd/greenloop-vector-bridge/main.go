// Package main is the entry point for the GreenLoop vector bridge.
package main

import (
	"os"

	"github.com/RM-RAMASAMY/GreenLoop/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
