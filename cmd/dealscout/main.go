// Package main is the entry point for the dealscout CLI.
package main

import (
	"os"

	"github.com/dealscout/dealscout/cmd/dealscout/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
