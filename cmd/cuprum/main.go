package main

import (
	"os"

	"github.com/ymatsuda/cuprum/cmd/cuprum/commands"
)

// main is the entry point for the cuprum CLI
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
