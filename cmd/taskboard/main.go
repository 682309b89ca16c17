// Package main provides the entry point for the taskboard CLI.
package main

import (
	"os"

	"github.com/randalmurphal/taskboard/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
