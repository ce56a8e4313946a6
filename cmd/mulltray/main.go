// Package main is the entry point for the mulltray tray client.
package main

import (
	"os"

	"github.com/mulltray/mulltray/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
