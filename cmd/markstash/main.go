// Package main provides the entry point for the markstash CLI.
package main

import (
	"os"

	"github.com/markstash/markstash/cmd/markstash/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
