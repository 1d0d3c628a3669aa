// Package main is the policypad entry point.
package main

import (
	"os"

	"github.com/quarrylabs/policypad/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
