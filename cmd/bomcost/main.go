// Package main is the entry point for the bomcost CLI.
package main

import (
	"os"

	"github.com/bitfantasy/nimo-bom/cmd/bomcost/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
