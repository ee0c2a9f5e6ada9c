// Package main is the entry point for chantierctl.
package main

import (
	"os"

	"chantier/cmd/chantierctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
