// Package main provides the entry point for the lectern CLI.
package main

import (
	"os"

	"github.com/lectern-labs/lectern/cmd/lectern/cmd"
	"github.com/lectern-labs/lectern/internal/output"
)

func main() {
	if err := cmd.Execute(); err != nil {
		output.New(os.Stderr).Error(err.Error())
		os.Exit(1)
	}
}
