// Package main is the entry point for the perfdb CLI.
package main

import (
	"os"

	"github.com/runger/perfdb/internal/cmd"
	"github.com/runger/perfdb/internal/database"
)

func main() {
	if err := cmd.Execute(); err != nil {
		// A database without its catalog tables cannot be used at all.
		if database.IsFatal(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
