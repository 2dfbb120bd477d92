// Package main is the entry point for the kegcore coordination daemon.
package main

import (
	"fmt"
	"os"

	"kegnet.io/kegcore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
