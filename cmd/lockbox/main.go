// Package main provides the lockbox CLI commands.
package main

import (
	"errors"
	"fmt"
	"os"
)

// errSilent marks failures that already printed their own message.
var errSilent = errors.New("silent")

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errSilent) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
