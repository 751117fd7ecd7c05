// Package main is the entry point for the trafficguard host traffic filter.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/trafficguard/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
