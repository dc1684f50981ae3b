// Package main provides the rpa command: it runs a tracked demo automation
// against a URL and renders reports and analyses from the performance store.
package main

import (
	"fmt"
	"os"
)

const version = "0.1.0"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
