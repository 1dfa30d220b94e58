package config

import (
	"fmt"
	"os"
)

// Exitf prints a one-line message to stderr and exits with status 1. One-shot
// commands use it where services would return from Run.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
