// Command conversync is a terminal client for the conversation sync
// engine: it watches a conversation live, sends messages, and inspects
// or changes the takeover assignment. Configuration comes from
// CONVERSYNC_* environment variables.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
