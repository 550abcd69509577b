// Command fdsend drives the synthetic event sender from a shell: send
// batches, enforce count preconditions and inspect the local mirror.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fdsend:", err)
		os.Exit(1)
	}
}
