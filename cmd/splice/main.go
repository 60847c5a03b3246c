// Command splice is a command-line front end for the splice repository
// core: creating commits, rebasing, duplicating and squashing them, and
// mounting any commit's tree read-only.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "splice: %v\n", err)
		os.Exit(1)
	}
}
