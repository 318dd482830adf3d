// main package for the podcast-studio CLI
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()

	err := cmd.Execute()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "podcast-studio exited with error: %v\n", err)
		}

		os.Exit(1)
	}
}
