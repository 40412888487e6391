// Package main provides notesctl, a command-line client for the notekeeper data layer.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	a := &app{}
	if err := a.execute(context.Background(), newRootCmd(a)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
