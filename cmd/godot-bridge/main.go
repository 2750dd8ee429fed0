package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ctagard/godot-bridge/internal/commands"
)

const (
	errCommandError = 1
	errSetup        = 2
)

func main() {
	root, err := commands.NewRootCmd()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(errSetup)
	}

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(errCommandError)
	}
}
