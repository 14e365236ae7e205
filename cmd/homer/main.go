// Package main provides the entry point for the homer CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/homer-mine/homer/cmd/homer/commands"
)

func main() {
	root := commands.NewRootCommand()

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "homer: %v\n", err)
		os.Exit(1)
	}
}
