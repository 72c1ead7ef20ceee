package main

import (
	"context"
	"fmt"
	"os"

	"github.com/de-tools/dino/pkg/runtime/terminal"
	"github.com/de-tools/dino/pkg/runtime/terminal/commands"
)

func main() {
	cli := terminal.NewIngestCLI(terminal.Options{Output: os.Stdout}, commands.DefaultIngestDependencies())

	if err := cli.Execute(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
