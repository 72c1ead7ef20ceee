package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/de-tools/dino/pkg/runtime/terminal"
	"github.com/de-tools/dino/pkg/runtime/terminal/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := terminal.NewArcCLI(terminal.Options{Output: os.Stdout}, commands.DefaultArcDependencies())

	if err := cli.Execute(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
